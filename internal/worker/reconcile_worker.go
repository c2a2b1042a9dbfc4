package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/token-manager/internal/service"
)

// Reconciler is the part of the token service the reconcile loop drives.
type Reconciler interface {
	BatchValidate(ctx context.Context, ids []string) (*service.BatchValidateReport, error)
	BatchRefresh(ctx context.Context) (*service.BatchRefreshReport, error)
}

// ReconcileWorker periodically revalidates every token and refreshes its
// billing snapshot.
type ReconcileWorker struct {
	tokens   Reconciler
	interval time.Duration
	logger   *zap.Logger
}

// NewReconcileWorker builds the worker. A non-positive interval disables it.
func NewReconcileWorker(tokens Reconciler, interval time.Duration, logger *zap.Logger) *ReconcileWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileWorker{tokens: tokens, interval: interval, logger: logger}
}

// Run blocks until ctx is done. Cycles never overlap; a tick that arrives
// while a cycle is still running is dropped.
func (w *ReconcileWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("token reconciliation disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.Info("token reconciliation started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("token reconciliation stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
			select {
			case <-ticker.C:
				w.logger.Warn("reconcile cycle overran its interval; skipping tick")
			default:
			}
		}
	}
}

// RunOnce validates all tokens, then refreshes all billing snapshots.
func (w *ReconcileWorker) RunOnce(ctx context.Context) {
	start := time.Now()

	validated, err := w.tokens.BatchValidate(ctx, nil)
	if err != nil {
		w.logger.Error("reconcile validation failed", zap.Error(err))
	}
	if ctx.Err() != nil {
		return
	}

	refreshed, err := w.tokens.BatchRefresh(ctx)
	if err != nil {
		w.logger.Error("reconcile refresh failed", zap.Error(err))
	}

	fields := []zap.Field{zap.Duration("elapsed", time.Since(start))}
	if validated != nil {
		fields = append(fields, zap.Int("valid", validated.SuccessCount), zap.Int("invalid", validated.FailedCount))
	}
	if refreshed != nil {
		fields = append(fields, zap.Int("refreshed", refreshed.SuccessCount), zap.Int("refresh_failed", refreshed.FailedCount))
	}
	w.logger.Info("reconcile cycle finished", fields...)
}
