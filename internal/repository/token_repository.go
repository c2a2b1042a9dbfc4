package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/token-manager/internal/domain"
)

// TokenRepository encapsulates token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *domain.Token) error
	Update(ctx context.Context, token *domain.Token) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Token, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Token, error)
	List(ctx context.Context, limit, offset int) ([]domain.Token, error)
	ListAll(ctx context.Context) ([]domain.Token, error)
	Count(ctx context.Context) (int, error)
	UpdateStatus(ctx context.Context, id string, status domain.BanStatus) error
	UpdatePortalInfo(ctx context.Context, id string, info *domain.PortalInfo) error
	IncrementUsage(ctx context.Context, id string) (int, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository returns a Postgres-backed implementation.
func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

const tokenColumns = `id, tenant_url, access_token, portal_url, email_note, ban_status,
               portal_info, usage_count, max_usage, created_at, updated_at`

func (r *tokenRepository) Create(ctx context.Context, token *domain.Token) error {
	portalInfo, err := encodePortalInfo(token.PortalInfo)
	if err != nil {
		return err
	}

	const query = `
        INSERT INTO tokens (tenant_url, access_token, portal_url, email_note, ban_status, portal_info, usage_count, max_usage)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		token.TenantURL,
		token.AccessToken,
		token.PortalURL,
		token.EmailNote,
		banStatusArg(token.BanStatus),
		portalInfo,
		token.UsageCount,
		token.MaxUsage,
	).Scan(&token.ID, &token.CreatedAt, &token.UpdatedAt)
}

// Update rewrites the operator-editable columns. Status and portal snapshots
// have their own single-column writers.
func (r *tokenRepository) Update(ctx context.Context, token *domain.Token) error {
	const query = `
        UPDATE tokens SET tenant_url=$1, access_token=$2, portal_url=$3, email_note=$4,
            usage_count=$5, max_usage=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		token.TenantURL,
		token.AccessToken,
		token.PortalURL,
		token.EmailNote,
		token.UsageCount,
		token.MaxUsage,
		token.ID,
	).Scan(&token.UpdatedAt)
	return err
}

func (r *tokenRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *tokenRepository) GetByID(ctx context.Context, id string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id=$1`
	return scanToken(r.pool.QueryRow(ctx, query, id))
}

func (r *tokenRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = ANY($1::uuid[]) ORDER BY created_at DESC`
	return r.query(ctx, query, ids)
}

func (r *tokenRepository) List(ctx context.Context, limit, offset int) ([]domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return r.query(ctx, query, limit, offset)
}

func (r *tokenRepository) ListAll(ctx context.Context) ([]domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens ORDER BY created_at DESC`
	return r.query(ctx, query)
}

func (r *tokenRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *tokenRepository) UpdateStatus(ctx context.Context, id string, status domain.BanStatus) error {
	const query = `UPDATE tokens SET ban_status=$1, updated_at=NOW() WHERE id=$2`
	return r.execOne(ctx, query, string(status), id)
}

func (r *tokenRepository) UpdatePortalInfo(ctx context.Context, id string, info *domain.PortalInfo) error {
	payload, err := encodePortalInfo(info)
	if err != nil {
		return err
	}
	const query = `UPDATE tokens SET portal_info=$1, updated_at=NOW() WHERE id=$2`
	return r.execOne(ctx, query, payload, id)
}

func (r *tokenRepository) IncrementUsage(ctx context.Context, id string) (int, error) {
	const query = `
        UPDATE tokens SET usage_count = usage_count + 1, updated_at=NOW()
        WHERE id=$1
        RETURNING usage_count`
	var count int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *tokenRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *tokenRepository) query(ctx context.Context, query string, args ...any) ([]domain.Token, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *token)
	}
	return tokens, rows.Err()
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var (
		token      domain.Token
		banStatus  *string
		portalInfo []byte
	)
	if err := row.Scan(
		&token.ID,
		&token.TenantURL,
		&token.AccessToken,
		&token.PortalURL,
		&token.EmailNote,
		&banStatus,
		&portalInfo,
		&token.UsageCount,
		&token.MaxUsage,
		&token.CreatedAt,
		&token.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if banStatus != nil {
		status := domain.BanStatus(*banStatus)
		token.BanStatus = &status
	}
	if len(portalInfo) > 0 {
		var info domain.PortalInfo
		if err := json.Unmarshal(portalInfo, &info); err != nil {
			return nil, fmt.Errorf("decode portal_info of token %s: %w", token.ID, err)
		}
		token.PortalInfo = &info
	}
	return &token, nil
}

func banStatusArg(status *domain.BanStatus) *string {
	if status == nil {
		return nil
	}
	s := string(*status)
	return &s
}

func encodePortalInfo(info *domain.PortalInfo) ([]byte, error) {
	if info == nil {
		return nil, nil
	}
	payload, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode portal_info: %w", err)
	}
	return payload, nil
}
