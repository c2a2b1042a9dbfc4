package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsRecording(t *testing.T) {
	m := NewMetrics()

	m.RecordProbe("ACTIVE")
	m.RecordProbe("ACTIVE")
	m.RecordProbe("SUSPENDED")
	m.RecordPortalRefresh("error")
	m.RecordRequest("/api/tokens", "GET", 200, 10*time.Millisecond)
	m.RecordError("/api/tokens/:id", "GET", "NOT_FOUND")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.probes.WithLabelValues("ACTIVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probes.WithLabelValues("SUSPENDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/tokens", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("/api/tokens/:id", "GET", "NOT_FOUND")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordProbe("ACTIVE")
		m.RecordPortalRefresh("active")
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
	})
}

func TestRequestLoggerCountsRoutes(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "missing" {
			return fiber.ErrNotFound
		}
		return c.SendStatus(http.StatusNoContent)
	})

	for _, id := range []string{"a", "b", "missing"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/items/:id", "GET", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/items/:id", "GET", "404")))
}
