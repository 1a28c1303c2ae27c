package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/recycle-market/internal/broker"
	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/handler"
	"github.com/xenking/recycle-market/pkg/health"
	"github.com/xenking/recycle-market/pkg/httpmiddleware"
)

func newTestRouter(t *testing.T, max int) (http.Handler, *health.Health) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hs := health.New()
	r := newRouter(ctx, routerDeps{
		Logger:         zaptest.NewLogger(t),
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
		Health:         hs,
		API:            handler.New(handler.Deps{Tokens: auth.NewTokenVerifier([]byte("secret"))}),
		CORS:           CORSConfig{Origins: []string{"https://app.example.com"}},
		RateLimit:      RateLimitConfig{Max: max, Window: time.Minute},
	})
	return r, hs
}

func TestRouterHealth(t *testing.T) {
	r, hs := newTestRouter(t, 10)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(httpmiddleware.RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	hs.SetReady(true)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterAPI(t *testing.T) {
	r, _ := newTestRouter(t, 10)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":404,"message":"route not found"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me/balances", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterCORS(t *testing.T) {
	r, _ := newTestRouter(t, 10)

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Idempotency-Key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRouterRateLimitsByActor(t *testing.T) {
	r, _ := newTestRouter(t, 1)

	tok, err := auth.Issue([]byte("secret"), auth.Actor{ID: "u1", Role: auth.RoleCustomer}, time.Hour, time.Now())
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		// Without a session id the merge is rejected before touching carts.
		req := httptest.NewRequest(http.MethodPost, "/api/cart/merge", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}
	first := send()
	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := send()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestNewPublisher(t *testing.T) {
	lg := zaptest.NewLogger(t)

	p, closeFn, err := newPublisher(lg, nil, "")
	require.NoError(t, err)
	assert.IsType(t, broker.LogPublisher{}, p)
	closeFn()

	p, closeFn, err = newPublisher(lg, []string{"localhost:9092"}, "topic")
	require.NoError(t, err)
	assert.IsType(t, &broker.KafkaPublisher{}, p)
	closeFn()
}
