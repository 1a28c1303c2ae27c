package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func get(t *testing.T, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w
}

func runN(p *probe, n int) {
	for range n {
		p.run(context.Background())
	}
}

// --- Tests ---

func TestLiveEndpoint(t *testing.T) {
	t.Run("NoChecks", func(t *testing.T) {
		w := get(t, New().LiveEndpoint)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})
	t.Run("AllPassing", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("goroutines", time.Second, passing)
		h.AddLivenessCheck("gc", time.Second, passing)
		w := get(t, h.LiveEndpoint)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok","checks":{"goroutines":"ok","gc":"ok"}}`, w.Body.String())
	})
	t.Run("BelowThreshold", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("flaky", time.Second, failing("temporary"))
		runN(h.liveness[0], 2)
		assert.Equal(t, http.StatusOK, get(t, h.LiveEndpoint).Code)
	})
	t.Run("Failing", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("goroutines", time.Second, failing("too many"))
		runN(h.liveness[0], 3)
		w := get(t, h.LiveEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"status":"unhealthy","checks":{"goroutines":"too many"}}`, w.Body.String())
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("GateClosed", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, passing)
		w := get(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"status":"unhealthy","checks":{"postgres":"ok","_readiness":"service is not ready"}}`, w.Body.String())
	})
	t.Run("Ready", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, passing)
		h.SetReady(true)
		assert.Equal(t, http.StatusOK, get(t, h.ReadyEndpoint).Code)

		h.SetReady(false)
		assert.Equal(t, http.StatusServiceUnavailable, get(t, h.ReadyEndpoint).Code)
	})
	t.Run("OneFailing", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, passing)
		h.AddReadinessCheck("redis", time.Second, failing("connection refused"))
		h.SetReady(true)
		runN(h.readiness[1], 3)

		w := get(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"status":"unhealthy","checks":{"postgres":"ok","redis":"connection refused"}}`, w.Body.String())
		assert.False(t, h.IsReady())
	})
}

func TestRoutes(t *testing.T) {
	h := New()
	h.SetReady(true)
	r := chi.NewRouter()
	h.Routes(r)

	for _, path := range []string{"/livez", "/readyz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing)
	assert.False(t, h.IsReady())
	h.SetReady(true)
	assert.True(t, h.IsReady())
	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestThresholds(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	h := New()
	h.AddReadinessCheck("redis", time.Second, func(context.Context) error {
		if down.Load() {
			return errors.New("down")
		}
		return nil
	}, Thresholds(1, 2))
	p := h.readiness[0]

	assert.Nil(t, p.err())
	runN(p, 1)
	assert.False(t, p.healthy.Load())
	assert.EqualError(t, p.err(), "down")

	down.Store(false)
	runN(p, 1)
	assert.False(t, p.healthy.Load(), "one success is below the recovery threshold")
	runN(p, 1)
	assert.True(t, p.healthy.Load())
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.AddLivenessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Thresholds(1, 1))
	runN(h.liveness[0], 1)
	assert.ErrorIs(t, h.liveness[0].err(), context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.AddLivenessCheck("counter", time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, failing("err"))
	h.AddReadinessCheck("ready", time.Second, passing)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestCheckers(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")

	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))

	assert.NoError(t, PingCheck(passing)(context.Background()))
	assert.EqualError(t, PingCheck(failing("refused"))(context.Background()), "ping: refused")
}
