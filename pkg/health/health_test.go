package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() CheckFunc { return func(context.Context) error { return nil } }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type probeBody struct {
	status string
	checks map[string]string
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) probeBody {
	t.Helper()
	body := probeBody{checks: map[string]string{}}
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			body.status = v
			return err
		case "checks":
			return d.Obj(func(d *jx.Decoder, name string) error {
				v, err := d.Str()
				body.checks[name] = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return body
}

func get(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		w := get(New().LiveEndpoint)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decodeBody(t, w).status)
	})

	t.Run("below failure threshold", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("db", time.Second, failing("down"))
		for range DefaultThresholds.Failure - 1 {
			h.checks[0].run(context.Background())
		}
		assert.Equal(t, http.StatusOK, get(h.LiveEndpoint).Code)
	})

	t.Run("past failure threshold", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("db", time.Second, failing("down"))
		for range DefaultThresholds.Failure {
			h.checks[0].run(context.Background())
		}
		w := get(h.LiveEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "unhealthy", body.status)
		assert.Equal(t, "down", body.checks["db"])
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("not ready by default", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("cache", time.Second, passing())
		w := get(h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, decodeBody(t, w).checks, "_readiness")
	})

	t.Run("ready and passing", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("cache", time.Second, passing())
		h.SetReady(true)
		assert.Equal(t, http.StatusOK, get(h.ReadyEndpoint).Code)

		h.SetReady(false)
		assert.Equal(t, http.StatusServiceUnavailable, get(h.ReadyEndpoint).Code)
	})

	t.Run("one of two failing", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("db", time.Second, passing())
		h.AddReadinessCheck("cache", time.Second, failing("cache miss"))
		h.SetReady(true)
		for range DefaultThresholds.Failure {
			h.checks[1].run(context.Background())
		}

		w := get(h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decodeBody(t, w)
		assert.Contains(t, body.checks, "cache")
		assert.NotContains(t, body.checks, "db")
		assert.False(t, h.IsReady())
	})

	t.Run("liveness failure does not affect readiness", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("goroutines", time.Second, failing("leak"))
		h.SetReady(true)
		for range DefaultThresholds.Failure {
			h.checks[0].run(context.Background())
		}
		assert.Equal(t, http.StatusOK, get(h.ReadyEndpoint).Code)
		assert.True(t, h.IsReady())
	})
}

func TestCheckRecovers(t *testing.T) {
	down := true
	h := New()
	h.Add(Liveness, "flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, Thresholds{Failure: 2, Success: 2})
	c := h.checks[0]
	ctx := context.Background()

	c.run(ctx)
	c.run(ctx)
	_, failed := c.failure()
	require.True(t, failed)

	down = false
	c.run(ctx)
	msg, failed := c.failure()
	assert.True(t, failed, "one success is below the success threshold")
	assert.Equal(t, "check is unhealthy", msg)

	c.run(ctx)
	_, failed = c.failure()
	assert.False(t, failed)
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(1_000_000))
	h.AddReadinessCheck("ready", time.Second, passing())
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				get(h.LiveEndpoint)
				get(h.ReadyEndpoint)
			}
		}()
	}
	wg.Wait()

	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.ErrorContains(t, GoroutineCountCheck(0)(context.Background()), "exceeds threshold")
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(pingerFunc(func(context.Context) error { return nil }))(context.Background()))
	assert.EqualError(t,
		PingCheck(pingerFunc(func(context.Context) error { return errors.New("refused") }))(context.Background()),
		"refused",
	)
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := RedisCheck(client)
	require.NoError(t, check(context.Background()))

	mr.Close()
	assert.ErrorContains(t, check(context.Background()), "redis ping")
}
