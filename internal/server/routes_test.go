package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/metrics"
	"github.com/berfenger/essload2mqtt/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, healthy bool) http.Handler {
	as := actor.NewActorSystem()
	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy})
		case domain.GetControllerStatusRequest:
			ctx.Respond(domain.GetControllerStatusResponse{Status: domain.ControllerStatus{
				State:    domain.ControllerState{PVAverage: 250, Integral: 8462.5, TickCount: 1},
				Last:     domain.LoadControlTickResult{Output: 41, ChargeMode: domain.ChargeMode{Kind: domain.CHARGE_MODE_BULK}},
				Enabled:  true,
				ACSource: 240,
			}})
		}
	}))
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	m := metrics.NewMetrics()
	m.PublishFailed()
	return NewServer(util.LoadTestConfig(), as.Root, pid, m).Handler
}

func TestHealthCheck(t *testing.T) {
	for _, healthy := range []bool{true, false} {
		rec := httptest.NewRecorder()
		testServer(t, healthy).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
		if healthy {
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "health_check: OK", rec.Body.String())
		} else {
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		}
	}
}

func TestStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer(t, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view statusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 41, view.Output)
	assert.Equal(t, "bulk", view.ChargeMode)
	assert.Equal(t, "active", view.Gate)
	assert.Equal(t, 240, view.ACSource)
	assert.Equal(t, uint64(1), view.TickCount)
	assert.InDelta(t, 8462.5, view.Integral, 1e-9)
}

func TestMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer(t, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "essload_actuator_publish_failures_total 1")
}
