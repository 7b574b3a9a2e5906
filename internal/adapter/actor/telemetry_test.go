package actor

import (
	"errors"
	"testing"
	"time"

	adtelemetry "github.com/berfenger/essload2mqtt/internal/adapter/telemetry"
	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/metrics"
	"github.com/berfenger/essload2mqtt/internal/util/actorutil"
	"github.com/berfenger/essload2mqtt/pkg/venus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTelemetryActor(t *testing.T, reader *venus.TestSystemReader, es *eventstream.EventStream) (*actor.ActorSystem, *actor.PID) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	source := adtelemetry.NewVenusTelemetrySource(reader, "test")
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewTelemetryActor(source, es, 500*time.Millisecond, venus.PATH_ACTIVE_IN_SOURCE, metrics.NewMetrics(), logger)
	})
	pid := as.Root.Spawn(props)
	t.Cleanup(func() {
		as.Root.Stop(pid)
		as.Shutdown()
	})
	return as, pid
}

func TestTelemetryActorRead(t *testing.T) {
	reader := venus.CreateTestSystemReader()
	as, pid := spawnTelemetryActor(t, reader, &eventstream.EventStream{})

	result, err := as.Root.RequestFuture(pid, domain.GetTelemetryRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.GetTelemetryResponse)
	require.True(t, ok)
	require.False(t, resp.HasResponseError())
	assert.Equal(t, 1000.0, *resp.Snapshot.PVPower)
	assert.Len(t, resp.Snapshot.PhaseConsumption, 3)

	reader.SetReadError(errors.New("bus down"))
	result, err = as.Root.RequestFuture(pid, domain.GetTelemetryRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp = result.(domain.GetTelemetryResponse)
	assert.True(t, resp.HasResponseError())
	assert.Nil(t, resp.Snapshot)
}

func TestTelemetryActorInfoAndGridSource(t *testing.T) {
	reader := venus.CreateTestSystemReader()
	as, pid := spawnTelemetryActor(t, reader, &eventstream.EventStream{})

	result, err := as.Root.RequestFuture(pid, domain.GetTelemetryInfoRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	info := result.(domain.GetTelemetryInfoResponse)
	assert.Equal(t, 3, info.Info.NumberOfPhases)

	result, err = as.Root.RequestFuture(pid, domain.GetGridSourceRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	grid := result.(domain.GetGridSourceResponse)
	assert.Equal(t, venus.PATH_ACTIVE_IN_SOURCE, grid.Path)
	assert.Equal(t, int32(240), grid.Value)
}

func TestTelemetryActorPublishesGridChanges(t *testing.T) {
	reader := venus.CreateTestSystemReader()
	es := &eventstream.EventStream{}
	received := make(chan domain.ValueChangedNotification, 4)
	es.Subscribe(func(evt any) {
		if n, ok := evt.(domain.ValueChangedNotification); ok {
			received <- n
		}
	})
	as, pid := spawnTelemetryActor(t, reader, es)

	// wait until started
	_, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)

	reader.SetActiveInSource(int32(1))

	select {
	case n := <-received:
		assert.Equal(t, venus.PATH_ACTIVE_IN_SOURCE, n.Path)
		assert.Equal(t, int32(1), n.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("grid source change not published")
	}
}
