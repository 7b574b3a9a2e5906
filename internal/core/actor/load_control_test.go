package actor

import (
	"errors"
	"testing"
	"time"

	adactor "github.com/berfenger/essload2mqtt/internal/adapter/actor"
	adtelemetry "github.com/berfenger/essload2mqtt/internal/adapter/telemetry"
	"github.com/berfenger/essload2mqtt/internal/config"
	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/core/service"
	"github.com/berfenger/essload2mqtt/internal/metrics"
	"github.com/berfenger/essload2mqtt/internal/util"
	"github.com/berfenger/essload2mqtt/internal/util/actorutil"
	"github.com/berfenger/essload2mqtt/pkg/venus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type loadControlFixture struct {
	as       *actor.ActorSystem
	pid      *actor.PID
	cfg      config.Config
	reader   *venus.TestSystemReader
	recorder *adactor.PublishRecorder
}

func spawnLoadControl(t *testing.T, cfg config.Config, opts ...LoadControlOption) *loadControlFixture {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	es := &eventstream.EventStream{}
	m := metrics.NewMetrics()
	f := &loadControlFixture{
		as:       as,
		cfg:      cfg,
		reader:   venus.CreateTestSystemReader(),
		recorder: &adactor.PublishRecorder{},
	}

	source := adtelemetry.NewVenusTelemetrySource(f.reader, "test")
	telemetryPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTelemetryActor(source, es, time.Duration(cfg.Telemetry.ReadTimeoutMillis)*time.Millisecond,
			cfg.Telemetry.GridSourcePath, m, logger)
	}))
	mqttPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTestMQTTActor(&f.cfg, es, f.recorder, logger)
	}))
	f.pid = as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewLoadControlActor(&f.cfg, telemetryPID, mqttPID, es, service.NewLoadControlLogic(f.cfg.Controller, logger),
			m, logger, opts...)
	}))

	t.Cleanup(func() {
		as.Root.Stop(f.pid)
		as.Root.Stop(mqttPID)
		as.Root.Stop(telemetryPID)
		as.Shutdown()
	})
	return f
}

// status is stashed until the actor is running, so the first call also waits for startup
func (f *loadControlFixture) status(t *testing.T) domain.ControllerStatus {
	res, err := f.as.Root.RequestFuture(f.pid, domain.GetControllerStatusRequest{}, 3*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetControllerStatusResponse)
	require.True(t, ok)
	return resp.Status
}

func (f *loadControlFixture) tickAndWait(t *testing.T, published int) []string {
	f.as.Root.Send(f.pid, LoadControlTick{})
	require.Eventually(t, func() bool {
		return len(f.recorder.MessagesTo(f.cfg.Actuator.Topic)) >= published
	}, 3*time.Second, 20*time.Millisecond)
	return f.recorder.MessagesTo(f.cfg.Actuator.Topic)
}

func TestLoadControlFirstActiveTick(t *testing.T) {
	f := spawnLoadControl(t, util.LoadTestConfig(), WithManualTicks())

	status := f.status(t)
	assert.Equal(t, venus.ACTIVE_IN_SOURCE_NOT_CONNECTED, status.ACSource)
	assert.True(t, status.Enabled)
	assert.InDelta(t, 9000.0, status.State.Integral, 1e-9)

	assert.Equal(t, []string{"0", "41"}, f.tickAndWait(t, 2))

	status = f.status(t)
	assert.Equal(t, uint64(1), status.State.TickCount)
	assert.Equal(t, 41, status.Last.Output)
	assert.Equal(t, domain.GATE_ACTIVE, status.Last.Gate)
	assert.InDelta(t, 250.0, status.State.PVAverage, 1e-9)
	assert.InDelta(t, 8462.5, status.State.Integral, 1e-9)
	assert.Equal(t, 1, f.reader.Reads())
}

func TestLoadControlGatedByGridSource(t *testing.T) {
	f := spawnLoadControl(t, util.LoadTestConfig(), WithManualTicks())
	f.status(t)

	f.reader.SetActiveInSource(int32(1))
	require.Eventually(t, func() bool {
		return f.status(t).ACSource == 1
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"0", "0"}, f.tickAndWait(t, 2))

	status := f.status(t)
	assert.Equal(t, domain.GATE_GRID_CONNECTED, status.Last.Gate)
	assert.Equal(t, uint64(1), status.State.TickCount)
	assert.InDelta(t, 9000.0, status.State.Integral, 1e-9)
	assert.Equal(t, 0.0, status.State.PVAverage)
	assert.Equal(t, 0, f.reader.Reads())
}

func TestLoadControlSwitch(t *testing.T) {
	f := spawnLoadControl(t, util.LoadTestConfig(), WithManualTicks())
	f.status(t)

	res, err := f.as.Root.RequestFuture(f.pid, domain.LoadControlEnableRequest{Enable: false}, 3*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.LoadControlEnableResponse)
	require.True(t, ok)
	assert.True(t, resp.Changed)

	res, err = f.as.Root.RequestFuture(f.pid, domain.LoadControlEnableRequest{Enable: false}, 3*time.Second).Result()
	require.NoError(t, err)
	assert.False(t, res.(domain.LoadControlEnableResponse).Changed)

	assert.Equal(t, []string{"0", "0"}, f.tickAndWait(t, 2))
	status := f.status(t)
	assert.False(t, status.Enabled)
	assert.Equal(t, domain.GATE_DISABLED, status.Last.Gate)

	// every switch request is reported back
	require.Eventually(t, func() bool {
		off := 0
		for _, ev := range f.recorder.Events() {
			if sw, ok := ev.(domain.SwitchSensorUpdateEvent); ok && sw.SensorId() == domain.SWITCH_ID_LOAD_CONTROL && !sw.Value {
				off++
			}
		}
		return off == 2
	}, 3*time.Second, 20*time.Millisecond)

	_, err = f.as.Root.RequestFuture(f.pid, domain.LoadControlEnableRequest{Enable: true}, 3*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "0", "41"}, f.tickAndWait(t, 3))
}

func TestLoadControlStartDisabled(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Controller.StartEnabled = false
	f := spawnLoadControl(t, cfg, WithManualTicks())

	assert.False(t, f.status(t).Enabled)
	assert.Equal(t, []string{"0", "0"}, f.tickAndWait(t, 2))
	assert.Equal(t, 0, f.reader.Reads())
}

func TestLoadControlTelemetryReadFailure(t *testing.T) {
	f := spawnLoadControl(t, util.LoadTestConfig(), WithManualTicks())
	f.status(t)

	f.reader.SetReadError(errors.New("bus down"))
	assert.Equal(t, []string{"0", "0"}, f.tickAndWait(t, 2))

	status := f.status(t)
	assert.Equal(t, uint64(1), status.State.TickCount)
	assert.InDelta(t, 9000.0, status.State.Integral, 1e-9)
	assert.Equal(t, 0.0, status.State.PVAverage)

	f.reader.SetReadError(nil)
	assert.Equal(t, []string{"0", "0", "41"}, f.tickAndWait(t, 3))
}

func TestLoadControlPublishesDiagnostics(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Controller.LogEveryTicks = 1
	f := spawnLoadControl(t, cfg, WithManualTicks())
	f.status(t)
	f.tickAndWait(t, 2)

	require.Eventually(t, func() bool {
		for _, ev := range f.recorder.Events() {
			if out, ok := ev.(domain.IntSensorUpdateEvent); ok && out.SensorId() == domain.SENSOR_ID_LOAD_OUTPUT {
				return out.Value == 41
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}

func TestLoadControlTicker(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Controller.TickIntervalMillis = 100
	f := spawnLoadControl(t, cfg)

	require.Eventually(t, func() bool {
		return f.status(t).State.TickCount >= 3
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "41", f.recorder.MessagesTo(cfg.Actuator.Topic)[1])
}
