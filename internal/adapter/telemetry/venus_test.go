package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/essload2mqtt/internal/config"
	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/util"
	"github.com/berfenger/essload2mqtt/pkg/venus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSnapshotFromSystemState(t *testing.T) {
	snapshot := SnapshotFromSystemState(&venus.SystemState{
		PhaseConsumption: []any{200.0, nil, int32(150)},
		PVPower:          1000.0,
		BatteryPower:     []byte("x"),
		ChargeMode:       "Float",
		Throttling:       int32(1),
	})

	require.Len(t, snapshot.PhaseConsumption, 3)
	assert.Equal(t, 200.0, *snapshot.PhaseConsumption[0])
	assert.Nil(t, snapshot.PhaseConsumption[1])
	assert.Equal(t, 150.0, *snapshot.PhaseConsumption[2])
	assert.Equal(t, 1000.0, *snapshot.PVPower)
	assert.Nil(t, snapshot.BatteryPower)
	assert.Equal(t, domain.CHARGE_MODE_FLOAT, snapshot.ChargeMode.Kind)
	require.NotNil(t, snapshot.Throttling)
	assert.True(t, *snapshot.Throttling)
}

func TestSnapshotMissingValues(t *testing.T) {
	snapshot := SnapshotFromSystemState(&venus.SystemState{PhaseConsumption: []any{nil}})

	assert.Nil(t, snapshot.PVPower)
	assert.Nil(t, snapshot.BatteryPower)
	assert.Nil(t, snapshot.Throttling)
	assert.Equal(t, domain.CHARGE_MODE_UNKNOWN, snapshot.ChargeMode.Kind)
}

func TestVenusTelemetrySourceRead(t *testing.T) {
	reader := venus.CreateTestSystemReader()
	source := NewVenusTelemetrySource(reader, "test")

	require.NoError(t, source.Open())
	info := source.Info()
	assert.Equal(t, 3, info.NumberOfPhases)
	assert.Equal(t, "test", info.Source)

	snapshot, err := source.Read()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, *snapshot.PVPower)
	assert.Equal(t, domain.CHARGE_MODE_BULK, snapshot.ChargeMode.Kind)

	reader.SetReadError(errors.New("bus down"))
	_, err = source.Read()
	assert.Error(t, err)

	value, err := source.ReadGridSource()
	require.NoError(t, err)
	assert.Equal(t, int32(venus.ACTIVE_IN_SOURCE_NOT_CONNECTED), value)
}

func TestVenusTelemetrySourceWatch(t *testing.T) {
	reader := venus.CreateTestSystemReader()
	source := NewVenusTelemetrySource(reader, "test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.ValueChangedNotification, 1)
	done := make(chan error, 1)
	go func() {
		done <- source.Watch(ctx, func(n domain.ValueChangedNotification) {
			received <- n
		})
	}()

	reader.SetActiveInSource(int32(1))

	select {
	case n := <-received:
		assert.Equal(t, venus.PATH_ACTIVE_IN_SOURCE, n.Path)
		assert.Equal(t, int32(1), n.Value)
	case <-time.After(time.Second):
		t.Fatal("notification not received")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCreateTelemetrySource(t *testing.T) {
	cfg := util.LoadTestConfig()

	source, err := CreateTelemetrySource(cfg.Telemetry, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, config.TELEMETRY_SOURCE_DBUS, source.Info().Source)

	cfg.Telemetry.Source = config.TELEMETRY_SOURCE_MODBUS
	cfg.Telemetry.ModbusTcp.Host = "127.0.0.1"
	source, err = CreateTelemetrySource(cfg.Telemetry, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, source.Info().NumberOfPhases)

	cfg.Telemetry.Source = "serial"
	_, err = CreateTelemetrySource(cfg.Telemetry, zap.NewNop(), nil)
	assert.Error(t, err)
}
