package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/essload2mqtt/internal/config"
	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/core/port"
	"github.com/berfenger/essload2mqtt/pkg/venus"

	"go.uber.org/zap"
)

// VenusTelemetrySource adapts a venus.SystemReader to the controller telemetry port.
type VenusTelemetrySource struct {
	reader venus.SystemReader
	source string
}

func NewVenusTelemetrySource(reader venus.SystemReader, source string) *VenusTelemetrySource {
	return &VenusTelemetrySource{
		reader: reader,
		source: source,
	}
}

// CreateTelemetrySource builds the reader selected by telemetry.source.
func CreateTelemetrySource(cfg config.TelemetryConfig, logger *zap.Logger, instrument *venus.Instrument) (*VenusTelemetrySource, error) {
	timeout := time.Duration(cfg.ReadTimeoutMillis) * time.Millisecond
	switch cfg.Source {
	case config.TELEMETRY_SOURCE_DBUS:
		reader, err := venus.CreateDBusSystemReader(cfg.DBus.Address, int(cfg.NumberOfPhases),
			cfg.DBus.BatteryService, logger, instrument)
		if err != nil {
			return nil, err
		}
		return NewVenusTelemetrySource(reader, cfg.Source), nil
	case config.TELEMETRY_SOURCE_MODBUS:
		unitId := cfg.ModbusTcp.UnitId
		if unitId == 0 {
			unitId = venus.DEFAULT_SYSTEM_UNIT_ID
		}
		reader, err := venus.CreateModbusSystemReader(cfg.ModbusTcp.Host, cfg.ModbusTcp.Port, uint8(unitId),
			int(cfg.NumberOfPhases), timeout,
			time.Duration(cfg.ModbusTcp.GridPollIntervalMillis)*time.Millisecond, logger, instrument)
		if err != nil {
			return nil, err
		}
		return NewVenusTelemetrySource(reader, cfg.Source), nil
	}
	return nil, fmt.Errorf("unknown telemetry source %q", cfg.Source)
}

func (s *VenusTelemetrySource) Open() error {
	return s.reader.Open()
}

func (s *VenusTelemetrySource) Close() error {
	return s.reader.Close()
}

func (s *VenusTelemetrySource) Info() domain.TelemetryInfo {
	return domain.TelemetryInfo{
		Source:         s.source,
		NumberOfPhases: s.reader.NumberOfPhases(),
		BatteryService: s.reader.BatteryService(),
	}
}

func (s *VenusTelemetrySource) Read() (*domain.TelemetrySnapshot, error) {
	state, err := s.reader.ReadSystemState()
	if err != nil {
		return nil, err
	}
	return SnapshotFromSystemState(state), nil
}

func (s *VenusTelemetrySource) ReadGridSource() (any, error) {
	return s.reader.ReadActiveInSource()
}

func (s *VenusTelemetrySource) Watch(ctx context.Context, onChange func(domain.ValueChangedNotification)) error {
	return s.reader.WatchActiveInSource(ctx, func(change venus.ValueChange) {
		onChange(domain.ValueChangedNotification{
			Service: change.Service,
			Path:    change.Path,
			Value:   change.Value,
		})
	})
}

// SnapshotFromSystemState resolves raw bus values. Values that are not numeric are reported as missing.
func SnapshotFromSystemState(state *venus.SystemState) *domain.TelemetrySnapshot {
	snapshot := &domain.TelemetrySnapshot{
		PhaseConsumption: make([]*float64, len(state.PhaseConsumption)),
		PVPower:          optionalFloat(state.PVPower),
		BatteryPower:     optionalFloat(state.BatteryPower),
		ChargeMode:       domain.ParseChargeMode(state.ChargeMode),
		Throttling:       optionalBool(state.Throttling),
	}
	for i, value := range state.PhaseConsumption {
		snapshot.PhaseConsumption[i] = optionalFloat(value)
	}
	return snapshot
}

func optionalFloat(value any) *float64 {
	if value == nil {
		return nil
	}
	f, ok := venus.ToFloat64(value)
	if !ok {
		return nil
	}
	return &f
}

func optionalBool(value any) *bool {
	if value == nil {
		return nil
	}
	if b, ok := value.(bool); ok {
		return &b
	}
	f, ok := venus.ToFloat64(value)
	if !ok {
		return nil
	}
	b := f != 0
	return &b
}

// compile time check
var _ port.TelemetrySource = (*VenusTelemetrySource)(nil)
