package venus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// com.victronenergy.system registers of the GX Modbus-TCP server
const (
	REG_AC_CONSUMPTION_L1 uint16 = 817
	REG_ACTIVE_IN_SOURCE  uint16 = 826
	REG_BATTERY_POWER     uint16 = 842
	REG_PV_DC_POWER       uint16 = 850

	DEFAULT_SYSTEM_UNIT_ID = 100
)

type ModbusSystemReader struct {
	ModbusClient
	phases       int
	pollInterval time.Duration
	logger       *zap.Logger
}

func CreateModbusSystemReader(ip string, port uint, unitId uint8, phases int, timeout time.Duration,
	pollInterval time.Duration, logger *zap.Logger, instrumentation *Instrument) (*ModbusSystemReader, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if phases <= 0 {
		phases = 3
	}
	if phases > 3 {
		return nil, fmt.Errorf("unsupported number of phases %d", phases)
	}
	err = client.SetUnitId(unitId)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("target", "gx_modbus"), zap.Uint8("unit", unitId))
	return &ModbusSystemReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: instruments(traceLoggerInstrumentation(logger), instrumentation),
		},
		phases:       phases,
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

func (r *ModbusSystemReader) Open() error {
	return r.client.Open()
}

func (r *ModbusSystemReader) Close() error {
	return r.client.Close()
}

func (r *ModbusSystemReader) NumberOfPhases() int {
	return r.phases
}

// BatteryService is empty, the GX register map does not expose the battery ESS paths.
func (r *ModbusSystemReader) BatteryService() string {
	return ""
}

func (r *ModbusSystemReader) ReadSystemState() (*SystemState, error) {
	var state SystemState

	state.PhaseConsumption = make([]any, r.phases)
	regs, err := r.readRegisters(REG_AC_CONSUMPTION_L1, uint16(r.phases), modbus.HOLDING_REGISTER)
	if err = unavailable(err); err != nil {
		return nil, err
	}
	for i := range regs {
		state.PhaseConsumption[i] = float64(regs[i])
	}

	state.BatteryPower, err = r.optionalRegister(REG_BATTERY_POWER, func(v uint16) float64 { return float64(int16(v)) })
	if err != nil {
		return nil, err
	}

	state.PVPower, err = r.optionalRegister(REG_PV_DC_POWER, func(v uint16) float64 { return float64(v) })
	if err != nil {
		return nil, err
	}

	return &state, nil
}

func (r *ModbusSystemReader) optionalRegister(addr uint16, conv func(uint16) float64) (any, error) {
	value, err := r.readRegister(addr, modbus.HOLDING_REGISTER)
	if isUnavailable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conv(value), nil
}

func (r *ModbusSystemReader) ReadActiveInSource() (any, error) {
	source, err := r.readRegister(REG_ACTIVE_IN_SOURCE, modbus.HOLDING_REGISTER)
	if isUnavailable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return int(source), nil
}

// WatchActiveInSource polls the source register and reports every change, starting with the first read.
func (r *ModbusSystemReader) WatchActiveInSource(ctx context.Context, onChange func(ValueChange)) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	var last any
	first := true
	for {
		value, err := r.ReadActiveInSource()
		if err != nil {
			r.logger.Warn("gx_modbus: active input source read failed", zap.Error(err))
		} else if first || value != last {
			first = false
			last = value
			onChange(ValueChange{
				Service: SERVICE_SYSTEM,
				Path:    PATH_ACTIVE_IN_SOURCE,
				Value:   value,
			})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func isUnavailable(err error) bool {
	return errors.Is(err, modbus.ErrIllegalDataAddress) ||
		errors.Is(err, modbus.ErrGWTargetFailedToRespond) ||
		errors.Is(err, modbus.ErrGWPathUnavailable)
}

func unavailable(err error) error {
	if isUnavailable(err) {
		return nil
	}
	return err
}

func traceLoggerInstrumentation(logger *zap.Logger) *Instrument {
	if !logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return &Instrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Sugar().Debugf("venus [%s]: %d millis", fnName, readTime.Milliseconds())
		},
	}
}
