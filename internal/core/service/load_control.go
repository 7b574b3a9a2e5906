package service

import (
	"errors"
	"fmt"
	"math"

	"github.com/berfenger/essload2mqtt/internal/config"
	"github.com/berfenger/essload2mqtt/internal/core/control"
	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/core/port"

	"go.uber.org/zap"
)

var (
	ErrMissingSnapshot = errors.New("missing telemetry snapshot")
	ErrNonFinite       = errors.New("non-finite value")
)

type DefaultLoadControlLogic struct {
	PVDecay                control.AsymmetricDecay
	BatteryDecay           float64
	Setpoint               control.SetpointParams
	Gains                  control.Gains
	Bounds                 control.Bounds
	InitialOutput          float64
	GridDisconnectedSource int
	Logger                 *zap.Logger
}

func NewLoadControlLogic(cfg config.ControllerConfig, logger *zap.Logger) *DefaultLoadControlLogic {
	return &DefaultLoadControlLogic{
		PVDecay: control.AsymmetricDecay{
			Attack:  cfg.PVAttackDecay,
			Release: cfg.PVReleaseDecay,
		},
		BatteryDecay: cfg.BatteryDecay,
		Setpoint: control.SetpointParams{
			BulkPVFraction:       cfg.BulkPVFraction,
			BalancingBatteryGain: cfg.BalancingBatteryGain,
			FloatBatteryGain:     cfg.FloatBatteryGain,
		},
		Gains: control.Gains{
			Kc: cfg.Kc,
			Ki: cfg.Ki,
		},
		Bounds: control.Bounds{
			MaxOutput:   cfg.MaxOutput,
			ClampOutput: cfg.ClampOutput,
		},
		InitialOutput:          cfg.InitialOutput,
		GridDisconnectedSource: cfg.GridDisconnectedSource,
		Logger:                 logger,
	}
}

func (l *DefaultLoadControlLogic) InitialState() domain.ControllerState {
	return domain.ControllerState{
		Integral: control.InitialIntegral(l.InitialOutput, l.Gains),
	}
}

func (l *DefaultLoadControlLogic) Gate(acSource int, enabled bool) domain.GateState {
	if !enabled {
		return domain.GATE_DISABLED
	}
	if acSource != l.GridDisconnectedSource {
		return domain.GATE_GRID_CONNECTED
	}
	return domain.GATE_ACTIVE
}

func (l *DefaultLoadControlLogic) Tick(state domain.ControllerState, gate domain.GateState,
	snapshot *domain.TelemetrySnapshot) (domain.ControllerState, domain.LoadControlTickResult, error) {

	state.TickCount++

	if gate.Gated() {
		// freeze: averages and integral are kept as of the last active tick
		return state, domain.LoadControlTickResult{Output: 0, Gate: gate}, nil
	}
	if snapshot == nil {
		return state, domain.LoadControlTickResult{Gate: gate}, ErrMissingSnapshot
	}

	var missing []string
	var nonFinite error
	value := func(name string, v *float64) float64 {
		if v == nil {
			missing = append(missing, name)
			return 0
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			nonFinite = errors.Join(nonFinite, fmt.Errorf("%w: %s = %f", ErrNonFinite, name, *v))
		}
		return *v
	}

	var consumption float64
	for i, p := range snapshot.PhaseConsumption {
		consumption += value(fmt.Sprintf("consumption_l%d", i+1), p)
	}
	pv := value("pv_power", snapshot.PVPower)
	battery := value("battery_power", snapshot.BatteryPower)
	if nonFinite != nil {
		return state, domain.LoadControlTickResult{Gate: gate}, nonFinite
	}

	next := state
	next.PVAverage = l.PVDecay.Smooth(state.PVAverage, pv)
	next.BatteryPowerAverage = control.Smooth(state.BatteryPowerAverage, battery, l.BatteryDecay)

	target := control.BatteryTargetPower(snapshot.ChargeMode, next.BatteryPowerAverage, next.PVAverage, l.Setpoint)
	e := next.PVAverage - consumption - target

	step := control.Step(e, state.Integral, l.Gains, l.Bounds)
	next.Integral = step.Integral

	for name, v := range map[string]float64{
		"pv_average":            next.PVAverage,
		"battery_power_average": next.BatteryPowerAverage,
		"integral":              next.Integral,
		"surplus_power":         e,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return state, domain.LoadControlTickResult{Gate: gate}, fmt.Errorf("%w: %s", ErrNonFinite, name)
		}
	}

	if len(missing) > 0 && l.Logger != nil {
		l.Logger.Debug("load_control: missing telemetry defaulted to 0", zap.Strings("values", missing))
	}

	return next, domain.LoadControlTickResult{
		Output:           step.Output,
		Gate:             gate,
		ChargeMode:       snapshot.ChargeMode,
		Throttling:       snapshot.Throttling,
		Consumption:      consumption,
		PVPower:          pv,
		BatteryPower:     battery,
		TargetPower:      target,
		SurplusPower:     e,
		ProportionalTerm: step.ProportionalTerm,
		IntegralTerm:     step.IntegralTerm,
		Missing:          missing,
	}, nil
}

// ensure interface compliance
var _ port.LoadControlLogic = (*DefaultLoadControlLogic)(nil)
