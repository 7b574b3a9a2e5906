package domain

type GateState int

const (
	GATE_ACTIVE GateState = iota
	GATE_GRID_CONNECTED
	GATE_DISABLED
)

func (g GateState) String() string {
	switch g {
	case GATE_ACTIVE:
		return "active"
	case GATE_GRID_CONNECTED:
		return "grid_connected"
	case GATE_DISABLED:
		return "disabled"
	}
	return "unknown"
}

func (g GateState) Gated() bool {
	return g != GATE_ACTIVE
}

// ControllerState is the state carried between control ticks.
type ControllerState struct {
	PVAverage           float64
	BatteryPowerAverage float64
	Integral            float64
	TickCount           uint64
}

// LoadControlTickResult describes the outcome of one control tick. Only Output,
// Gate and ChargeMode are meaningful for gated ticks.
type LoadControlTickResult struct {
	Output           int
	Gate             GateState
	ChargeMode       ChargeMode
	Throttling       *bool
	Consumption      float64
	PVPower          float64
	BatteryPower     float64
	TargetPower      float64
	SurplusPower     float64
	ProportionalTerm float64
	IntegralTerm     float64
	Missing          []string
}

type ControllerStatus struct {
	State    ControllerState
	Last     LoadControlTickResult
	Enabled  bool
	ACSource int
}
