package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/berfenger/essload2mqtt/pkg/venus"
)

type ChargeModeKind int

const (
	CHARGE_MODE_UNKNOWN ChargeModeKind = iota
	CHARGE_MODE_BULK
	CHARGE_MODE_BALANCING
	CHARGE_MODE_SINK
	CHARGE_MODE_FLOAT
	CHARGE_MODE_OTHER
)

// ChargeMode is the battery charge mode reported by the BMS. Raw keeps the
// reported value when Kind is CHARGE_MODE_OTHER.
type ChargeMode struct {
	Kind ChargeModeKind
	Raw  string
}

func (m ChargeMode) String() string {
	switch m.Kind {
	case CHARGE_MODE_BULK:
		return "bulk"
	case CHARGE_MODE_BALANCING:
		return "balancing"
	case CHARGE_MODE_SINK:
		return "sink"
	case CHARGE_MODE_FLOAT:
		return "float"
	case CHARGE_MODE_OTHER:
		return m.Raw
	default:
		return "unknown"
	}
}

func chargeModeFromCode(code int64) (ChargeMode, bool) {
	switch code {
	case 0:
		return ChargeMode{Kind: CHARGE_MODE_BULK}, true
	case 1:
		return ChargeMode{Kind: CHARGE_MODE_BALANCING}, true
	case 2:
		return ChargeMode{Kind: CHARGE_MODE_SINK}, true
	case 3:
		return ChargeMode{Kind: CHARGE_MODE_FLOAT}, true
	}
	return ChargeMode{}, false
}

// ParseChargeMode resolves the heterogeneous charge mode value (integer code,
// name or missing) into a ChargeMode.
func ParseChargeMode(value any) ChargeMode {
	if value == nil {
		return ChargeMode{Kind: CHARGE_MODE_UNKNOWN}
	}
	if s, ok := value.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "bulk":
			return ChargeMode{Kind: CHARGE_MODE_BULK}
		case "balancing":
			return ChargeMode{Kind: CHARGE_MODE_BALANCING}
		case "sink":
			return ChargeMode{Kind: CHARGE_MODE_SINK}
		case "float", "floating":
			return ChargeMode{Kind: CHARGE_MODE_FLOAT}
		}
		return ChargeMode{Kind: CHARGE_MODE_OTHER, Raw: s}
	}
	if f, ok := venus.ToFloat64(value); ok && f == math.Trunc(f) {
		if mode, ok := chargeModeFromCode(int64(f)); ok {
			return mode
		}
	}
	return ChargeMode{Kind: CHARGE_MODE_OTHER, Raw: fmt.Sprintf("%v", value)}
}

// ParseGridSource converts an ac source notification value. Missing values map to 0,
// ok is false when the value could not be interpreted as a number.
func ParseGridSource(value any) (int, bool) {
	if value == nil {
		return 0, true
	}
	f, ok := venus.ToFloat64(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// TelemetrySnapshot holds one read of the inputs used by a control tick. A nil
// field means the value was not available.
type TelemetrySnapshot struct {
	PhaseConsumption []*float64
	PVPower          *float64
	BatteryPower     *float64
	ChargeMode       ChargeMode
	Throttling       *bool
}

type TelemetryInfo struct {
	Source         string
	NumberOfPhases int
	BatteryService string
}
