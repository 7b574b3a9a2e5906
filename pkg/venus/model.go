package venus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	SERVICE_SYSTEM         = "com.victronenergy.system"
	SERVICE_BATTERY_PREFIX = "com.victronenergy.battery."
	AGGREGATE_SUFFIX       = ".aggregate"

	PATH_PV_POWER         = "/Dc/Pv/Power"
	PATH_BATTERY_POWER    = "/Dc/Battery/Power"
	PATH_NUMBER_OF_PHASES = "/Ac/Consumption/NumberOfPhases"
	PATH_ACTIVE_IN_SOURCE = "/Ac/ActiveIn/Source"
	PATH_CHARGE_MODE      = "/Ess/Chgmode"
	PATH_THROTTLING       = "/Ess/Throttling"

	// ActiveIn/Source value when no AC input is connected
	ACTIVE_IN_SOURCE_NOT_CONNECTED = 240
)

func PhaseConsumptionPath(phase int) string {
	return fmt.Sprintf("/Ac/Consumption/L%d/Power", phase)
}

// ToFloat64 converts the numeric types a bus value can carry.
func ToFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// SystemState holds raw bus values. A nil entry is an invalid or unavailable value.
type SystemState struct {
	PhaseConsumption []any
	PVPower          any
	BatteryPower     any
	ChargeMode       any
	Throttling       any
}

type ValueChange struct {
	Service string
	Path    string
	Value   any
}

type SystemReader interface {
	Open() error
	Close() error
	NumberOfPhases() int
	BatteryService() string
	ReadSystemState() (*SystemState, error)
	ReadActiveInSource() (any, error)
	WatchActiveInSource(ctx context.Context, onChange func(ValueChange)) error
}
