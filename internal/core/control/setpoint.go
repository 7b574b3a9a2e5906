package control

import "github.com/berfenger/essload2mqtt/internal/core/domain"

type SetpointParams struct {
	BulkPVFraction       float64
	BalancingBatteryGain float64
	FloatBatteryGain     float64
}

// BatteryTargetPower returns the power reserved for the battery in the given charge mode.
// Float, unknown and unrecognized modes share the float formula.
func BatteryTargetPower(mode domain.ChargeMode, batteryAverage, pvAverage float64, p SetpointParams) float64 {
	switch mode.Kind {
	case domain.CHARGE_MODE_BULK:
		return p.BulkPVFraction * pvAverage
	case domain.CHARGE_MODE_BALANCING:
		return p.BalancingBatteryGain * batteryAverage
	case domain.CHARGE_MODE_SINK:
		return 0
	default:
		return p.FloatBatteryGain * batteryAverage
	}
}
