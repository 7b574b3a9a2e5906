package events

import (
	. "github.com/berfenger/essload2mqtt/internal/core/domain"
)

// TickResultToUpdateEvents maps a tick to the diagnostic sensors. Controller sensors are
// only emitted for active ticks, gated ticks keep their last published value.
func TickResultToUpdateEvents(state ControllerState, result LoadControlTickResult, acSource int) []any {
	var events []any

	// Load output
	events = append(events, IntSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_LOAD_OUTPUT,
		},
		Value: int64(result.Output),
	})
	// Gated
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_LOAD_GATED,
		},
		Value: result.Gate.Gated(),
	})
	// AC input source
	events = append(events, IntSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_AC_SOURCE,
		},
		Value: int64(acSource),
	})

	if result.Gate.Gated() {
		return events
	}

	power := func(id string, value float64) FloatSensorUpdateEvent {
		return FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: id,
			},
			Value:    value,
			Decimals: 1,
		}
	}
	events = append(events, power(SENSOR_ID_PV_AVERAGE, state.PVAverage))
	events = append(events, power(SENSOR_ID_BATTERY_POWER_AVERAGE, state.BatteryPowerAverage))
	events = append(events, power(SENSOR_ID_BATTERY_TARGET_POWER, result.TargetPower))
	events = append(events, power(SENSOR_ID_SURPLUS_POWER, result.SurplusPower))
	events = append(events, power(SENSOR_ID_CONSUMPTION_POWER, result.Consumption))
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PI_INTEGRAL,
		},
		Value:    state.Integral,
		Decimals: 2,
	})
	// Battery charge mode
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGE_MODE,
		},
		Value: result.ChargeMode.String(),
	})

	return events
}

func LoadControlSwitchEvent(enabled bool) SwitchSensorUpdateEvent {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_LOAD_CONTROL,
		},
		Value: enabled,
	}
}
