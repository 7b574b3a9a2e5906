package events

import (
	"testing"

	"github.com/berfenger/essload2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func sensorIds(events []any) []string {
	var ids []string
	for _, ev := range events {
		ids = append(ids, ev.(domain.SensorUpdateEvent).SensorId())
	}
	return ids
}

func TestGatedTickEvents(t *testing.T) {
	events := TickResultToUpdateEvents(domain.ControllerState{}, domain.LoadControlTickResult{
		Gate: domain.GATE_GRID_CONNECTED,
	}, 1)

	assert.Equal(t, []string{domain.SENSOR_ID_LOAD_OUTPUT, domain.SENSOR_ID_LOAD_GATED, domain.SENSOR_ID_AC_SOURCE}, sensorIds(events))
	assert.Equal(t, int64(0), events[0].(domain.IntSensorUpdateEvent).Value)
	assert.True(t, events[1].(domain.BinarySensorUpdateEvent).Value)
	assert.Equal(t, int64(1), events[2].(domain.IntSensorUpdateEvent).Value)
}

func TestActiveTickEvents(t *testing.T) {
	events := TickResultToUpdateEvents(domain.ControllerState{PVAverage: 250, Integral: 8462.5}, domain.LoadControlTickResult{
		Output:       41,
		Gate:         domain.GATE_ACTIVE,
		ChargeMode:   domain.ChargeMode{Kind: domain.CHARGE_MODE_BULK},
		TargetPower:  187.5,
		SurplusPower: -537.5,
		Consumption:  600,
	}, 240)

	assert.Len(t, events, 10)
	assert.Contains(t, sensorIds(events), domain.SENSOR_ID_PI_INTEGRAL)
	assert.Equal(t, int64(41), events[0].(domain.IntSensorUpdateEvent).Value)
	assert.False(t, events[1].(domain.BinarySensorUpdateEvent).Value)
	assert.Equal(t, domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SENSOR_ID_CHARGE_MODE},
		Value:                  "bulk",
	}, events[len(events)-1])
}

func TestLoadControlSwitchEvent(t *testing.T) {
	ev := LoadControlSwitchEvent(true)
	assert.Equal(t, domain.SWITCH_ID_LOAD_CONTROL, ev.SensorId())
	assert.True(t, ev.Value)
}
