package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("essload_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "essload2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("ESS Load %s", md5HashShort(baseTopic)),
	}
}

// ControllerDevice describes the load controller attached to a telemetry source.
func ControllerDevice(baseTopic string, info *TelemetryInfo) Device {
	model := "Load controller"
	if info != nil {
		model = fmt.Sprintf("Load controller (%s, %d phases)", info.Source, info.NumberOfPhases)
	}
	return Device{
		Id:           fmt.Sprintf("essload_controller_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        model,
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("ESS Load controller %s", md5HashShort(baseTopic)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// ControllerSensors lists the diagnostic entities. Only the first one carries the full device.
func ControllerSensors(controllerDevice Device) []GenericSensor {

	var sensors []GenericSensor

	powerSensor := func(id, name string, enabled bool) GenericSensor {
		return GenericSensor{
			Device:            IdDevice(controllerDevice),
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_POWER,
			UnitOfMeasurement: "W",
			EnabledByDefault:  optionalBool(enabled),
			UniqueId:          uniqueId(controllerDevice.Id, id),
		}
	}

	// Load output
	sensors = append(sensors, GenericSensor{
		Device:            controllerDevice,
		Id:                SENSOR_ID_LOAD_OUTPUT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Load output",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "%",
		Icon:              "mdi:water-boiler",
		UniqueId:          uniqueId(controllerDevice.Id, SENSOR_ID_LOAD_OUTPUT),
	})

	sensors = append(sensors, powerSensor(SENSOR_ID_PV_AVERAGE, "PV power average", true))
	sensors = append(sensors, powerSensor(SENSOR_ID_BATTERY_POWER_AVERAGE, "Battery power average", true))
	sensors = append(sensors, powerSensor(SENSOR_ID_BATTERY_TARGET_POWER, "Battery target power", false))
	sensors = append(sensors, powerSensor(SENSOR_ID_SURPLUS_POWER, "Surplus power", true))
	sensors = append(sensors, powerSensor(SENSOR_ID_CONSUMPTION_POWER, "AC consumption", false))

	// PI integral accumulator
	sensors = append(sensors, GenericSensor{
		Device:           IdDevice(controllerDevice),
		Id:               SENSOR_ID_PI_INTEGRAL,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "PI integral",
		StateClass:       STATE_CLASS_MEASUREMENT,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(controllerDevice.Id, SENSOR_ID_PI_INTEGRAL),
	})

	// Battery charge mode
	sensors = append(sensors, GenericSensor{
		Device:     IdDevice(controllerDevice),
		Id:         SENSOR_ID_CHARGE_MODE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Battery charge mode",
		Icon:       "mdi:battery-charging",
		UniqueId:   uniqueId(controllerDevice.Id, SENSOR_ID_CHARGE_MODE),
	})

	// AC input source
	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(controllerDevice),
		Id:             SENSOR_ID_AC_SOURCE,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "AC input source",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:transmission-tower",
		UniqueId:       uniqueId(controllerDevice.Id, SENSOR_ID_AC_SOURCE),
	})

	// Gated
	sensors = append(sensors, GenericSensor{
		Device:     IdDevice(controllerDevice),
		Id:         SENSOR_ID_LOAD_GATED,
		SensorType: SENSOR_TYPE_BINARY,
		Name:       "Load gated",
		Icon:       "mdi:power-plug-off",
		UniqueId:   uniqueId(controllerDevice.Id, SENSOR_ID_LOAD_GATED),
	})

	return sensors
}

func LoadControlSwitches(controllerDevice Device) []GenericSwitch {
	return []GenericSwitch{{
		Device:   IdDevice(controllerDevice),
		Id:       SWITCH_ID_LOAD_CONTROL,
		Name:     "Load control",
		UniqueId: uniqueId(controllerDevice.Id, SWITCH_ID_LOAD_CONTROL),
		Icon:     "mdi:solar-power",
	}}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
