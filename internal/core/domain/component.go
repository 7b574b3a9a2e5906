package domain

const (
	SENSOR_ID_BRIDGE_STATE          = "bridge"
	SENSOR_ID_LOAD_OUTPUT           = "load_output"
	SENSOR_ID_PV_AVERAGE            = "pv_average"
	SENSOR_ID_BATTERY_POWER_AVERAGE = "battery_power_average"
	SENSOR_ID_BATTERY_TARGET_POWER  = "battery_target_power"
	SENSOR_ID_SURPLUS_POWER         = "surplus_power"
	SENSOR_ID_CONSUMPTION_POWER     = "consumption_power"
	SENSOR_ID_PI_INTEGRAL           = "pi_integral"
	SENSOR_ID_CHARGE_MODE           = "charge_mode"
	SENSOR_ID_AC_SOURCE             = "ac_source"
	SENSOR_ID_LOAD_GATED            = "load_gated"
	SWITCH_ID_LOAD_CONTROL          = "load_control"
	STATE_CLASS_MEASUREMENT         = "measurement"
	DEVICE_CLASS_POWER              = "power"
	DEVICE_CLASS_POWER_FACTOR       = "power_factor"
	DEVICE_CLASS_CONNECTIVITY       = "connectivity"
	DEVICE_CLASS_RUNNING            = "running"
	ENTITY_CLASS_DIAGNOSTIC         = "diagnostic"
	ENTITY_CLASS_CONFIG             = "config"
	SENSOR_TYPE_SENSOR              = "sensor"
	SENSOR_TYPE_BINARY              = "binary_sensor"
)

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, duration, total_increasing (for acc energy)
	DeviceClass       string // voltage, current, power, energy
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}

type GenericSwitch struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}
