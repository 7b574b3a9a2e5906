package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Telemetry: TelemetryConfig{
			Source:            TELEMETRY_SOURCE_DBUS,
			ReadTimeoutMillis: 500,
			GridSourcePath:    "/Ac/ActiveIn/Source",
		},
		Actuator: ActuatorConfig{
			Topic:                "cmnd/tasmota_exess_power/Dimmer",
			PublishTimeoutMillis: 500,
		},
		Controller: ControllerConfig{
			TickIntervalMillis: 1000,
			PVAttackDecay:      0.25,
			PVReleaseDecay:     0.025,
			BatteryDecay:       0.01,
			Kc:                 1.0 / 500,
			Ki:                 0.005,
			MaxOutput:          100,
			InitialOutput:      45,
			LogEveryTicks:      10,
		},
	}
}

func TestCheckMQTTTopic(t *testing.T) {
	topic, err := CheckMQTTTopic("EssLoad")
	require.NoError(t, err)
	assert.Equal(t, "essload", topic)

	_, err = CheckMQTTTopic("ess/load")
	assert.Error(t, err)
}

func TestCheckActuatorTopic(t *testing.T) {
	assert.NoError(t, CheckActuatorTopic("cmnd/tasmota_exess_power/Dimmer"))
	assert.Error(t, CheckActuatorTopic(""))
	assert.Error(t, CheckActuatorTopic("cmnd/+/Dimmer"))
	assert.Error(t, CheckActuatorTopic("cmnd/#"))
	assert.Error(t, CheckActuatorTopic("/cmnd/dimmer"))
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateBounds(t *testing.T) {
	cases := map[string]func(*Config){
		"ki zero":           func(c *Config) { c.Controller.Ki = 0 },
		"kc negative":       func(c *Config) { c.Controller.Kc = -1 },
		"max output zero":   func(c *Config) { c.Controller.MaxOutput = 0 },
		"initial too high":  func(c *Config) { c.Controller.InitialOutput = 101 },
		"initial negative":  func(c *Config) { c.Controller.InitialOutput = -1 },
		"attack decay zero": func(c *Config) { c.Controller.PVAttackDecay = 0 },
		"release decay > 1": func(c *Config) { c.Controller.PVReleaseDecay = 1.5 },
		"battery decay":     func(c *Config) { c.Controller.BatteryDecay = -0.1 },
		"tick too fast":     func(c *Config) { c.Controller.TickIntervalMillis = 50 },
		"log every zero":    func(c *Config) { c.Controller.LogEveryTicks = 0 },
		"four phases":       func(c *Config) { c.Telemetry.NumberOfPhases = 4 },
		"unknown source":    func(c *Config) { c.Telemetry.Source = "serial" },
		"modbus no host":    func(c *Config) { c.Telemetry.Source = TELEMETRY_SOURCE_MODBUS },
		"no read timeout":   func(c *Config) { c.Telemetry.ReadTimeoutMillis = 0 },
		"no grid path":      func(c *Config) { c.Telemetry.GridSourcePath = "" },
		"wildcard topic":    func(c *Config) { c.Actuator.Topic = "cmnd/#" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateModbus(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Source = TELEMETRY_SOURCE_MODBUS
	cfg.Telemetry.ModbusTcp = ModbusTCPConfig{Host: "192.168.1.10", Port: 502, UnitId: 100, GridPollIntervalMillis: 1000}
	assert.NoError(t, cfg.Validate())
}
