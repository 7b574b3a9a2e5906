package util

import (
	"github.com/berfenger/essload2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Telemetry: config.TelemetryConfig{
			Source:            config.TELEMETRY_SOURCE_DBUS,
			NumberOfPhases:    3,
			ReadTimeoutMillis: 500,
			GridSourcePath:    "/Ac/ActiveIn/Source",
			ModbusTcp: config.ModbusTCPConfig{
				Host:                   "-.-.-.-",
				Port:                   502,
				UnitId:                 100,
				GridPollIntervalMillis: 1000,
			},
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "essload",
			HADiscoveryTopic: "homeassistant",
		},
		Actuator: config.ActuatorConfig{
			Topic:                "cmnd/tasmota_exess_power/Dimmer",
			PublishTimeoutMillis: 500,
		},
		Controller: config.ControllerConfig{
			TickIntervalMillis:     1000,
			PVAttackDecay:          0.25,
			PVReleaseDecay:         0.025,
			BatteryDecay:           0.01,
			BulkPVFraction:         0.75,
			BalancingBatteryGain:   -0.5,
			FloatBatteryGain:       -0.5,
			Kc:                     1.0 / 500,
			Ki:                     0.005,
			MaxOutput:              100,
			InitialOutput:          45,
			ClampOutput:            true,
			GridDisconnectedSource: 240,
			LogEveryTicks:          10,
			StartEnabled:           true,
		},
		Port: 8080,
	}
}
