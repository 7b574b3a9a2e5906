package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	TELEMETRY_SOURCE_DBUS   = "dbus"
	TELEMETRY_SOURCE_MODBUS = "modbus"
)

type Config struct {
	LogLevel   zapcore.Level
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Actuator   ActuatorConfig   `mapstructure:"actuator"`
	Controller ControllerConfig `mapstructure:"controller"`
	Port       uint             `mapstructure:"port"`
	HttpLog    bool             `mapstructure:"http_log"`
}

type TelemetryConfig struct {
	Source            string          `mapstructure:"source"`
	NumberOfPhases    uint            `mapstructure:"number_of_phases"`
	ReadTimeoutMillis uint32          `mapstructure:"read_timeout_millis"`
	GridSourcePath    string          `mapstructure:"grid_source_path"`
	DBus              DBusConfig      `mapstructure:"dbus"`
	ModbusTcp         ModbusTCPConfig `mapstructure:"modbus_tcp"`
}

type DBusConfig struct {
	// empty means system bus
	Address        string `mapstructure:"address"`
	BatteryService string `mapstructure:"battery_service"`
}

type ModbusTCPConfig struct {
	Host                   string
	Port                   uint
	UnitId                 uint   `mapstructure:"unit_id"`
	GridPollIntervalMillis uint32 `mapstructure:"grid_poll_interval_millis"`
}

type ActuatorConfig struct {
	Topic                string `mapstructure:"topic"`
	PublishTimeoutMillis uint32 `mapstructure:"publish_timeout_millis"`
}

type ControllerConfig struct {
	TickIntervalMillis     uint32  `mapstructure:"tick_interval_millis"`
	PVAttackDecay          float64 `mapstructure:"pv_attack_decay"`
	PVReleaseDecay         float64 `mapstructure:"pv_release_decay"`
	BatteryDecay           float64 `mapstructure:"battery_decay"`
	BulkPVFraction         float64 `mapstructure:"bulk_pv_fraction"`
	BalancingBatteryGain   float64 `mapstructure:"balancing_battery_gain"`
	FloatBatteryGain       float64 `mapstructure:"float_battery_gain"`
	Kc                     float64 `mapstructure:"kc"`
	Ki                     float64 `mapstructure:"ki"`
	MaxOutput              float64 `mapstructure:"max_output"`
	InitialOutput          float64 `mapstructure:"initial_output"`
	ClampOutput            bool    `mapstructure:"clamp_output"`
	GridDisconnectedSource int     `mapstructure:"grid_disconnected_source"`
	LogEveryTicks          uint    `mapstructure:"log_every_ticks"`
	StartEnabled           bool    `mapstructure:"start_enabled"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// CheckActuatorTopic accepts a full publish topic, wildcards are rejected.
func CheckActuatorTopic(topic string) error {
	if topic == "" {
		return errors.New("actuator topic is empty")
	}
	if strings.ContainsAny(topic, "#+") {
		return errors.New("actuator topic can not contain wildcards")
	}
	if strings.HasPrefix(topic, "/") || strings.HasSuffix(topic, "/") {
		return errors.New("actuator topic can not start or end with /")
	}
	return nil
}

func decayInRange(name string, value float64) error {
	if value <= 0 || value > 1 {
		return fmt.Errorf("config param controller.%s should be in (0,1]", name)
	}
	return nil
}

// Validate checks bounds of the controller, telemetry and actuator sections.
func (cfg *Config) Validate() error {
	ctrl := cfg.Controller
	if ctrl.Ki <= 0 {
		return errors.New("config param controller.ki should be > 0")
	}
	if ctrl.Kc < 0 {
		return errors.New("config param controller.kc should be >= 0")
	}
	if ctrl.MaxOutput <= 0 {
		return errors.New("config param controller.max_output should be > 0")
	}
	if ctrl.InitialOutput < 0 || ctrl.InitialOutput > ctrl.MaxOutput {
		return errors.New("config param controller.initial_output should be in [0,max_output]")
	}
	for name, value := range map[string]float64{
		"pv_attack_decay":  ctrl.PVAttackDecay,
		"pv_release_decay": ctrl.PVReleaseDecay,
		"battery_decay":    ctrl.BatteryDecay,
	} {
		if err := decayInRange(name, value); err != nil {
			return err
		}
	}
	if ctrl.TickIntervalMillis < 100 {
		return errors.New("config param controller.tick_interval_millis should be >= 100")
	}
	if ctrl.LogEveryTicks == 0 {
		return errors.New("config param controller.log_every_ticks should be > 0")
	}
	if cfg.Telemetry.NumberOfPhases > 3 {
		return errors.New("config param telemetry.number_of_phases should be <= 3")
	}
	switch cfg.Telemetry.Source {
	case TELEMETRY_SOURCE_DBUS:
	case TELEMETRY_SOURCE_MODBUS:
		if cfg.Telemetry.ModbusTcp.Host == "" {
			return errors.New("config param telemetry.modbus_tcp.host is required for modbus telemetry")
		}
		if cfg.Telemetry.ModbusTcp.GridPollIntervalMillis < 100 {
			return errors.New("config param telemetry.modbus_tcp.grid_poll_interval_millis should be >= 100")
		}
	default:
		return fmt.Errorf("unknown telemetry source %q", cfg.Telemetry.Source)
	}
	if cfg.Telemetry.ReadTimeoutMillis == 0 {
		return errors.New("config param telemetry.read_timeout_millis should be > 0")
	}
	if cfg.Telemetry.GridSourcePath == "" {
		return errors.New("config param telemetry.grid_source_path is required")
	}
	if err := CheckActuatorTopic(cfg.Actuator.Topic); err != nil {
		return err
	}
	return nil
}
