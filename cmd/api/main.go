package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/essload2mqtt/internal/adapter/actor"
	adtelemetry "github.com/berfenger/essload2mqtt/internal/adapter/telemetry"
	"github.com/berfenger/essload2mqtt/internal/config"
	"github.com/berfenger/essload2mqtt/internal/core/actor"
	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/core/service"
	"github.com/berfenger/essload2mqtt/internal/metrics"
	"github.com/berfenger/essload2mqtt/internal/server"
	"github.com/berfenger/essload2mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, fatal <-chan error, done chan error) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal or a fatal controller failure.
	var cause error
	select {
	case <-ctx.Done():
		log.Println("shutting down gracefully, press Ctrl+C again to force")
	case cause = <-fatal:
		log.Printf("shutting down after fatal error: %v", cause)
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- cause
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	logger.Info("essload2mqtt starting", zap.String("version", versioninfo.Short()))

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	m := metrics.NewMetrics()

	// init telemetry actor provider
	telemetryProv, err := telemetryActorProvider(cfg, m, logger)
	if err != nil {
		logger.Error("telemetry source", zap.Error(err))
		os.Exit(1)
	}

	fatal := make(chan error, 1)
	onFatal := func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, telemetryProv, mqttActorProvider(cfg, logger),
			loadControlActorProvider(cfg, m, logger), onFatal, logger)
	}, pactor.WithSupervisor(actor.NewMasterSupervisorStrategy(logger)))
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("spawn master", zap.Error(err))
		os.Exit(1)
	}

	server := server.NewServer(*cfg, ctx, pid, m)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan error, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, fatal, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	cause := <-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()

	if cause != nil {
		logger.Sync()
		os.Exit(1)
	}
}

func initConfig() (*config.Config, error) {

	// alias PORT => ESSLOAD_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("ESSLOAD_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("essload")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func telemetryActorProvider(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (actor.TelemetryActorProvider, error) {

	source, err := adtelemetry.CreateTelemetrySource(cfg.Telemetry, logger, m.TelemetryInstrument())
	if err != nil {
		return nil, err
	}

	readTimeout := time.Duration(cfg.Telemetry.ReadTimeoutMillis) * time.Millisecond
	return func(es *eventstream.EventStream) *adactor.TelemetryActor {
		return adactor.NewTelemetryActor(source, es, readTimeout, cfg.Telemetry.GridSourcePath, m, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func loadControlActorProvider(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) actor.LoadControlActorProvider {
	return func(telemetryActor, mqttActor *pactor.PID, es *eventstream.EventStream) *actor.LoadControlActor {
		logic := service.NewLoadControlLogic(cfg.Controller, logger)
		return actor.NewLoadControlActor(cfg, telemetryActor, mqttActor, es, logic, m, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)

	viper.SetDefault("telemetry.source", config.TELEMETRY_SOURCE_DBUS)
	viper.SetDefault("telemetry.number_of_phases", 0)
	viper.SetDefault("telemetry.read_timeout_millis", 800)
	viper.SetDefault("telemetry.grid_source_path", "/Ac/ActiveIn/Source")
	viper.SetDefault("telemetry.dbus.address", "")
	viper.SetDefault("telemetry.dbus.battery_service", "")
	viper.SetDefault("telemetry.modbus_tcp.host", "")
	viper.SetDefault("telemetry.modbus_tcp.port", 502)
	viper.SetDefault("telemetry.modbus_tcp.unit_id", 100)
	viper.SetDefault("telemetry.modbus_tcp.grid_poll_interval_millis", 1000)

	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.base_topic", "essload")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")

	viper.SetDefault("actuator.topic", "cmnd/tasmota_exess_power/Dimmer")
	viper.SetDefault("actuator.publish_timeout_millis", 800)

	viper.SetDefault("controller.tick_interval_millis", 1000)
	viper.SetDefault("controller.pv_attack_decay", 0.25)
	viper.SetDefault("controller.pv_release_decay", 0.025)
	viper.SetDefault("controller.battery_decay", 0.01)
	viper.SetDefault("controller.bulk_pv_fraction", 0.75)
	viper.SetDefault("controller.balancing_battery_gain", -0.5)
	viper.SetDefault("controller.float_battery_gain", -0.5)
	viper.SetDefault("controller.kc", 1.0/500)
	viper.SetDefault("controller.ki", 0.005)
	viper.SetDefault("controller.max_output", 100)
	viper.SetDefault("controller.initial_output", 45)
	viper.SetDefault("controller.clamp_output", true)
	viper.SetDefault("controller.grid_disconnected_source", 240)
	viper.SetDefault("controller.log_every_ticks", 10)
	viper.SetDefault("controller.start_enabled", true)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
