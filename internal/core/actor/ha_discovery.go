package actor

import (
	"errors"
	"time"

	"github.com/berfenger/essload2mqtt/internal/config"
	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type HADiscoveryActor struct {
	config                *config.Config
	behavior              actor.Behavior
	stash                 *actorutil.Stash
	telemetryActor        *actor.PID
	mqttActor             *actor.PID
	telemetryActorHealthy bool
	mqttActorHealthy      bool
	healthyRecv           int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, telemetryActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:         config,
		telemetryActor: telemetryActor,
		mqttActor:      mqttActor,
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check Telemetry and MQTT actor healthy
		state.healthyRecv = 0
		state.telemetryActorHealthy = false
		state.mqttActorHealthy = false
		// Telemetry Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.telemetryActor, domain.ActorHealthRequest{}, 5*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_TELEMETRY,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 5*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", actorutil.MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_TELEMETRY:
				state.telemetryActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {

			if state.telemetryActorHealthy && state.mqttActorHealthy {
				actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.telemetryActor, domain.GetTelemetryInfoRequest{}, 2*time.Second), func(err error) any {
					return domain.GetTelemetryInfoResponse{
						ActorResponseMixIn: domain.ErrorResponse(err),
					}
				})
				state.behavior.Become(state.WaitingInfoReceive)
				state.stash.UnstashAll(ctx)
			} else {
				panic(errors.New("MQTT Actor or Telemetry Actor are not healthy"))
			}
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", actorutil.MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {
	if _, ok := ctx.Message().(domain.ActorHealthRequest); ok {
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "done",
		})
	}
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetTelemetryInfoResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@info: GetTelemetryInfoResponse", zap.Any("info", msg.Info))

		sensors, switches := DiscoveryEntities(state.config.MQTT.BaseTopic, msg.Info)

		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors:  sensors,
			Switches: switches,
		})
		state.logger.Info("hadiscovery@info: discovery published", zap.Int("sensors", len(sensors)), zap.Int("switches", len(switches)))
		state.behavior.Become(state.Done)

	default:
		state.logger.Debug("hadiscovery@info: default recv", actorutil.MessageType(msg))
	}
}

// DiscoveryEntities lists the bridge and controller entities. The first entity of each
// device carries the full device description.
func DiscoveryEntities(baseTopic string, info *domain.TelemetryInfo) ([]domain.GenericSensor, []domain.GenericSwitch) {
	var sensors []domain.GenericSensor

	bridgeDevice := domain.BridgeDevice(baseTopic)
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)

	controllerDevice := domain.ControllerDevice(baseTopic, info)
	controllerDevice.ViaDevice = bridgeDevice.Id
	controllerSensors := domain.ControllerSensors(controllerDevice)
	if len(controllerSensors) > 0 {
		controllerSensors[0].Device = controllerDevice
	}
	sensors = append(sensors, controllerSensors...)

	return sensors, domain.LoadControlSwitches(controllerDevice)
}
