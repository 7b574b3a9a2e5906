package actor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	adactor "github.com/berfenger/essload2mqtt/internal/adapter/actor"
	"github.com/berfenger/essload2mqtt/internal/config"
	"github.com/berfenger/essload2mqtt/internal/core/domain"
	. "github.com/berfenger/essload2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

var ErrLoadControlTerminated = errors.New("load control terminated")

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type TelemetryActorProvider func(*eventstream.EventStream) *adactor.TelemetryActor

type LoadControlActorProvider func(telemetryActor, mqttActor *actor.PID, eventStream *eventstream.EventStream) *LoadControlActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck       healthCheckResult
	eventStream              *eventstream.EventStream
	telemetryActor           *actor.PID
	mqttActor                *actor.PID
	loadControlActor         *actor.PID
	telemetryActorProvider   TelemetryActorProvider
	mqttActorProvider        MQTTActorProvider
	loadControlActorProvider LoadControlActorProvider
	onFatal                  func(error)
	logger                   *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

var healthCheckedActors = []string{domain.ACTOR_ID_TELEMETRY, domain.ACTOR_ID_MQTT, domain.ACTOR_ID_LOAD_CONTROL}

// NewMasterOfPuppetsActor supervises the service actors. onFatal is called once the load
// control actor stops, the controller never runs degraded.
func NewMasterOfPuppetsActor(config config.Config, telemetryActorProvider TelemetryActorProvider, mqttActorProvider MQTTActorProvider,
	loadControlActorProvider LoadControlActorProvider, onFatal func(error), logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                   config,
		behavior:                 actor.NewBehavior(),
		stash:                    &Stash{},
		logger:                   ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:              &eventstream.EventStream{},
		telemetryActorProvider:   telemetryActorProvider,
		mqttActorProvider:        mqttActorProvider,
		loadControlActorProvider: loadControlActorProvider,
		onFatal:                  onFatal,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start Telemetry child
		telemetryActorPID, err := state.startTelemetryActor(ctx)
		if err != nil {
			panic(err)
		}
		state.telemetryActor = telemetryActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start LoadControl child
		loadControlActorPID, err := state.startLoadControlActor(ctx)
		if err != nil {
			panic(err)
		}
		state.loadControlActor = loadControlActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range map[string]*actor.PID{
			domain.ACTOR_ID_TELEMETRY:    state.telemetryActor,
			domain.ACTOR_ID_MQTT:         state.mqttActor,
			domain.ACTOR_ID_LOAD_CONTROL: state.loadControlActor,
		} {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetControllerStatusRequest:
		ctx.RequestWithCustomSender(state.loadControlActor, msg, ctx.Sender())
	case adactor.ParsedCommand:
		// redirect parsedCommand to actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid command", zap.Error(err))
				return
			}
			switch pcmd := cmd.(type) {
			case domain.LoadControlRequest:
				ctx.Send(state.loadControlActor, pcmd)
			}
		}
	case *actor.Terminated:
		state.onChildTerminated(msg)
	default:
		state.logger.Debug("master@default unhandled", MessageType(msg))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	case *actor.Terminated:
		state.onChildTerminated(msg)
	default:
		state.logger.Debug("master@healthcheck stash", MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) onChildTerminated(msg *actor.Terminated) {
	if state.loadControlActor != nil && msg.Who.Id == state.loadControlActor.Id {
		state.logger.Error("master@default load control terminated")
		if state.onFatal != nil {
			state.onFatal(ErrLoadControlTerminated)
		}
		return
	}
	state.logger.Warn("master@default child terminated", zap.String("who", msg.Who.Id))
}

func (state *MasterOfPuppetsActor) startTelemetryActor(ctx actor.Context) (*actor.PID, error) {

	telemetryProps := actor.PropsFromProducer(func() actor.Actor {
		return state.telemetryActorProvider(state.eventStream)
	})
	telemetryActorPID, err := ctx.SpawnNamed(telemetryProps, domain.ACTOR_ID_TELEMETRY)
	if err != nil {
		return nil, err
	}

	return telemetryActorPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	})
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startLoadControlActor(ctx actor.Context) (*actor.PID, error) {

	loadControlProps := actor.PropsFromProducer(func() actor.Actor {
		return state.loadControlActorProvider(state.telemetryActor, state.mqttActor, state.eventStream)
	})
	loadControlPID, err := ctx.SpawnNamed(loadControlProps, domain.ACTOR_ID_LOAD_CONTROL)
	if err != nil {
		return nil, err
	}

	return loadControlPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.telemetryActor, state.mqttActor, state.logger)
	})
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

// MasterSupervisorStrategy restarts failed children with backoff, except the load control
// actor: a failed control step is fatal and it is stopped, never restarted with a fresh state.
type MasterSupervisorStrategy struct {
	restart actor.SupervisorStrategy
	logger  *zap.Logger
}

func NewMasterSupervisorStrategy(logger *zap.Logger) *MasterSupervisorStrategy {
	return &MasterSupervisorStrategy{
		restart: actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second),
		logger:  logger,
	}
}

func (s *MasterSupervisorStrategy) HandleFailure(system *actor.ActorSystem, supervisor actor.Supervisor, child *actor.PID,
	rs *actor.RestartStatistics, reason interface{}, message interface{}) {
	if strings.HasSuffix(child.Id, "/"+domain.ACTOR_ID_LOAD_CONTROL) {
		s.logger.Error("master: load control failure", zap.String("reason", fmt.Sprintf("%v", reason)))
		supervisor.StopChildren(child)
		return
	}
	s.logger.Warn("master: child failure", zap.String("child", child.Id), zap.String("reason", fmt.Sprintf("%v", reason)))
	s.restart.HandleFailure(system, supervisor, child, rs, reason, message)
}

func (state *healthCheckResult) reset() {
	state.healthy = make(map[string]bool, len(healthCheckedActors))
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == len(healthCheckedActors)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range healthCheckedActors {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
