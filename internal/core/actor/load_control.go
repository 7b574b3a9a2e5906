package actor

import (
	"strconv"
	"time"

	"github.com/berfenger/essload2mqtt/internal/config"
	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/core/events"
	"github.com/berfenger/essload2mqtt/internal/core/port"
	"github.com/berfenger/essload2mqtt/internal/metrics"
	. "github.com/berfenger/essload2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// LoadControlTick triggers one control step.
type LoadControlTick struct {
}

type LoadControlActor struct {
	ActorWithStates
	stash          *Stash
	telemetryActor *actor.PID
	mqttActor      *actor.PID
	config         *config.Config
	eventStream    *eventstream.EventStream
	subscription   *eventstream.Subscription
	logic          port.LoadControlLogic
	metrics        *metrics.Metrics
	ticker         *Ticker
	manualTicks    bool

	state     domain.ControllerState
	last      domain.LoadControlTickResult
	acSource  int
	gridKnown bool
	enabled   bool

	logger *zap.Logger
}

type LoadControlOption func(*LoadControlActor)

// WithManualTicks disables the internal ticker, ticks are sent as LoadControlTick messages.
func WithManualTicks() LoadControlOption {
	return func(a *LoadControlActor) {
		a.manualTicks = true
	}
}

func NewLoadControlActor(config *config.Config, telemetryActor, mqttActor *actor.PID, eventStream *eventstream.EventStream,
	logic port.LoadControlLogic, m *metrics.Metrics, logger *zap.Logger, opts ...LoadControlOption) *LoadControlActor {
	act := &LoadControlActor{
		config:         config,
		telemetryActor: telemetryActor,
		mqttActor:      mqttActor,
		eventStream:    eventStream,
		logic:          logic,
		metrics:        m,
		stash:          &Stash{},
		logger:         ActorLogger(domain.ACTOR_ID_LOAD_CONTROL, logger),
		state:          logic.InitialState(),
		enabled:        config.Controller.StartEnabled,
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	for _, opt := range opts {
		opt(act)
	}
	act.Become(LCStartingState{
		actor: act,
	})
	return act
}

func (state *LoadControlActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type LCStartingState struct {
	ActorState
	actor *LoadControlActor
}

func (state LCStartingState) Name() string {
	return "starting"
}

func (state LCStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("load_control@starting started")
		state.actor.subscribeNotifications(ctx)

		// the load starts off until the first tick
		state.actor.publishOutput(ctx, 0)
		state.actor.eventStream.Publish(events.LoadControlSwitchEvent(state.actor.enabled))

		state.actor.requestGridSource(ctx)
	case domain.GetGridSourceResponse:
		state.actor.onGridSource(msg)

		if !state.actor.manualTicks {
			ticker, err := StartTicker(ctx.ActorSystem(), ctx.Self(), domain.ACTOR_ID_LOAD_CONTROL,
				time.Duration(state.actor.config.Controller.TickIntervalMillis)*time.Millisecond,
				func() any { return LoadControlTick{} })
			if err != nil {
				state.actor.logger.Error("load_control@starting could not start ticker", zap.Error(err))
				panic(err)
			}
			state.actor.ticker = ticker
		}
		state.actor.logger.Info("load_control@starting running",
			zap.Int("ac_source", state.actor.acSource),
			zap.Bool("enabled", state.actor.enabled),
			zap.Float64("integral", state.actor.state.Integral))
		state.actor.Become(LCRunningState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case domain.PublishMessageResponse:
		state.actor.onPublishResult(msg)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_LOAD_CONTROL,
			Healthy: true,
			State:   state.actor.StateName(),
		})
	case LoadControlTick:
		state.actor.logger.Debug("load_control@starting tick dropped")
	case *actor.Stopping:
		state.actor.stop()
	case *actor.Restarting:
		state.actor.stop()
	default:
		state.actor.logger.Debug("load_control@starting: stash", MessageType(msg))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Running state

type LCRunningState struct {
	ActorState
	actor *LoadControlActor
}

func (state LCRunningState) Name() string {
	return "running"
}

func (state LCRunningState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case LoadControlTick:
		if !state.actor.gridKnown {
			state.actor.requestGridSource(ctx)
		}
		gate := state.actor.logic.Gate(state.actor.acSource, state.actor.enabled)
		if gate.Gated() {
			state.actor.step(ctx, gate, nil)
			return
		}
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.telemetryActor, domain.GetTelemetryRequest{},
			state.actor.telemetryTimeout()), func(err error) any {
			return domain.GetTelemetryResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.actor.BecomeStacked(LCAwaitTelemetryState{
			actor: state.actor,
			gate:  gate,
		})
	case domain.ValueChangedNotification:
		state.actor.onNotification(msg)
	case domain.GetGridSourceResponse:
		state.actor.onGridSource(msg)
	case domain.LoadControlEnableRequest:
		changed := state.actor.enabled != msg.Enable
		state.actor.enabled = msg.Enable
		state.actor.logger.Info("load_control@running switch", zap.Bool("enabled", msg.Enable), zap.Bool("changed", changed))
		state.actor.eventStream.Publish(events.LoadControlSwitchEvent(msg.Enable))
		if req := ForRequest(msg); req.Expected(ctx) {
			req.Respond(ctx, domain.LoadControlEnableResponse{Changed: changed})
		}
	case domain.PublishMessageResponse:
		state.actor.onPublishResult(msg)
	case domain.GetControllerStatusRequest:
		ForRequest(msg).Respond(ctx, state.actor.status())
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_LOAD_CONTROL,
			Healthy: true,
			State:   state.actor.StateName() + "/" + state.actor.logic.Gate(state.actor.acSource, state.actor.enabled).String(),
		})
	case *actor.Stopping:
		state.actor.stop()
	case *actor.Restarting:
		state.actor.stop()
	default:
		state.actor.logger.Debug("load_control@running unhandled", MessageType(msg))
	}
}

// Awaiting telemetry state. Ticks arriving while a read is in flight are dropped.

type LCAwaitTelemetryState struct {
	ActorState
	actor *LoadControlActor
	gate  domain.GateState
}

func (state LCAwaitTelemetryState) Name() string {
	return "awaitTelemetry"
}

func (state LCAwaitTelemetryState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetTelemetryResponse:
		if msg.HasResponseError() || msg.Snapshot == nil {
			state.actor.logger.Warn("load_control@awaitTelemetry telemetry read failed, load off",
				zap.Error(msg.GetResponseError()))
			state.actor.readFailed(ctx, state.gate)
		} else {
			state.actor.step(ctx, state.gate, msg.Snapshot)
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case LoadControlTick:
		state.actor.logger.Debug("load_control@awaitTelemetry tick dropped")
		state.actor.metrics.TickDropped()
	case domain.PublishMessageResponse:
		state.actor.onPublishResult(msg)
	case domain.GetControllerStatusRequest:
		ForRequest(msg).Respond(ctx, state.actor.status())
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_LOAD_CONTROL,
			Healthy: true,
			State:   state.actor.StateName(),
		})
	case *actor.Stopping:
		state.actor.stop()
	case *actor.Restarting:
		state.actor.stop()
	default:
		state.actor.logger.Debug("load_control@awaitTelemetry: stash", MessageType(msg))
		state.actor.stash.Stash(ctx, msg)
	}
}

// step runs the control logic and emits the command. Errors are fatal.
func (a *LoadControlActor) step(ctx actor.Context, gate domain.GateState, snapshot *domain.TelemetrySnapshot) {
	next, result, err := a.logic.Tick(a.state, gate, snapshot)
	if err != nil {
		a.logger.Error("load_control: control step failed", zap.Error(err), zap.Any("state", a.state))
		panic(err)
	}
	a.apply(ctx, next, result)
}

// readFailed commands the load off and keeps the controller state, like a gated tick.
func (a *LoadControlActor) readFailed(ctx actor.Context, gate domain.GateState) {
	next := a.state
	next.TickCount++
	a.apply(ctx, next, domain.LoadControlTickResult{Output: 0, Gate: gate})
}

func (a *LoadControlActor) apply(ctx actor.Context, next domain.ControllerState, result domain.LoadControlTickResult) {
	a.state = next
	a.last = result
	a.publishOutput(ctx, result.Output)
	a.metrics.ObserveTick(next, result)

	if next.TickCount%uint64(a.config.Controller.LogEveryTicks) == 0 {
		a.logger.Info("load_control: tick",
			zap.Uint64("tick", next.TickCount),
			zap.Int("output", result.Output),
			zap.Stringer("gate", result.Gate),
			zap.Stringer("charge_mode", result.ChargeMode),
			zap.Float64("pv_average", next.PVAverage),
			zap.Float64("battery_power_average", next.BatteryPowerAverage),
			zap.Float64("consumption", result.Consumption),
			zap.Float64("target", result.TargetPower),
			zap.Float64("error", result.SurplusPower),
			zap.Float64("p", result.ProportionalTerm),
			zap.Float64("i", result.IntegralTerm),
			zap.Float64("integral", next.Integral),
			zap.Boolp("throttling", result.Throttling),
			zap.Strings("missing", result.Missing))
		for _, ev := range events.TickResultToUpdateEvents(next, result, a.acSource) {
			a.eventStream.Publish(ev)
		}
	}
}

func (a *LoadControlActor) publishOutput(ctx actor.Context, output int) {
	timeout := time.Duration(a.config.Actuator.PublishTimeoutMillis) * time.Millisecond
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.mqttActor, domain.PublishMessageRequest{
		Topic:   a.config.Actuator.Topic,
		Payload: strconv.Itoa(output),
		Timeout: timeout,
	}, timeout+500*time.Millisecond), func(err error) any {
		return domain.PublishMessageResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
}

func (a *LoadControlActor) onPublishResult(msg domain.PublishMessageResponse) {
	if msg.HasResponseError() {
		a.logger.Warn("load_control: actuator publish failed", zap.Error(msg.GetResponseError()))
		a.metrics.PublishFailed()
	}
}

func (a *LoadControlActor) requestGridSource(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.telemetryActor, domain.GetGridSourceRequest{},
		a.telemetryTimeout()), func(err error) any {
		return domain.GetGridSourceResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
}

func (a *LoadControlActor) onGridSource(msg domain.GetGridSourceResponse) {
	if msg.HasResponseError() {
		a.logger.Warn("load_control: grid source read failed, load gated until known", zap.Error(msg.GetResponseError()))
		return
	}
	a.setACSource(msg.Value)
	a.gridKnown = true
}

func (a *LoadControlActor) onNotification(msg domain.ValueChangedNotification) {
	if msg.Path != a.config.Telemetry.GridSourcePath {
		return
	}
	a.setACSource(msg.Value)
	a.gridKnown = true
}

func (a *LoadControlActor) setACSource(value any) {
	source, ok := domain.ParseGridSource(value)
	if !ok {
		a.logger.Warn("load_control: invalid ac source value, assuming grid connected", zap.Any("value", value))
	}
	if source != a.acSource {
		a.logger.Info("load_control: ac source changed", zap.Int("from", a.acSource), zap.Int("to", source))
	}
	a.acSource = source
	a.metrics.ObserveACSource(source)
}

func (a *LoadControlActor) status() domain.GetControllerStatusResponse {
	return domain.GetControllerStatusResponse{
		Status: domain.ControllerStatus{
			State:    a.state,
			Last:     a.last,
			Enabled:  a.enabled,
			ACSource: a.acSource,
		},
	}
}

func (a *LoadControlActor) telemetryTimeout() time.Duration {
	return time.Duration(a.config.Telemetry.ReadTimeoutMillis)*time.Millisecond + 500*time.Millisecond
}

func (a *LoadControlActor) subscribeNotifications(ctx actor.Context) {
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	a.subscription = a.eventStream.Subscribe(func(evt any) {
		if n, ok := evt.(domain.ValueChangedNotification); ok {
			root.Send(self, n)
		}
	})
}

func (a *LoadControlActor) stop() {
	a.ticker.Stop()
	a.ticker = nil
	if a.subscription != nil {
		a.eventStream.Unsubscribe(a.subscription)
		a.subscription = nil
	}
}
