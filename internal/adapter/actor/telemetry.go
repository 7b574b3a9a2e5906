package actor

import (
	"context"
	"errors"
	"time"

	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/core/port"
	"github.com/berfenger/essload2mqtt/internal/metrics"
	"github.com/berfenger/essload2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// TelemetryActor owns the telemetry source. Reads run as background tasks and are
// answered one at a time, grid source changes are published on the event stream.
type TelemetryActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	source      port.TelemetrySource
	eventStream *eventstream.EventStream
	readTimeout time.Duration
	gridPath    string
	metrics     *metrics.Metrics
	watchCancel context.CancelFunc
	logger      *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

type watchFailed struct {
	err error
}

func NewTelemetryActor(source port.TelemetrySource, eventStream *eventstream.EventStream, readTimeout time.Duration,
	gridPath string, m *metrics.Metrics, logger *zap.Logger) *TelemetryActor {
	act := &TelemetryActor{
		source:      source,
		eventStream: eventStream,
		readTimeout: readTimeout,
		gridPath:    gridPath,
		metrics:     m,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_TELEMETRY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *TelemetryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *TelemetryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("telemetry@starting started")
		err := state.source.Open()
		if err != nil {
			state.logger.Error("telemetry@starting could not open telemetry source", zap.Error(err))
			panic(err)
		}
		info := state.source.Info()
		state.logger.Info("telemetry@starting source open",
			zap.String("source", info.Source),
			zap.Int("phases", info.NumberOfPhases),
			zap.String("battery_service", info.BatteryService))
		state.startWatch(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("telemetry@starting stash", actorutil.MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TelemetryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("telemetry@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TELEMETRY,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetTelemetryInfoRequest:
		info := state.source.Info()
		actorutil.ForRequest(msg).Respond(ctx, domain.GetTelemetryInfoResponse{Info: &info})
	case domain.GetTelemetryRequest:
		state.logger.Debug("telemetry@default GetTelemetryRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.readSnapshot),
			mapTaskResult[domain.GetTelemetryResponse](sender)).Recover(func(err error) backgroundTaskResult {
			// read errors and timeouts
			state.metrics.TelemetryReadFailed()
			return backgroundTaskResult{
				message: domain.GetTelemetryResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.readTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTelemetry)
	case domain.GetGridSourceRequest:
		state.logger.Debug("telemetry@default GetGridSourceRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.readGridSource),
			mapTaskResult[domain.GetGridSourceResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetGridSourceResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
					Path:               state.gridPath,
				},
				replyTo: sender,
			}
		}).WithTimeout(state.readTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingTelemetry)
	case watchFailed:
		// let the supervisor reopen the source
		state.logger.Error("telemetry@default watch failed", zap.Error(msg.err))
		panic(msg.err)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("telemetry@default unhandled", actorutil.MessageType(msg))
	}
}

func (state *TelemetryActor) WaitingTelemetry(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("telemetry@waiting backgroundTaskResult", actorutil.MessageType(msg.message))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_TELEMETRY,
			Healthy: true,
			State:   "reading",
		})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("telemetry@waiting stash", actorutil.MessageType(msg))
		state.stash.Stash(ctx, msg)
	}
}

func (state *TelemetryActor) startWatch(ctx actor.Context) {
	watchCtx, cancel := context.WithCancel(context.Background())
	state.watchCancel = cancel
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	go func() {
		err := state.source.Watch(watchCtx, func(n domain.ValueChangedNotification) {
			state.logger.Debug("telemetry@watch value changed", zap.String("path", n.Path), zap.Any("value", n.Value))
			state.eventStream.Publish(n)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			root.Send(self, watchFailed{err: err})
		}
	}()
}

func (state *TelemetryActor) stop() {
	if state.watchCancel != nil {
		state.watchCancel()
		state.watchCancel = nil
	}
	if err := state.source.Close(); err != nil {
		state.logger.Warn("telemetry: close failed", zap.Error(err))
	}
}

func (state *TelemetryActor) readSnapshot() (*domain.GetTelemetryResponse, error) {
	start := time.Now()
	snapshot, err := state.source.Read()
	if err != nil {
		return nil, err
	}
	return &domain.GetTelemetryResponse{
		Snapshot:     snapshot,
		ReadDuration: time.Since(start),
	}, nil
}

func (state *TelemetryActor) readGridSource() (*domain.GetGridSourceResponse, error) {
	value, err := state.source.ReadGridSource()
	if err != nil {
		return nil, err
	}
	return &domain.GetGridSourceResponse{
		Path:  state.gridPath,
		Value: value,
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
