package actorutil

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
)

// Ticker sends a message to an actor at a fixed interval. The first message is sent one
// interval after start.
type Ticker struct {
	scheduler quartz.Scheduler
	cancel    context.CancelFunc
}

func StartTicker(system *actor.ActorSystem, target *actor.PID, name string, interval time.Duration, msgFn func() any) (*Ticker, error) {
	scheduler := quartz.NewStdScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)

	tickJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		system.Root.Send(target, msgFn())
		return true, nil
	})
	err := scheduler.ScheduleJob(quartz.NewJobDetail(tickJob, quartz.NewJobKey(name)),
		quartz.NewSimpleTrigger(interval))
	if err != nil {
		cancel()
		return nil, err
	}
	return &Ticker{
		scheduler: scheduler,
		cancel:    cancel,
	}, nil
}

func (t *Ticker) Stop() {
	if t == nil {
		return
	}
	t.scheduler.Stop()
	t.cancel()
}
