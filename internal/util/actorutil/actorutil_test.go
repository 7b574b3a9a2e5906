package actorutil

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tick struct{}

func TestTicker(t *testing.T) {
	system := NewActorSystemWithZapLogger(zap.NewNop())
	var count atomic.Int32
	pid := system.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if _, ok := ctx.Message().(tick); ok {
			count.Add(1)
		}
	}))

	ticker, err := StartTicker(system, pid, "test_tick", 50*time.Millisecond, func() any { return tick{} })
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return count.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	ticker.Stop()

	stopped := count.Load()
	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, count.Load(), stopped+1)
}

func TestParsedMQTTCommandToCommand(t *testing.T) {
	req, err := ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{
		DeviceId: domain.SWITCH_ID_LOAD_CONTROL,
		Command:  "switch",
		Payload:  "off",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LoadControlEnableRequest{Enable: false}, req)

	_, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: "battery_hold", Payload: "on"})
	assert.ErrorIs(t, err, mqtt.ErrInvalidCommand)

	_, err = ParsedMQTTCommandToCommand(mqtt.ParsedMQTTCommand{DeviceId: domain.SWITCH_ID_LOAD_CONTROL, Payload: "1"})
	assert.ErrorIs(t, err, mqtt.ErrInvalidCommand)
}

type testResult struct {
	Value int
}

func TestBackgroundTaskRecover(t *testing.T) {
	system := NewActorSystemWithZapLogger(zap.NewNop())
	results := make(chan testResult, 1)

	collector := system.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if r, ok := ctx.Message().(testResult); ok {
			results <- r
		}
	}))
	system.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if _, ok := ctx.Message().(*actor.Started); ok {
			NewBackgroundTask(ctx, func() (*testResult, error) {
				return nil, errors.New("read failed")
			}).Recover(func(err error) testResult {
				return testResult{Value: -1}
			}).WithTimeout(time.Second).PipeTo(collector)
		}
	}))

	select {
	case r := <-results:
		assert.Equal(t, -1, r.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
}

type namedState struct {
	name string
}

func (s namedState) Name() string {
	return s.name
}

func (s namedState) Receive(actor.Context) {}

func TestActorWithStatesNames(t *testing.T) {
	s := ActorWithStates{Behavior: actor.NewBehavior()}
	assert.Equal(t, "", s.StateName())

	s.Become(namedState{name: "starting"})
	assert.Equal(t, "starting", s.StateName())

	s.Become(namedState{name: "running"})
	s.BecomeStacked(namedState{name: "awaiting"})
	assert.Equal(t, "awaiting", s.StateName())

	s.UnbecomeStacked()
	assert.Equal(t, "running", s.StateName())
}

func TestStash(t *testing.T) {
	system := NewActorSystemWithZapLogger(zap.NewNop())
	defer system.Shutdown()
	received := make(chan string, 4)
	stash := &Stash{}
	released := false
	pid := system.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case string:
			if !released {
				stash.Stash(ctx, msg)
				return
			}
			received <- msg
		case bool:
			released = true
			stash.UnstashAll(ctx)
		}
	}))

	system.Root.Send(pid, "a")
	system.Root.Send(pid, "b")
	system.Root.Send(pid, true)
	assert.Equal(t, "a", <-received)
	assert.Equal(t, "b", <-received)
}
