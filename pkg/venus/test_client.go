package venus

import (
	"context"
	"sync"
)

func CreateTestSystemReader() *TestSystemReader {
	return &TestSystemReader{
		state: SystemState{
			PhaseConsumption: []any{200.0, 200.0, 200.0},
			PVPower:          1000.0,
			BatteryPower:     0.0,
			ChargeMode:       int32(0),
			Throttling:       int32(0),
		},
		activeInSource: int32(ACTIVE_IN_SOURCE_NOT_CONNECTED),
		changes:        make(chan ValueChange, 8),
	}
}

// TestSystemReader serves values set by tests and reports source changes pushed with SetActiveInSource.
type TestSystemReader struct {
	mu             sync.Mutex
	state          SystemState
	activeInSource any
	readErr        error
	reads          int
	changes        chan ValueChange
}

func (r *TestSystemReader) Open() error {
	return nil
}

func (r *TestSystemReader) Close() error {
	return nil
}

func (r *TestSystemReader) NumberOfPhases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.PhaseConsumption)
}

func (r *TestSystemReader) BatteryService() string {
	return "com.victronenergy.battery.aggregate"
}

func (r *TestSystemReader) ReadSystemState() (*SystemState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.readErr != nil {
		return nil, r.readErr
	}
	state := r.state
	state.PhaseConsumption = append([]any(nil), r.state.PhaseConsumption...)
	return &state, nil
}

func (r *TestSystemReader) ReadActiveInSource() (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeInSource, nil
}

func (r *TestSystemReader) WatchActiveInSource(ctx context.Context, onChange func(ValueChange)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change := <-r.changes:
			onChange(change)
		}
	}
}

func (r *TestSystemReader) SetState(state SystemState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

func (r *TestSystemReader) SetReadError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readErr = err
}

func (r *TestSystemReader) SetActiveInSource(value any) {
	r.mu.Lock()
	r.activeInSource = value
	r.mu.Unlock()
	r.changes <- ValueChange{Service: SERVICE_SYSTEM, Path: PATH_ACTIVE_IN_SOURCE, Value: value}
}

func (r *TestSystemReader) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

var _ SystemReader = (*TestSystemReader)(nil)
