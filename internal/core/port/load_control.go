package port

import (
	"github.com/berfenger/essload2mqtt/internal/core/domain"
)

type LoadControlLogic interface {
	InitialState() domain.ControllerState
	Gate(acSource int, enabled bool) domain.GateState
	// Tick runs one control step. snapshot may be nil when the gate is closed.
	Tick(state domain.ControllerState, gate domain.GateState,
		snapshot *domain.TelemetrySnapshot) (domain.ControllerState, domain.LoadControlTickResult, error)
}
