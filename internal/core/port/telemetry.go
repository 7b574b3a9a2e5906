package port

import (
	"context"

	"github.com/berfenger/essload2mqtt/internal/core/domain"
)

// TelemetrySource reads the ESS measurements and reports grid input source changes.
type TelemetrySource interface {
	Open() error
	Close() error
	Info() domain.TelemetryInfo
	Read() (*domain.TelemetrySnapshot, error)
	ReadGridSource() (any, error)
	// Watch delivers notifications until ctx is done.
	Watch(ctx context.Context, onChange func(domain.ValueChangedNotification)) error
}
