package roles

import (
	"errors"
	"fmt"

	"github.com/glimte/expedition-bus/internal/rabbitmq"
)

var (
	ErrEmptyName          = errors.New("roles: name must not be empty")
	ErrEmptyContent       = errors.New("roles: broadcast content must not be empty")
	ErrEmptyEquipmentType = errors.New("roles: equipment type must not be empty")
	ErrMissingReplyRoute  = errors.New("roles: order has no reply routing key")
)

// StopError reports workers that were still running when the join timeout expired
type StopError struct {
	Client    string
	Unstopped int
	Total     int
}

func (e *StopError) Error() string {
	return fmt.Sprintf("roles: %s: %d of %d workers did not stop in time", e.Client, e.Unstopped, e.Total)
}

func (e *StopError) Unwrap() error {
	return rabbitmq.ErrStopTimeout
}
