package contracts

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField         = errors.New("contracts: missing required field")
	ErrUnknownBroadcastType = errors.New("contracts: unknown broadcast type")
	ErrUnexpectedKind       = errors.New("contracts: unexpected message kind")
)

// DecodeError reports a body that could not be turned into a payload
type DecodeError struct {
	Kind Kind   // Payload the caller expected, KindUnknown when sniffing
	Body []byte // Raw body, kept for logging
	Err  error  // Underlying error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("contracts: cannot decode %s from %q: %v", e.Kind, truncate(e.Body, 128), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
