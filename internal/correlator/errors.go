package correlator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout        = errors.New("correlator: timeout")
	ErrRemote         = errors.New("correlator: remote error")
	ErrSenderRequired = errors.New("correlator: sender required")
	ErrInboxRequired  = errors.New("correlator: inbox required")
	ErrInvalidTimeout = errors.New("correlator: invalid timeout")
	ErrNonceExhausted = errors.New("correlator: could not mint an unused nonce")
)

// TimeoutError reports that no matching reply arrived within Duration.
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("correlator: timeout of %dms", e.Duration.Milliseconds())
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// RemoteError is an explicit failure reply from the host. Message is taken
// verbatim from the reply payload.
type RemoteError struct {
	Message string
	Payload json.RawMessage
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}
