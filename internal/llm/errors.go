package llm

import "errors"

// ErrNoMessages is returned when a completion is requested without any message.
var ErrNoMessages = errors.New("llm: at least one message is required")

// CompletionError reports a transport or backend failure. Message carries the
// upstream description; Cause is the underlying error.
type CompletionError struct {
	Op      string
	Message string
	Cause   error
}

func (e *CompletionError) Error() string {
	msg := "llm " + e.Op + ": " + e.Message
	if e.Cause != nil && e.Cause.Error() != e.Message {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CompletionError) Unwrap() error {
	return e.Cause
}

func newCompletionError(op string, cause error) *CompletionError {
	var ce *CompletionError
	if errors.As(cause, &ce) {
		return ce
	}
	return &CompletionError{Op: op, Message: cause.Error(), Cause: cause}
}
