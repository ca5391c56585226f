package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrJobTerminal        = errors.New("job already finished")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrDailyLimit         = errors.New("daily limit reached")
	ErrConcurrencyLimit   = errors.New("concurrency limit reached")
	ErrQualityNotAllowed  = errors.New("quality not allowed for plan")
	ErrPlanRequired       = errors.New("plan upgrade required")
	ErrUnsupportedPlan    = errors.New("unsupported plan")
	ErrUnsupportedSource  = errors.New("unsupported source")
	ErrProviderFailure    = errors.New("provider failure")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// PublicError carries a message that is safe to show to API clients while
// keeping the underlying cause for logs.
type PublicError struct {
	Message string
	Err     error
}

func (e *PublicError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *PublicError) Unwrap() error {
	return e.Err
}

// NewPublicError wraps err with a client-facing message.
func NewPublicError(message string, err error) error {
	return &PublicError{Message: message, Err: err}
}
