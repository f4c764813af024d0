package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported marks an operation a provider does not implement.
	// Calling such an operation is an integration error, surfaced
	// immediately and never prompted for.
	ErrNotSupported = fmt.Errorf("operation not supported")

	// Cache errors
	ErrNotCached  = fmt.Errorf("item not cached")
	ErrInvalidKey = fmt.Errorf("invalid item key")

	// Authorization errors
	ErrAuthFailed   = fmt.Errorf("authorization failed")
	ErrAuthDeclined = fmt.Errorf("authorization declined")
	ErrNoCredentials = fmt.Errorf("no persisted credentials")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Rate limiter errors
	ErrNoRateLimit = fmt.Errorf("no rate limit configured for host")

	// Service errors
	ErrServiceDisabled    = fmt.Errorf("service disabled")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrSongNotFound       = fmt.Errorf("song not found")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
)

// silentError wraps an error that has already been communicated to the
// user, or does not warrant a prompt. The error-policy wrappers rethrow or
// fall back without ever prompting for one of these.
type silentError struct {
	err error
}

func (e *silentError) Error() string { return e.err.Error() }
func (e *silentError) Unwrap() error { return e.err }

// Silent marks err as silent. A nil err stays nil.
func Silent(err error) error {
	if err == nil {
		return nil
	}
	return &silentError{err: err}
}

// Silentf formats a new silent error.
func Silentf(format string, args ...any) error {
	return &silentError{err: fmt.Errorf(format, args...)}
}

// IsSilent reports whether any error in err's chain is silent.
func IsSilent(err error) bool {
	var se *silentError
	return errors.As(err, &se)
}

// NotSupported builds the capability-missing error for a named operation.
func NotSupported(service, operation string) error {
	return fmt.Errorf("%s does not support %s: %w", service, operation, ErrNotSupported)
}
