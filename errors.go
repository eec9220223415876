package cache

import "time"

// SentinelError is an error.
type SentinelError string

const (
	// ErrNotFound indicates missing cache entry.
	ErrNotFound = SentinelError("missing cache entry")

	// ErrExpired indicates cache entry past its expiration time.
	ErrExpired = SentinelError("expired cache entry")

	// ErrClosed indicates the store was closed and deactivated.
	ErrClosed = SentinelError("cache is closed")

	// ErrNothingToInvalidate indicates no callbacks were added to Invalidator.
	ErrNothingToInvalidate = SentinelError("nothing to invalidate")

	// ErrAlreadyInvalidated indicates recent invalidation.
	ErrAlreadyInvalidated = SentinelError("already invalidated")
)

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}

// ExpiredError defines an expiration error with entry details.
type ExpiredError interface {
	error

	// Value returns the expired value.
	Value() interface{}

	// ExpiredAt returns the time the value expired.
	ExpiredAt() time.Time
}

// errExpired carries an expired value, so that a stale read can still
// serve it while a refresh is in flight.
type errExpired struct {
	val       interface{}
	expiredAt time.Time
}

func (e errExpired) Error() string {
	return ErrExpired.Error()
}

func (e errExpired) Value() interface{} {
	return e.val
}

func (e errExpired) ExpiredAt() time.Time {
	return e.expiredAt
}

func (e errExpired) Is(err error) bool {
	return err == ErrExpired
}
