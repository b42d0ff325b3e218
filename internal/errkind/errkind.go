// Package errkind classifies load failures into a small closed taxonomy so
// the retry controller can decide between backoff and giving up without
// knowing anything about the database driver or the input format.
package errkind

import (
	"errors"
	"fmt"
)

// Kind identifies a failure class.
type Kind string

const (
	// KindLockTimeout is contention with a concurrent session that timed out
	// waiting for a lock. Retryable.
	KindLockTimeout Kind = "lock_timeout"

	// KindDeadlock is a deadlock detected and broken by the store. Retryable.
	KindDeadlock Kind = "deadlock"

	// KindConnectionLost is a dropped or unreachable store connection. Retryable.
	KindConnectionLost Kind = "connection_lost"

	// KindSourceUnreadable is an input partition that cannot be opened or
	// parsed. Permanent.
	KindSourceUnreadable Kind = "source_unreadable"

	// KindSchemaViolation is a constraint or schema failure other than the
	// expected dedup conflict. Permanent.
	KindSchemaViolation Kind = "schema_violation"
)

// Retryable reports whether failures of this kind are worth another attempt.
func (k Kind) Retryable() bool {
	switch k {
	case KindLockTimeout, KindDeadlock, KindConnectionLost:
		return true
	}
	return false
}

// Error tags an underlying cause with its failure kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with kind. Returns nil if err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Wrapf tags a formatted error with kind.
func Wrapf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind tagged on err, or KindSchemaViolation when err
// carries no tag. An untagged failure is treated as permanent so that a
// misclassified error can never loop through retries.
func KindOf(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindSchemaViolation
}

// IsRetryable reports whether err is tagged with a retryable kind.
func IsRetryable(err error) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind.Retryable()
	}
	return false
}
