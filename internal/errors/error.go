package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOutOfMemory     = errors.New("out of memory")
	ErrRecordTooBig    = errors.New("record too big")
	ErrNotFound        = errors.New("not found")
	ErrNotImplemented  = errors.New("this function is not yet implemented")
)

// InvalidArgumentError wraps ErrInvalidArgument with a formatted reason.
func InvalidArgumentError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFoundError generates a formatted error for a missing topology component.
func NotFoundError(resource string, id interface{}) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, resource, id)
}

// RecordTooBigError reports that more entries are pending than the caller can hold.
func RecordTooBigError(need, capacity int) error {
	return fmt.Errorf("%w: %d entries pending, capacity %d", ErrRecordTooBig, need, capacity)
}

// AllocationError reports an allocation beyond the configured limit.
func AllocationError(what string, size, limit int) error {
	return fmt.Errorf("%w: %s needs %d bits, limit is %d", ErrOutOfMemory, what, size, limit)
}

func NotImplementedError(op, strategy string) error {
	return fmt.Errorf("%w: %s on %s placement", ErrNotImplemented, op, strategy)
}

func ConfigNotSetError(config string) error {
	return fmt.Errorf("the %s configuration value must be set", config)
}
