package multimap

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is reported when a nil key or nil value is passed
	// to an operation. Single-pair operations panic with an error wrapping
	// it; bulk operations return it.
	ErrInvalidArgument = errors.New("multimap: invalid argument")

	// ErrUnsupportedOperation is returned when a read-only view element
	// is asked to change.
	ErrUnsupportedOperation = errors.New("multimap: unsupported operation")
)

var (
	errNilKey   = errors.Wrap(ErrInvalidArgument, "nil key")
	errNilValue = errors.Wrap(ErrInvalidArgument, "nil value")
)

// panicOnInvalid panics if err is non-nil. It is used by the single-pair
// API, where a nil key or value is a programming error.
func panicOnInvalid(err error) {
	if err != nil {
		panic(errors.WithStack(err))
	}
}
