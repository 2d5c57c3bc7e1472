package state

import "github.com/pkg/errors"

// ErrUnknownHandle is returned when a handle passed to the recorder was never
// registered.
var ErrUnknownHandle error = errors.New("handle is not registered")

// ErrAllocationFailed is returned when the scratch arena could not satisfy an
// allocation.
var ErrAllocationFailed error = errors.New("scratch allocation failed")

// ErrIndexOutOfRange is returned when a serialized cross-reference exceeds the
// length of the section it points into.
var ErrIndexOutOfRange error = errors.New("descriptor index out of range")

// ErrParse is returned when a state document fails structural parsing.
var ErrParse error = errors.New("malformed state document")
