package state

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/aeikum/fossilize/scratch"
)

// Arena copy helpers shared by the recorder and the replayer. Failures are
// marked with ErrAllocationFailed so callers can test with errors.Is.

func arenaSlice[T any](a *scratch.Allocator, src []T) ([]T, error) {
	dst, err := scratch.Copy(a, src)
	if err != nil {
		return nil, cerrors.Wrapf(ErrAllocationFailed, "%v", err)
	}
	return dst, nil
}

func arenaOne[T any](a *scratch.Allocator, src *T) (*T, error) {
	if src == nil {
		return nil, nil
	}
	dst := scratch.AllocOne[T](a)
	if dst == nil {
		return nil, ErrAllocationFailed
	}
	*dst = *src
	return dst, nil
}

func arenaString(a *scratch.Allocator, s string) (string, error) {
	dst, err := scratch.CopyString(a, s)
	if err != nil {
		return "", cerrors.Wrapf(ErrAllocationFailed, "%v", err)
	}
	return dst, nil
}
