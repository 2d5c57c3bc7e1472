package replay

import "github.com/pkg/errors"

// ErrWorkerSpawnFailed is returned when a worker process could not be
// started. At startup this aborts the whole run.
var ErrWorkerSpawnFailed error = errors.New("failed to spawn worker process")

// ErrWorkerTimedOut marks a worker that did not exit within the post-crash
// grace period and had to be terminated.
var ErrWorkerTimedOut error = errors.New("worker timed out after crash")

// ErrWorkerDirtyDeath marks a worker that died without ever reporting
// progress.
var ErrWorkerDirtyDeath error = errors.New("worker died before reporting progress")
