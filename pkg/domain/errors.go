package domain

import "errors"

// ErrThreadNotFound is returned when a thread ID has no checkpoints yet.
// Callers on the read path treat it as a cold start, not a failure.
var ErrThreadNotFound = errors.New("thread not found")

// ErrToolNotFound is returned when a dispatched tool name is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrUnknownTopology is returned when a run names a topology that was never registered.
var ErrUnknownTopology = errors.New("unknown topology")

// ErrStepCeiling is reported when a run exceeds its step-execution budget.
var ErrStepCeiling = errors.New("step execution ceiling reached")
