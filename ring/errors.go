package ring

import "github.com/gnuweeb/tgbot/workqueue"

// Sentinel errors are defined once in package workqueue and re-exported
// here so callers never need to import workqueue just to compare errors
// with errors.Is.
var (
	ErrInvalidArgument = workqueue.ErrInvalidArgument
	ErrOutOfMemory     = workqueue.ErrOutOfMemory
	ErrQueueFull       = workqueue.ErrQueueFull
	ErrOwnerDead       = workqueue.ErrOwnerDead
	ErrUnsupported     = workqueue.ErrUnsupported
)
