package workqueue

import "errors"

// Sentinel errors returned by this package. Callers should compare with
// errors.Is rather than switching on the error value directly, since
// wrapped variants may be returned in the future.
var (
	// ErrInvalidArgument is returned by New when Attr is malformed.
	ErrInvalidArgument = errors.New("workqueue: invalid argument")

	// ErrOutOfMemory stands for a failed buffer or bookkeeping
	// allocation. No function in this package returns it, since the Go
	// runtime does not surface allocation failure as an error; see
	// DESIGN.md for why the sentinel is kept anyway.
	ErrOutOfMemory = errors.New("workqueue: out of memory")

	// ErrQueueFull signals transient back-pressure. Callers of
	// QueueWork never observe this directly: the call blocks until
	// space is available or the workqueue stops.
	ErrQueueFull = errors.New("workqueue: queue full")

	// ErrOwnerDead is returned once the workqueue has been closed or is
	// closing.
	ErrOwnerDead = errors.New("workqueue: owner dead")

	// ErrUnsupported is reserved for callers that round-trip a raw
	// opcode without a matching handler; the workqueue package itself
	// never returns it.
	ErrUnsupported = errors.New("workqueue: unsupported")
)
