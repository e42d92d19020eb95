package ring

// OpCode identifies the operation carried by a submission queue entry and
// echoed back on its completion.
type OpCode uint8

const (
	// OpNop completes immediately on Submit, on the submitter's own
	// goroutine, without ever touching the workqueue. Its Res is always 0.
	OpNop OpCode = iota

	// OpAPICall punts an outbound chat-platform API call to the ring's
	// workqueue. Its Res is the value returned by APICallOp.Invoke.
	OpAPICall

	// OpModuleHandle punts a module dispatch to the ring's workqueue. Its
	// Res is the value returned by ModuleHandleOp.Invoke.
	OpModuleHandle
)

// String renders the opcode the way it appears in logs.
func (c OpCode) String() string {
	switch c {
	case OpNop:
		return "nop"
	case OpAPICall:
		return "api_call"
	case OpModuleHandle:
		return "module_handle"
	default:
		return "unknown"
	}
}

// Op is the payload prepared into a submission queue entry. The three
// concrete types below are the only ones the ring knows how to dispatch;
// see SQE.Op.
type Op interface {
	Code() OpCode
}

// NopOp carries no payload. It exists to exercise the ring's submission
// and completion plumbing without scheduling any work, and as a wakeup
// primitive a producer can use to make the consumer observe a new CQE.
type NopOp struct{}

// Code implements Op.
func (NopOp) Code() OpCode { return OpNop }

// APICallOp wraps an outbound call to the chat platform. Invoke runs on a
// workqueue worker and its return value becomes the completion's Res.
// Release, if non-nil, runs instead of Invoke when the operation is
// discarded without ever running — workqueue shutdown, or a failed
// enqueue (with or without WithStrictSubmit). Exactly one of Invoke or Release ever
// runs for a given submission.
type APICallOp struct {
	Invoke  func() int64
	Release func()
}

// Code implements Op.
func (APICallOp) Code() OpCode { return OpAPICall }

// ModuleHandleOp wraps a module dispatch over an inbound update. Its
// fields have the same contract as APICallOp; Release is where a module
// handle payload's owned resources (e.g. a decoded update it alone
// retains a reference to) get torn down on discard.
type ModuleHandleOp struct {
	Invoke  func() int64
	Release func()
}

// Code implements Op.
func (ModuleHandleOp) Code() OpCode { return OpModuleHandle }
