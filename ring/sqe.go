package ring

// SQE is a submission queue entry. A producer obtains one from GetSQE,
// fills in Op and UserData, and makes it visible to the consumer with
// Submit.
type SQE struct {
	// Op is the operation to perform. Must be one of NopOp, APICallOp, or
	// ModuleHandleOp; any other type is dropped at Submit time with no
	// completion posted.
	Op Op

	// UserData is an opaque correlation tag, copied verbatim onto the
	// resulting CQE.
	UserData uint64
}

// CQE is a completion queue entry.
type CQE struct {
	// Op is the opcode of the submission this completes.
	Op OpCode

	// Res is the operation's result. For OpNop this is always 0. For
	// OpAPICall and OpModuleHandle this is whatever Invoke returned, or a
	// negated errno-style value if WithStrictSubmit is set and the
	// operation could not be enqueued onto the workqueue.
	Res int64

	// Flags is reserved for future use; always 0 today.
	Flags uint32

	// UserData echoes the SQE.UserData of the submission this completes.
	UserData uint64
}
