// Package ring implements a bounded, single-consumer completion ring over
// a lazily-grown workqueue. Producers prepare submission queue entries
// with GetSQE and publish them with Submit; a single consumer goroutine
// waits for completions with WaitCQE, walks them with ForEachCQE, and
// releases their slots with CQAdvance.
//
// OpNop completes inline, on the submitting goroutine, inside Submit.
// OpAPICall and OpModuleHandle are hop off to the ring's internal
// workqueue and complete asynchronously from a worker goroutine.
//
// The submission queue and completion queue are independent ring
// buffers: the completion queue is sized at twice the submission
// queue's capacity. Each dispatched entry posts at most one completion,
// so two full rounds of submissions fit before the consumer has to
// advance; beyond that, completions are dropped.
package ring

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gnuweeb/tgbot/workqueue"
)

// defaultAttr mirrors the sizing the original bot used for its ring's
// internal punt queue: lazily spawned, generously bounded, since every
// inbound update and outbound call passes through it.
func defaultAttr() workqueue.Attr {
	return workqueue.Attr{
		Name:       "ring-wq",
		Flags:      workqueue.LazyThreadCreation,
		MaxThreads: 1024,
		MinThreads: 32,
		MaxPending: 4096,
	}
}

// Ring is a bounded async execution substrate: a submission queue that
// producers fill and a completion queue that a single consumer drains.
// The zero value is not usable; construct with New.
type Ring struct {
	sqMu   sync.Mutex
	sqHead atomic.Uint32
	sqTail atomic.Uint32
	sqMask uint32
	sqes   []SQE

	cqMu      sync.Mutex
	cqCond    *sync.Cond
	cqHead    atomic.Uint32
	cqTail    atomic.Uint32
	cqMask    uint32
	cqes      []CQE
	cqWaiters uint32

	shouldStop atomic.Bool

	wq *workqueue.WorkQueue

	strictSubmit bool
	logger       *zap.Logger
}

// New allocates a Ring whose submission queue holds nextPow2(n) entries
// and whose completion queue holds twice that many.
func New(n uint32, opts ...Option) (*Ring, error) {
	sqCap := nextPow2(n)
	cqCap := sqCap * 2

	cfg := config{wqAttr: defaultAttr()}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Ring{
		sqMask:       sqCap - 1,
		sqes:         make([]SQE, sqCap),
		cqMask:       cqCap - 1,
		cqes:         make([]CQE, cqCap),
		strictSubmit: cfg.strictSubmit,
		logger:       cfg.logger,
	}
	r.cqCond = sync.NewCond(&r.cqMu)

	wq, err := workqueue.New(cfg.wqAttr)
	if err != nil {
		return nil, err
	}
	if r.logger != nil {
		wq.SetPanicHandler(func(name string, rec any) {
			r.logger.Error("ring: workqueue worker panic recovered",
				zap.String("workqueue", name),
				zap.Any("panic", rec),
			)
		})
	}
	r.wq = wq

	return r, nil
}

func nextPow2(n uint32) uint32 {
	max := uint32(2)
	for max < n {
		max *= 2
	}
	return max
}

// GetSQE returns a pointer to the next free submission queue slot, or
// nil if the submission queue is full. The caller must fill in Op and
// UserData before the next call to GetSQE or Submit.
func (r *Ring) GetSQE() *SQE {
	r.sqMu.Lock()
	defer r.sqMu.Unlock()

	tail := r.sqTail.Load()
	head := r.sqHead.Load()
	if tail-head >= r.sqMask+1 {
		return nil
	}

	sqe := &r.sqes[tail&r.sqMask]
	*sqe = SQE{}
	r.sqTail.Store(tail + 1)
	return sqe
}

// Submit dispatches every entry prepared since the last Submit call. It
// returns the number of entries dispatched and is safe to call
// concurrently with GetSQE and with itself from multiple producer
// goroutines. OpNop entries complete inline, synchronously, before
// Submit returns; OpAPICall and OpModuleHandle entries are handed to the
// ring's workqueue and complete later.
func (r *Ring) Submit() (int, error) {
	r.sqMu.Lock()
	defer r.sqMu.Unlock()

	if r.shouldStop.Load() {
		return 0, ErrOwnerDead
	}

	head := r.sqHead.Load()
	tail := r.sqTail.Load()

	n := 0
	for head != tail {
		sqe := r.sqes[head&r.sqMask]
		head++
		if r.dispatch(sqe) {
			n++
		}
	}
	r.sqHead.Store(head)

	return n, nil
}

func (r *Ring) dispatch(sqe SQE) bool {
	switch op := sqe.Op.(type) {
	case NopOp:
		return r.postCQE(OpNop, 0, sqe.UserData)
	case APICallOp:
		return r.punt(OpAPICall, sqe.UserData, op.Invoke, op.Release)
	case ModuleHandleOp:
		return r.punt(OpModuleHandle, sqe.UserData, op.Invoke, op.Release)
	default:
		if r.logger != nil {
			r.logger.Warn("ring: submission with unsupported op dropped")
		}
		return false
	}
}

// punt hands code off to the workqueue. On enqueue failure the owned
// payload is released immediately and, under WithStrictSubmit, a failure
// completion is posted in place of the one Invoke would have produced.
func (r *Ring) punt(code OpCode, userData uint64, invoke func() int64, release func()) bool {
	t := &task{ring: r, code: code, userData: userData, invoke: invoke, release: release}
	if err := r.wq.QueueWork(t); err != nil {
		if release != nil {
			release()
		}
		if r.strictSubmit {
			r.postCQE(code, -int64(errnoFor(err)), userData)
		}
		return false
	}
	return true
}

// task adapts a punted operation to workqueue.Item.
type task struct {
	ring     *Ring
	code     OpCode
	userData uint64
	invoke   func() int64
	release  func()
}

func (t *task) Execute() {
	var res int64
	if t.invoke != nil {
		res = t.invoke()
	}
	t.ring.postCQE(t.code, res, t.userData)
}

func (t *task) DropPending() {
	if t.release != nil {
		t.release()
	}
}

// postCQE appends a completion, returning false (and logging, if a
// logger is attached) if the completion queue is full. A full completion
// queue silently drops the completion: see DESIGN.md for why this
// matches the original ring rather than blocking the poster.
func (r *Ring) postCQE(code OpCode, res int64, userData uint64) bool {
	r.cqMu.Lock()
	defer r.cqMu.Unlock()

	tail := r.cqTail.Load()
	head := r.cqHead.Load()
	if tail-head >= r.cqMask+1 {
		if r.logger != nil {
			r.logger.Warn("ring: completion queue full, dropping completion",
				zap.Stringer("op", code),
				zap.Uint64("user_data", userData),
			)
		}
		return false
	}

	r.cqes[tail&r.cqMask] = CQE{Op: code, Res: res, UserData: userData}
	r.cqTail.Store(tail + 1)
	if r.cqWaiters > 0 {
		r.cqCond.Broadcast()
	}
	return true
}

// WaitCQE blocks until at least one completion is available, returning a
// pointer to the oldest unconsumed entry and the total number currently
// pending. The returned pointer is only valid until the next CQAdvance
// past its slot. WaitCQE must only ever be called from a single consumer
// goroutine at a time.
func (r *Ring) WaitCQE() (*CQE, int, error) {
	r.cqMu.Lock()
	defer r.cqMu.Unlock()

	for {
		if r.shouldStop.Load() {
			return nil, 0, ErrOwnerDead
		}

		tail := r.cqTail.Load()
		head := r.cqHead.Load()
		if tail != head {
			return &r.cqes[head&r.cqMask], int(tail - head), nil
		}

		r.cqWaiters++
		r.cqCond.Wait()
		r.cqWaiters--
	}
}

// ForEachCQE walks every completion currently available, starting from
// the oldest, calling f on each. It stops early if f returns false. It
// does not advance the completion queue head; callers must still call
// CQAdvance with the number of entries they have finished with. Like
// WaitCQE, ForEachCQE must only be called from the single consumer
// goroutine.
func (r *Ring) ForEachCQE(f func(cqe *CQE) bool) int {
	head := r.cqHead.Load()
	n := 0
	for {
		tail := r.cqTail.Load()
		if head == tail {
			break
		}
		cqe := &r.cqes[head&r.cqMask]
		n++
		head++
		if !f(cqe) {
			break
		}
	}
	return n
}

// CQAdvance releases the oldest n completion queue slots back to the
// ring. It is lock-free: the completion queue head is only ever written
// by the single consumer goroutine, so no synchronization with postCQE's
// writers is needed beyond the atomic itself.
func (r *Ring) CQAdvance(n uint32) {
	r.cqHead.Add(n)
}

// Close stops the ring: no further Submit call succeeds, any goroutine
// blocked in WaitCQE is woken with ErrOwnerDead, and the internal
// workqueue is closed, discarding whatever punted work is still pending.
// Close blocks until every worker goroutine has exited.
func (r *Ring) Close() {
	r.sqMu.Lock()
	r.cqMu.Lock()
	r.shouldStop.Store(true)
	if r.cqWaiters > 0 {
		r.cqCond.Broadcast()
	}
	r.cqMu.Unlock()
	r.sqMu.Unlock()

	r.wq.Close()
}
