// Package workqueue implements a bounded, circular producer/consumer work
// buffer serviced by a dynamically sized pool of worker goroutines.
//
// Work items are queued in arrival order into a fixed-capacity ring
// buffer; a pool of worker goroutines pops and executes them, growing
// lazily from Attr.MinThreads up to Attr.MaxThreads when
// LazyThreadCreation is set. Producers block on QueueWork when the
// buffer is full rather than growing it, and WaitAllWorkDone offers
// quiescence waiting for callers that need to know the backlog has
// fully drained (e.g. before reconfiguring a dependent ring).
//
// One mutex guards all bookkeeping, paired with three condition
// variables: workers sleep on workerCond while the queue is empty,
// producers sleep on producerCond while the queue is full, and a single
// WaitAllWorkDone caller sleeps on drainCond. No lock is ever held across
// a work item's Execute or DropPending call.
package workqueue

import (
	"sync"
)

// Item is a unit of work. Execute runs on a worker goroutine, exactly
// once, if and only if the item was popped from the queue before the
// workqueue stopped. DropPending runs exactly once for every item that
// is discarded without ever being popped and executed — on Close, for
// whatever remains queued. A single Item must never have both Execute
// and DropPending called on it.
type Item interface {
	// Execute performs the work. Panics are recovered by the worker
	// loop and passed to the panic handler, if one is installed (see
	// SetPanicHandler); Execute does not need to recover its own panics.
	Execute()

	// DropPending releases any resources the item owns, for the case
	// where Execute will never run. Implementations that own no
	// resources may make this a no-op.
	DropPending()
}

type workerSlot struct {
	occupied bool
}

// WorkQueue is a bounded FIFO of Item serviced by a pool of worker
// goroutines. The zero value is not usable; construct with New.
type WorkQueue struct {
	attr Attr

	mu           sync.Mutex
	workerCond   *sync.Cond
	producerCond *sync.Cond
	drainCond    *sync.Cond
	wg           sync.WaitGroup

	mask  uint32
	head  uint32
	tail  uint32
	items []Item

	workers []workerSlot

	shouldStop       bool
	queueIsBlocked   bool
	waitAllIsWaiting bool

	onlineWorkers     uint32
	sleepingWorkers   uint32
	runningWorkers    uint32
	sleepingProducers uint32

	panicHandler func(name string, r any)
}

// New allocates a WorkQueue per attr and spawns its initial workers. See
// Attr's fields for the exact eager/lazy spawn rule.
func New(attr Attr) (*WorkQueue, error) {
	if err := validateAndAdjustAttr(&attr); err != nil {
		return nil, err
	}

	wq := &WorkQueue{
		attr:    attr,
		mask:    attr.MaxPending - 1,
		items:   make([]Item, attr.MaxPending),
		workers: make([]workerSlot, attr.MaxThreads),
	}
	wq.workerCond = sync.NewCond(&wq.mu)
	wq.producerCond = sync.NewCond(&wq.mu)
	wq.drainCond = sync.NewCond(&wq.mu)

	nrToCreate := attr.MaxThreads
	if attr.Flags&LazyThreadCreation != 0 {
		nrToCreate = attr.MinThreads
	}

	wq.mu.Lock()
	for i := uint32(0); i < nrToCreate; i++ {
		wq.spawnWorkerLocked(i)
	}
	wq.mu.Unlock()

	return wq, nil
}

// SetPanicHandler installs a callback invoked whenever a worker's
// Execute panics. By default panics are swallowed silently; callers
// should install a handler that at minimum logs the panic, the way
// ring.New does when given a logger.
func (wq *WorkQueue) SetPanicHandler(f func(name string, r any)) {
	wq.mu.Lock()
	wq.panicHandler = f
	wq.mu.Unlock()
}

// CurrentWorkers reports the number of live worker goroutines.
func (wq *WorkQueue) CurrentWorkers() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return int(wq.onlineWorkers)
}

func (wq *WorkQueue) pendingLocked() uint32 {
	return wq.tail - wq.head
}

func (wq *WorkQueue) freeWorkerSlotLocked() (uint32, bool) {
	for i := range wq.workers {
		if !wq.workers[i].occupied {
			return uint32(i), true
		}
	}
	return 0, false
}

func (wq *WorkQueue) spawnWorkerLocked(idx uint32) {
	wq.workers[idx].occupied = true
	wq.onlineWorkers++
	wq.wg.Add(1)
	go wq.runWorker(idx)
}

// armWorkerLocked wakes a sleeping worker, or spawns a fresh one into a
// free slot if none is sleeping. If no slot is free either, the item
// stays queued: it will be picked up once a currently running worker
// loops back for more work. This mirrors the original's arm_worker,
// whose return value the caller (try_queue_work_locked) discards.
func (wq *WorkQueue) armWorkerLocked() {
	if wq.sleepingWorkers == 0 {
		if idx, ok := wq.freeWorkerSlotLocked(); ok {
			wq.spawnWorkerLocked(idx)
		}
		return
	}
	wq.workerCond.Signal()
}

// QueueWork enqueues item. If the queue is full it blocks until space
// exists or the workqueue is closed. On any non-nil return the caller
// retains ownership of item: DropPending is not called.
func (wq *WorkQueue) QueueWork(item Item) error {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	for {
		if wq.shouldStop {
			return ErrOwnerDead
		}
		if !wq.queueIsBlocked && wq.pendingLocked() < wq.attr.MaxPending {
			wq.items[wq.tail&wq.mask] = item
			wq.tail++
			wq.armWorkerLocked()
			return nil
		}

		wq.sleepingProducers++
		wq.producerCond.Wait()
		wq.sleepingProducers--
	}
}

// WaitAllWorkDone blocks until the queue is empty and no worker is
// currently running an item. While waiting, new QueueWork calls block
// as if the queue were full, preventing producers from refilling faster
// than workers can drain.
func (wq *WorkQueue) WaitAllWorkDone() {
	wq.mu.Lock()
	wq.queueIsBlocked = true

	for wq.pendingLocked() > 0 || wq.runningWorkers > 0 {
		if wq.shouldStop {
			break
		}
		wq.waitAllIsWaiting = true
		wq.drainCond.Wait()
		wq.waitAllIsWaiting = false
	}

	wq.queueIsBlocked = false
	switch {
	case wq.sleepingProducers == 1:
		wq.producerCond.Signal()
	case wq.sleepingProducers > 1:
		wq.producerCond.Broadcast()
	}
	wq.mu.Unlock()
}

func (wq *WorkQueue) clearPendingLocked() {
	for wq.head != wq.tail {
		item := wq.items[wq.head&wq.mask]
		wq.items[wq.head&wq.mask] = nil
		wq.head++
		if item != nil {
			item.DropPending()
		}
	}
}

func (wq *WorkQueue) wakeAllWorkersLocked() {
	switch {
	case wq.sleepingWorkers == 1:
		wq.workerCond.Signal()
	case wq.sleepingWorkers > 1:
		wq.workerCond.Broadcast()
	}
	if wq.waitAllIsWaiting {
		wq.drainCond.Broadcast()
	}
}

// Close stops the workqueue: pending items are discarded (DropPending
// invoked on each), every worker is woken and joined, and resources are
// released. Items already executing run to completion before their
// worker observes shouldStop.
func (wq *WorkQueue) Close() {
	wq.mu.Lock()
	wq.shouldStop = true
	wq.clearPendingLocked()
	wq.wakeAllWorkersLocked()
	wq.mu.Unlock()

	wq.wg.Wait()
}

// waitForWorkLocked blocks until there is work to pop or the worker
// should exit. Returns false when the caller should exit its loop.
func (wq *WorkQueue) waitForWorkLocked() bool {
	for {
		if wq.shouldStop && !wq.queueIsBlocked {
			return false
		}
		if wq.head != wq.tail {
			return true
		}
		if wq.waitAllIsWaiting {
			wq.drainCond.Broadcast()
		}
		wq.sleepingWorkers++
		wq.workerCond.Wait()
		wq.sleepingWorkers--
	}
}

// wakeProducersLocked runs after every completed item: it wakes one
// sleeping producer, or all of them if more than one is sleeping.
func (wq *WorkQueue) wakeProducersLocked() {
	switch {
	case wq.sleepingProducers == 1:
		wq.producerCond.Signal()
	case wq.sleepingProducers > 1:
		wq.producerCond.Broadcast()
	}
}

func (wq *WorkQueue) runItem(item Item) {
	defer func() {
		if r := recover(); r != nil && wq.panicHandler != nil {
			wq.panicHandler(wq.attr.Name, r)
		}
	}()
	item.Execute()
}

func (wq *WorkQueue) runWorker(idx uint32) {
	defer wq.wg.Done()

	wq.mu.Lock()
	for wq.waitForWorkLocked() {
		item := wq.items[wq.head&wq.mask]
		wq.items[wq.head&wq.mask] = nil
		wq.head++
		wq.runningWorkers++
		wq.mu.Unlock()

		wq.runItem(item)

		wq.mu.Lock()
		wq.runningWorkers--
		wq.wakeProducersLocked()
	}
	wq.onlineWorkers--
	wq.mu.Unlock()

	_ = idx // slots are never freed once occupied; workers only exit at Close.
}
