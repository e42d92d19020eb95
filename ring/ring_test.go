package ring

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gnuweeb/tgbot/workqueue"
)

func smallAttr(name string) workqueue.Attr {
	return workqueue.Attr{
		Name:       name,
		Flags:      workqueue.LazyThreadCreation,
		MaxThreads: 4,
		MinThreads: 1,
		MaxPending: 16,
	}
}

func TestNew_CapacitiesRoundUpToPowerOfTwo(t *testing.T) {
	r, err := New(10, WithWorkqueueAttr(smallAttr("cap")))
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint32(15), r.sqMask) // nextPow2(10) == 16
	require.Equal(t, uint32(31), r.cqMask) // 2 * 16 == 32
}

func TestNop_CompletesInlineOnSubmit(t *testing.T) {
	r, err := New(8, WithWorkqueueAttr(smallAttr("nop")))
	require.NoError(t, err)
	defer r.Close()

	const n = 5
	for i := uint64(0); i < n; i++ {
		sqe := r.GetSQE()
		require.NotNil(t, sqe)
		sqe.Op = NopOp{}
		sqe.UserData = i
	}

	submitted, err := r.Submit()
	require.NoError(t, err)
	require.Equal(t, n, submitted)

	seen := map[uint64]bool{}
	cqe, pending, err := r.WaitCQE()
	require.NoError(t, err)
	require.Equal(t, n, pending)

	count := r.ForEachCQE(func(c *CQE) bool {
		require.Equal(t, OpNop, c.Op)
		require.Equal(t, int64(0), c.Res)
		seen[c.UserData] = true
		return true
	})
	require.Equal(t, n, count)
	require.Len(t, seen, n)
	r.CQAdvance(uint32(count))
	_ = cqe
}

func TestAPICall_RunsOnWorkqueueAndPostsResult(t *testing.T) {
	r, err := New(4, WithWorkqueueAttr(smallAttr("apicall")))
	require.NoError(t, err)
	defer r.Close()

	sqe := r.GetSQE()
	require.NotNil(t, sqe)
	sqe.Op = APICallOp{Invoke: func() int64 { return 42 }}
	sqe.UserData = 7

	_, err = r.Submit()
	require.NoError(t, err)

	cqe, _, err := r.WaitCQE()
	require.NoError(t, err)
	require.Equal(t, OpAPICall, cqe.Op)
	require.Equal(t, int64(42), cqe.Res)
	require.Equal(t, uint64(7), cqe.UserData)
	r.CQAdvance(1)
}

func TestModuleHandle_ReleaseDoesNotRunOnExecute(t *testing.T) {
	r, err := New(4, WithWorkqueueAttr(smallAttr("modhandle")))
	require.NoError(t, err)

	var released int32
	sqe := r.GetSQE()
	require.NotNil(t, sqe)
	sqe.Op = ModuleHandleOp{
		Invoke:  func() int64 { return 1 },
		Release: func() { atomic.AddInt32(&released, 1) },
	}

	_, err = r.Submit()
	require.NoError(t, err)

	cqe, _, err := r.WaitCQE()
	require.NoError(t, err)
	require.Equal(t, int64(1), cqe.Res)
	r.CQAdvance(1)

	require.Equal(t, int32(0), atomic.LoadInt32(&released))

	r.Close()
}

func TestSubmit_Oversubscription_BlocksUntilWorkqueueDrains(t *testing.T) {
	r, err := New(4, WithWorkqueueAttr(workqueue.Attr{
		Name:       "oversub",
		Flags:      workqueue.LazyThreadCreation,
		MaxThreads: 1,
		MinThreads: 1,
		MaxPending: 2,
	}))
	require.NoError(t, err)
	defer r.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 3)
	blockingOp := func() Op {
		return APICallOp{Invoke: func() int64 {
			started <- struct{}{}
			<-release
			return 0
		}}
	}

	// Occupy the only worker.
	sqe := r.GetSQE()
	require.NotNil(t, sqe)
	sqe.Op = blockingOp()
	_, err = r.Submit()
	require.NoError(t, err)
	<-started

	// Fill both pending slots behind it.
	for i := 0; i < 2; i++ {
		sqe := r.GetSQE()
		require.NotNil(t, sqe)
		sqe.Op = blockingOp()
	}
	_, err = r.Submit()
	require.NoError(t, err)

	// A further punt now has nowhere to go: the only worker is blocked
	// inside the first Invoke, and the workqueue's two pending slots
	// are occupied by the items queued behind it. Submit hands each
	// entry to QueueWork, so submitting this one from a background
	// goroutine stays blocked until release fires and the worker
	// completes an item.
	sqe = r.GetSQE()
	require.NotNil(t, sqe)
	sqe.Op = APICallOp{Invoke: func() int64 { return 99 }}

	submitDone := make(chan struct{})
	go func() {
		_, _ = r.Submit()
		close(submitDone)
	}()

	select {
	case <-submitDone:
		t.Fatal("Submit should have blocked handing the third op to a full workqueue")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)

	select {
	case <-submitDone:
	case <-time.After(time.Second):
		t.Fatal("Submit should have unblocked once the workqueue drained")
	}
}

func TestClose_WakesBlockedWaitCQE(t *testing.T) {
	r, err := New(4, WithWorkqueueAttr(smallAttr("wake")))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := r.WaitCQE()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	r.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrOwnerDead)
	case <-time.After(time.Second):
		t.Fatal("WaitCQE should have woken up on Close")
	}
}

func TestSubmit_AfterCloseReturnsOwnerDead(t *testing.T) {
	r, err := New(4, WithWorkqueueAttr(smallAttr("closed")))
	require.NoError(t, err)
	r.Close()

	sqe := r.GetSQE()
	require.NotNil(t, sqe)
	sqe.Op = NopOp{}

	_, err = r.Submit()
	require.ErrorIs(t, err, ErrOwnerDead)
}

func TestStrictSubmit_PostsFailureCompletionOnEnqueueFailure(t *testing.T) {
	r, err := New(4, WithWorkqueueAttr(smallAttr("strict")), WithStrictSubmit())
	require.NoError(t, err)

	var released int32
	r.wq.Close() // force every subsequent QueueWork to fail with ErrOwnerDead

	sqe := r.GetSQE()
	require.NotNil(t, sqe)
	sqe.Op = ModuleHandleOp{
		Invoke:  func() int64 { return 1 },
		Release: func() { atomic.AddInt32(&released, 1) },
	}
	sqe.UserData = 99

	_, err = r.Submit()
	require.NoError(t, err)

	cqe, _, err := r.WaitCQE()
	require.NoError(t, err)
	require.Equal(t, OpModuleHandle, cqe.Op)
	require.Less(t, cqe.Res, int64(0))
	require.Equal(t, uint64(99), cqe.UserData)
	require.Equal(t, int32(1), atomic.LoadInt32(&released))
}

func TestGetSQE_ReturnsNilWhenSubmissionQueueFull(t *testing.T) {
	r, err := New(2, WithWorkqueueAttr(smallAttr("sqfull")))
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < 2; i++ {
		require.NotNil(t, r.GetSQE())
	}
	require.Nil(t, r.GetSQE())
}
