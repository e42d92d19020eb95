// Package botloop drives the bot: it keeps exactly one long-poll
// GetUpdates in flight on the ring at a time, fans every update it
// receives out through a handler.Registry as a punted module-handle
// operation, and re-arms the poll once the batch has been queued.
package botloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gnuweeb/tgbot/chatapi"
	"github.com/gnuweeb/tgbot/handler"
	"github.com/gnuweeb/tgbot/ring"
)

// getUpdatesTag marks the single in-flight long-poll submission so its
// completion can be told apart from module-handle completions, which
// never carry a tag the loop needs to inspect.
const getUpdatesTag uint64 = 1

// updatePollResult carries a GetUpdates call's outcome from the
// workqueue goroutine that ran it back to the driver loop, which reads
// it only after observing the matching completion — the ring's
// completion queue locking is what makes this handoff safe without its
// own synchronization.
type updatePollResult struct {
	updates []chatapi.Update
	err     error
}

// Loop is the bot's single-consumer driver. Construct with New and run
// with Run on one goroutine; Run is not safe to call concurrently with
// itself.
type Loop struct {
	ring     *ring.Ring
	client   *chatapi.Client
	registry *handler.Registry
	logger   *zap.Logger

	pollTimeout time.Duration
	maxUpdateID int64
	pendingPoll *updatePollResult
}

// Option configures a Loop.
type Option func(*Loop)

// WithPollTimeout overrides the long-poll timeout sent with every
// GetUpdates request. Default 30s.
func WithPollTimeout(d time.Duration) Option {
	return func(l *Loop) { l.pollTimeout = d }
}

// New builds a Loop over r, client, and registry.
func New(r *ring.Ring, client *chatapi.Client, registry *handler.Registry, logger *zap.Logger, opts ...Option) *Loop {
	l := &Loop{
		ring:        r,
		client:      client,
		registry:    registry,
		logger:      logger,
		pollTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run initializes every registered module, arms the first long-poll,
// and then drives submit/wait/dispatch cycles until the ring is closed
// or ctx is canceled. On return every module's Shutdown has run.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.registry.Init(ctx, true); err != nil {
		return fmt.Errorf("botloop: init modules: %w", err)
	}
	defer l.registry.Shutdown(ctx)

	l.armUpdatePoll(ctx)
	l.logger.Info("bot loop running")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.runOnce(ctx); err != nil {
			if errors.Is(err, ring.ErrOwnerDead) && ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func (l *Loop) runOnce(ctx context.Context) error {
	if _, err := l.ring.Submit(); err != nil {
		return fmt.Errorf("botloop: submit: %w", err)
	}

	if _, _, err := l.ring.WaitCQE(); err != nil {
		return fmt.Errorf("botloop: wait cqe: %w", err)
	}

	var n uint32
	var procErr error
	l.ring.ForEachCQE(func(cqe *ring.CQE) bool {
		n++
		if procErr = l.processCQE(ctx, cqe); procErr != nil {
			return false
		}
		return true
	})
	l.ring.CQAdvance(n)
	return procErr
}

func (l *Loop) processCQE(ctx context.Context, cqe *ring.CQE) error {
	switch cqe.Op {
	case ring.OpNop:
		return nil
	case ring.OpAPICall:
		return l.processAPICall(ctx, cqe)
	case ring.OpModuleHandle:
		// The original driver loop never inspects a module handle's
		// result either; Handle already logged its own failure.
		return nil
	default:
		return nil
	}
}

func (l *Loop) processAPICall(ctx context.Context, cqe *ring.CQE) error {
	if cqe.UserData != getUpdatesTag {
		return nil
	}

	result := l.pendingPoll
	l.pendingPoll = nil

	if result == nil || result.err != nil {
		if result != nil {
			l.logger.Warn("get updates failed", zap.Error(result.err))
		}
		l.armUpdatePoll(ctx)
		return nil
	}

	if len(result.updates) > 0 {
		l.logger.Info("received updates", zap.Int("count", len(result.updates)))
	}
	for i := range result.updates {
		up := result.updates[i]
		if up.UpdateID > l.maxUpdateID {
			l.maxUpdateID = up.UpdateID
		}
		l.enqueueModuleHandle(ctx, &up)
	}

	l.armUpdatePoll(ctx)
	return nil
}

// armUpdatePoll submits a new long-poll GetUpdates starting right after
// the highest update ID seen so far. If the submission queue is
// momentarily full, it submits what's pending first to make room, the
// same fallback the original driver's arm_update_sqe used.
func (l *Loop) armUpdatePoll(ctx context.Context) {
	sqe := l.ring.GetSQE()
	if sqe == nil {
		l.ring.Submit()
		sqe = l.ring.GetSQE()
	}
	if sqe == nil {
		l.logger.Error("botloop: could not obtain sqe to arm update poll")
		return
	}

	offset := l.maxUpdateID + 1
	result := &updatePollResult{}
	l.pendingPoll = result

	sqe.UserData = getUpdatesTag
	sqe.Op = ring.APICallOp{
		Invoke: func() int64 {
			updates, err := l.client.GetUpdates(ctx, chatapi.GetUpdatesRequest{
				Offset:         offset,
				TimeoutSeconds: int(l.pollTimeout / time.Second),
			})
			result.updates = updates
			result.err = err
			if err != nil {
				return -1
			}
			return int64(len(updates))
		},
	}
}

func (l *Loop) enqueueModuleHandle(ctx context.Context, up *chatapi.Update) {
	sqe := l.ring.GetSQE()
	if sqe == nil {
		l.ring.Submit()
		sqe = l.ring.GetSQE()
	}
	if sqe == nil {
		l.logger.Error("botloop: could not obtain sqe to dispatch update", zap.Int64("update_id", up.UpdateID))
		return
	}

	sqe.UserData = 0
	sqe.Op = ring.ModuleHandleOp{
		Invoke: func() int64 {
			if err := l.registry.Handle(ctx, updateType(up), up); err != nil {
				l.logger.Error("module handle failed", zap.Int64("update_id", up.UpdateID), zap.Error(err))
				return -1
			}
			return 0
		},
	}
}

func updateType(up *chatapi.Update) handler.UpdateType {
	if up.Message != nil {
		return handler.UpdateMessage
	}
	return handler.UpdateUnknown
}
