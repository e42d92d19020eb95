package ring

import (
	"go.uber.org/zap"

	"github.com/gnuweeb/tgbot/workqueue"
)

type config struct {
	wqAttr       workqueue.Attr
	strictSubmit bool
	logger       *zap.Logger
}

// Option configures a Ring at construction time.
type Option func(*config)

// WithWorkqueueAttr overrides the workqueue.Attr used for the ring's
// internal punt queue. The default matches the original bot's ring
// sizing: lazily spawned, 32 to 1024 workers, 4096 pending punts.
// Tests that want a small, deterministic pool should set this.
func WithWorkqueueAttr(attr workqueue.Attr) Option {
	return func(c *config) { c.wqAttr = attr }
}

// WithStrictSubmit makes Submit post a failure completion (a negated
// errno in CQE.Res) whenever an OpAPICall or OpModuleHandle cannot be
// handed to the workqueue, instead of silently dropping the submission
// with no completion at all. See DESIGN.md for why this is opt-in rather
// than the default.
func WithStrictSubmit() Option {
	return func(c *config) { c.strictSubmit = true }
}

// WithLogger attaches a logger used for diagnostics the ring has no
// other way to surface: completion queue overflow, and workqueue worker
// panics.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}
