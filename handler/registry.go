package handler

import (
	"context"
	"fmt"

	"github.com/gnuweeb/tgbot/chatapi"
)

// Registry holds the installed Modules in registration order and fans
// updates out to them.
type Registry struct {
	modules []Module
}

// New builds a Registry over modules, preserving registration order.
func New(modules ...Module) *Registry {
	return &Registry{modules: modules}
}

// Init runs every module's Init in registration order. If allowFail is
// false, the first error aborts and is returned immediately, leaving
// later modules uninitialized. If allowFail is true, every module is
// still given a chance to initialize, module errors are discarded, and
// Init returns nil.
func (r *Registry) Init(ctx context.Context, allowFail bool) error {
	for _, m := range r.modules {
		if err := m.Init(ctx); err != nil {
			if !allowFail {
				return fmt.Errorf("handler: init module %q: %w", m.Name(), err)
			}
		}
	}
	return nil
}

// Shutdown runs every module's Shutdown in registration order.
func (r *Registry) Shutdown(ctx context.Context) {
	for _, m := range r.modules {
		m.Shutdown(ctx)
	}
}

// Handle offers up to every module whose ListenTypes includes typ, in
// registration order, stopping at the first one that returns a non-nil
// error.
func (r *Registry) Handle(ctx context.Context, typ UpdateType, up *chatapi.Update) error {
	for _, m := range r.modules {
		if m.ListenTypes()&typ == 0 {
			continue
		}
		if err := m.Handle(ctx, up); err != nil {
			return fmt.Errorf("handler: module %q: %w", m.Name(), err)
		}
	}
	return nil
}
