// Package handler is the module registry: it owns the set of installed
// Modules and fans inbound updates out to whichever of them are
// listening for that update's kind.
package handler

import (
	"context"

	"github.com/gnuweeb/tgbot/chatapi"
)

// UpdateType is a bitmask of chat update kinds a Module is interested
// in, mirroring the original bot's listen_update_types field.
type UpdateType uint64

const (
	UpdateUnknown UpdateType = 0
	UpdateMessage UpdateType = 1 << iota
)

// Module is a self-contained feature of the bot: a name, the update
// kinds it wants to see, and lifecycle and dispatch hooks.
type Module interface {
	// Name identifies the module in logs and panic reports.
	Name() string

	// ListenTypes reports which update kinds Handle should be offered.
	// Updates whose kind isn't set here never reach Handle.
	ListenTypes() UpdateType

	// Init runs once, before the bot starts polling for updates. A
	// non-nil error aborts startup unless Registry.Init is called with
	// allowFail set.
	Init(ctx context.Context) error

	// Handle processes an update. A non-nil error short-circuits the
	// registry's fan-out: no module after this one sees the update.
	Handle(ctx context.Context, up *chatapi.Update) error

	// Shutdown runs once, during bot teardown.
	Shutdown(ctx context.Context)
}
