package ring

import (
	"errors"
	"syscall"

	"github.com/gnuweeb/tgbot/workqueue"
)

// errnoFor maps a workqueue error to the negated-errno convention used
// for strict-mode failure completions, mirroring the original ring's use
// of raw POSIX error codes in gw_ring_cqe.res.
func errnoFor(err error) syscall.Errno {
	switch {
	case errors.Is(err, workqueue.ErrOwnerDead):
		return syscall.ESHUTDOWN
	case errors.Is(err, workqueue.ErrInvalidArgument):
		return syscall.EINVAL
	case errors.Is(err, workqueue.ErrOutOfMemory):
		return syscall.ENOMEM
	default:
		return syscall.EAGAIN
	}
}
