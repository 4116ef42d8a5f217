//go:build !windows

package console

import (
	"syscall"

	"github.com/darkhz/tview"
)

func suspend(app *tview.Application) {
	app.Suspend(func() {
		syscall.Kill(syscall.Getpid(), syscall.SIGSTOP)
	})
}
