package eval

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// Disposition is how a child reacts to an interactive interrupt.
type Disposition int

const (
	// InterruptDefault lets Ctrl-C terminate the child.
	InterruptDefault Disposition = iota
	// InterruptIgnored insulates the child from Ctrl-C.
	InterruptIgnored
)

func (d Disposition) String() string {
	if d == InterruptIgnored {
		return "ignore"
	}
	return "default"
}

// ChildPolicy is the signal setup applied to one stage between process
// creation and program load.
//
// Every job runs in its own process group, so a terminal-generated
// interrupt never reaches it unless the shell hands it the terminal or
// forwards the interrupt. The shell does both only for foreground jobs.
// Background stages are in addition started with SIGINT ignored, which
// survives exec, so an interrupt sent to them directly is ignored too.
type ChildPolicy struct {
	Background bool
	// Pgid is the group to join; 0 makes the stage a new group leader.
	Pgid int
}

// Interrupt reports the effective disposition for SIGINT.
func (p ChildPolicy) Interrupt() Disposition {
	if p.Background {
		return InterruptIgnored
	}
	return InterruptDefault
}

// SysProcAttr converts the policy into process attributes.
func (p ChildPolicy) SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pgid: p.Pgid}
}

// HandleSignals installs the shell's own handlers: interrupts are forwarded
// to the foreground job, if any, and never terminate the shell; child
// termination triggers a non-blocking reap pass over background jobs.
// The returned function uninstalls the handlers.
func (r *Runner) HandleSignals(ctx context.Context) (stop func()) {
	r.init()
	ctx, cancel := context.WithCancel(ctx)
	sigc := make(chan os.Signal, 8)
	r.sigMu.Lock()
	signal.Notify(sigc, os.Interrupt, unix.SIGCHLD)
	r.sigc = sigc
	r.sigMu.Unlock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigc:
				switch sig {
				case os.Interrupt:
					r.Interrupt()
				case unix.SIGCHLD:
					r.Reap()
				}
			}
		}
	}()
	return func() {
		r.sigMu.Lock()
		signal.Stop(sigc)
		r.sigc = nil
		r.sigMu.Unlock()
		cancel()
		<-done
	}
}

// ignoreInterrupts sets SIGINT to be ignored until the returned function
// is called. Processes started in between inherit the ignored disposition.
// Afterwards the shell's handler, or the default action, is back in place.
func (r *Runner) ignoreInterrupts() (restore func()) {
	r.sigMu.Lock()
	if signal.Ignored(os.Interrupt) {
		return r.sigMu.Unlock
	}
	signal.Ignore(os.Interrupt)
	return func() {
		if r.sigc != nil {
			signal.Notify(r.sigc, os.Interrupt)
		} else {
			signal.Reset(os.Interrupt)
		}
		r.sigMu.Unlock()
	}
}

// Interrupt delivers SIGINT to the foreground job's process group. With no
// foreground job it only moves the terminal to a fresh line.
func (r *Runner) Interrupt() {
	pgid := r.Foreground()
	if pgid == 0 {
		fmt.Fprintln(r.Term.Stderr)
		return
	}
	r.Logger.Debug("forwarding interrupt", "pgid", pgid)
	_ = unix.Kill(-pgid, unix.SIGINT)
}
