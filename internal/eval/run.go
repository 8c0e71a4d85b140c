package eval

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"lsh/internal/parse"
)

// Runner executes parsed commands on behalf of the interactive loop.
type Runner struct {
	Env         *Env
	Term        Terminal
	Builtins    map[string]Builtin
	Logger      *log.Logger
	Trace       bool
	TraceWriter io.Writer
	Interactive bool
	TTYFD       int
	ShellPgid   int
	// Exit terminates the shell; it defaults to os.Exit.
	Exit func(code int)

	once           sync.Once
	mu             sync.Mutex
	reapMu         sync.Mutex
	sigMu          sync.Mutex
	sigc           chan os.Signal
	foregroundPgid int
	jobs           map[int]*Job
	nextJobID      int
}

// Result captures the exit status.
type Result struct {
	Status int
}

func (r *Runner) init() {
	r.once.Do(func() {
		if r.Env == nil {
			r.Env = NewEnv(nil)
		}
		if r.Term.Stdin == nil || r.Term.Stdout == nil || r.Term.Stderr == nil {
			std := StdTerminal()
			if r.Term.Stdin == nil {
				r.Term.Stdin = std.Stdin
			}
			if r.Term.Stdout == nil {
				r.Term.Stdout = std.Stdout
			}
			if r.Term.Stderr == nil {
				r.Term.Stderr = std.Stderr
			}
		}
		if r.Builtins == nil {
			r.Builtins = defaultBuiltins()
		}
		if r.Logger == nil {
			r.Logger = log.New(io.Discard)
		}
		if r.Trace && r.TraceWriter == nil {
			r.TraceWriter = io.Discard
		}
		if r.Exit == nil {
			r.Exit = os.Exit
		}
		if r.Interactive && r.ShellPgid == 0 {
			r.ShellPgid = unix.Getpgrp()
		}
	})
}

// Foreground returns the current foreground process group.
func (r *Runner) Foreground() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.foregroundPgid
}

// Run executes one command. Built-ins run in the shell process; anything
// else is started as a job and, unless it is a background job, waited for.
// Failures are reported on the terminal and reflected in the status only.
func (r *Runner) Run(cmd *parse.Command) Result {
	r.init()
	if cmd == nil {
		return Result{}
	}
	if err := cmd.Validate(); err != nil {
		r.diag(err)
		return Result{Status: 2}
	}
	r.tracef("+ %s\n", cmd)
	if status, ok := r.dispatchBuiltin(cmd.First()); ok {
		return Result{Status: status}
	}
	b := r.resolveRedirs(cmd.Stdin, cmd.Stdout)
	job, err := r.startJob(cmd, b)
	if err != nil {
		r.diag(err)
		return Result{Status: 1}
	}
	if cmd.Background {
		r.addJob(job)
		r.Logger.Debug("background job", "job", job.ID, "pgid", job.Pgid, "pids", job.Pids())
		// A stage may have exited before the job was registered.
		r.Reap()
		return Result{}
	}
	return Result{Status: r.waitForeground(job)}
}

func (r *Runner) setForeground(pgid int) {
	r.mu.Lock()
	r.foregroundPgid = pgid
	r.mu.Unlock()
	if !r.Interactive || r.TTYFD <= 0 || pgid == 0 {
		return
	}
	_ = unix.IoctlSetPointerInt(r.TTYFD, unix.TIOCSPGRP, pgid)
}

func (r *Runner) restoreForeground() {
	r.mu.Lock()
	r.foregroundPgid = 0
	r.mu.Unlock()
	if !r.Interactive || r.TTYFD <= 0 || r.ShellPgid == 0 {
		return
	}
	_ = unix.IoctlSetPointerInt(r.TTYFD, unix.TIOCSPGRP, r.ShellPgid)
}

// diag prints a one-line diagnostic on the terminal.
func (r *Runner) diag(err error) {
	r.diagTo(r.Term.Stderr, err)
}

func (r *Runner) diagTo(w io.Writer, err error) {
	fmt.Fprintf(w, "lsh: %v\n", err)
}

func (r *Runner) tracef(format string, args ...any) {
	if !r.Trace || r.TraceWriter == nil {
		return
	}
	fmt.Fprintf(r.TraceWriter, format, args...)
}
