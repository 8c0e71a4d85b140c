package eval

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ExecFailedStatus is the status recorded for a stage whose program could
// not be loaded.
const ExecFailedStatus = 127

// ErrNotFound reports a program that is not on the search path.
var ErrNotFound = errors.New("command not found")

// ForkError reports that the OS could not create a process for a stage.
type ForkError struct {
	Program string
	Err     error
}

func (e *ForkError) Error() string {
	return fmt.Sprintf("%s: cannot fork: %v", e.Program, e.Err)
}

func (e *ForkError) Unwrap() error { return e.Err }

// PipeError reports that the pipe between stage Index and Index+1 could
// not be allocated.
type PipeError struct {
	Index int
	Err   error
}

func (e *PipeError) Error() string {
	return fmt.Sprintf("cannot create pipe %d: %v", e.Index, e.Err)
}

func (e *PipeError) Unwrap() error { return e.Err }

// OpenError reports a redirection target that could not be opened.
type OpenError struct {
	Path string
	Mode string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: cannot open for %s: %v", e.Path, e.Mode, cause(e.Err))
}

func (e *OpenError) Unwrap() error { return e.Err }

// ExecError reports that a program could not be loaded.
type ExecError struct {
	Program string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %v", e.Program, cause(e.Err))
}

func (e *ExecError) Unwrap() error { return e.Err }

// BuiltinError reports a failed built-in.
type BuiltinError struct {
	Name string
	Arg  string
	Err  error
}

func (e *BuiltinError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("%s: %v", e.Name, cause(e.Err))
	}
	return fmt.Sprintf("%s: %s: %v", e.Name, e.Arg, cause(e.Err))
}

func (e *BuiltinError) Unwrap() error { return e.Err }

// cause strips the *os.PathError wrapper, whose message repeats the path.
func cause(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// classifyStartError separates resource exhaustion while creating the
// process from failures of the program loader itself.
func classifyStartError(program string, err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EAGAIN, syscall.ENOMEM:
			return &ForkError{Program: program, Err: err}
		}
	}
	return &ExecError{Program: program, Err: err}
}
