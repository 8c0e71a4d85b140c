package eval

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal is the shell's own set of standard streams, captured once at
// startup. Stages inherit these when no redirection or pipe replaces them,
// and diagnostics always go to Stderr so they stay visible when a
// pipeline's output is redirected.
type Terminal struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// CaptureTerminal duplicates descriptors 0, 1 and 2. The copies are
// close-on-exec and unaffected by anything later done to the originals.
func CaptureTerminal() (Terminal, error) {
	in, err := dupFile(os.Stdin, "stdin")
	if err != nil {
		return Terminal{}, err
	}
	out, err := dupFile(os.Stdout, "stdout")
	if err != nil {
		_ = in.Close()
		return Terminal{}, err
	}
	errf, err := dupFile(os.Stderr, "stderr")
	if err != nil {
		_ = in.Close()
		_ = out.Close()
		return Terminal{}, err
	}
	return Terminal{Stdin: in, Stdout: out, Stderr: errf}, nil
}

// StdTerminal wraps the process's standard files without duplicating them.
func StdTerminal() Terminal {
	return Terminal{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func dupFile(f *os.File, name string) (*os.File, error) {
	fd, err := unix.FcntlInt(f.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "dup", Path: name, Err: err}
	}
	return os.NewFile(uintptr(fd), name), nil
}

// IsTTY reports whether the captured stdin is a terminal.
func (t Terminal) IsTTY() bool {
	if t.Stdin == nil {
		return false
	}
	return term.IsTerminal(int(t.Stdin.Fd()))
}

// Close releases the captured descriptors.
func (t Terminal) Close() error {
	var errs []error
	for _, f := range []*os.File{t.Stdin, t.Stdout, t.Stderr} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
