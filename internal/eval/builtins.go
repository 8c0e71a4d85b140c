package eval

import (
	"errors"
	"io"
	"os"

	"lsh/internal/parse"
)

// Builtin executes a built-in command and returns an exit status.
type Builtin func(stdin io.Reader, stdout, stderr io.Writer, args []string, r *Runner) int

var errTooManyArgs = errors.New("too many arguments")

func defaultBuiltins() map[string]Builtin {
	return map[string]Builtin{
		"cd":   builtinCD,
		"exit": builtinExit,
	}
}

// dispatchBuiltin runs st in the shell process when its program names a
// built-in. Only the first stage of a pipeline is ever inspected, and it
// happens before any redirection target is opened, so pipes and
// redirections given alongside a built-in are ignored.
func (r *Runner) dispatchBuiltin(st parse.Stage) (int, bool) {
	builtin, ok := r.Builtins[st.Name()]
	if !ok {
		return 0, false
	}
	return builtin(r.Term.Stdin, r.Term.Stdout, r.Term.Stderr, st.Argv, r), true
}

func builtinCD(stdin io.Reader, stdout, stderr io.Writer, args []string, r *Runner) int {
	_ = stdin
	_ = stdout
	var dir string
	switch len(args) {
	case 0, 1:
		dir = r.Env.Get("HOME")
		if dir == "" {
			h, err := os.UserHomeDir()
			if err != nil {
				r.diagTo(stderr, &BuiltinError{Name: "cd", Err: err})
				return 1
			}
			dir = h
		}
	case 2:
		dir = args[1]
	default:
		r.diagTo(stderr, &BuiltinError{Name: "cd", Err: errTooManyArgs})
		return 1
	}
	if err := os.Chdir(dir); err != nil {
		r.diagTo(stderr, &BuiltinError{Name: "cd", Arg: dir, Err: err})
		return 1
	}
	if cwd, err := os.Getwd(); err == nil {
		r.Env.Set("PWD", cwd)
	}
	return 0
}

// builtinExit ends the shell process at once. Arguments are ignored and
// running jobs are left alone.
func builtinExit(stdin io.Reader, stdout, stderr io.Writer, args []string, r *Runner) int {
	_ = stdin
	_ = stdout
	_ = stderr
	_ = args
	r.Exit(0)
	return 0
}
