package eval

import (
	"os"
)

// boundary is the effective stdin of the first stage and stdout of the
// last stage, plus the descriptors the shell opened to provide them.
type boundary struct {
	In    *os.File
	Out   *os.File
	owned []*os.File
}

// resolveRedirs opens the named redirection targets. A target that cannot
// be opened is reported and replaced by the terminal stream; the command
// still runs.
func (r *Runner) resolveRedirs(in, out string) *boundary {
	b := &boundary{In: r.Term.Stdin, Out: r.Term.Stdout}
	if in != "" {
		f, err := os.Open(in)
		if err != nil {
			r.diag(&OpenError{Path: in, Mode: "reading", Err: err})
		} else {
			b.In = f
			b.owned = append(b.owned, f)
		}
	}
	if out != "" {
		f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o666)
		if err != nil {
			r.diag(&OpenError{Path: out, Mode: "writing", Err: err})
		} else {
			b.Out = f
			b.owned = append(b.owned, f)
		}
	}
	return b
}

// Close releases the shell's copies of the redirection descriptors.
// Children that were given them keep their own.
func (b *boundary) Close() {
	if b == nil {
		return
	}
	for _, f := range b.owned {
		_ = f.Close()
	}
	b.owned = nil
}
