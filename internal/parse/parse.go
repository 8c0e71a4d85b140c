package parse

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// Error is a syntax or shape error with the position it was found at.
type Error struct {
	Pos Pos
	Msg string
}

func (e *Error) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Col, e.Msg)
	}
	return e.Msg
}

func errorAt(p syntax.Pos, format string, args ...any) *Error {
	return &Error{Pos: posOf(p), Msg: fmt.Sprintf(format, args...)}
}

func posOf(p syntax.Pos) Pos {
	return Pos{Line: int(p.Line()), Col: int(p.Col())}
}

// Parse reads one input line and returns the command it describes.
// Blank input and comment-only input return a nil command and no error.
func Parse(rd io.Reader) (*Command, error) {
	f, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(rd, "")
	if err != nil {
		var perr syntax.ParseError
		if errors.As(err, &perr) {
			return nil, &Error{Pos: posOf(perr.Pos), Msg: perr.Text}
		}
		return nil, err
	}
	switch len(f.Stmts) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, errorAt(f.Stmts[1].Pos(), "only one pipeline per line is supported")
	}
	return buildCommand(f.Stmts[0])
}

// ParseLine parses a single line of text.
func ParseLine(line string) (*Command, error) {
	return Parse(strings.NewReader(line))
}

func buildCommand(stmt *syntax.Stmt) (*Command, error) {
	if stmt.Negated {
		return nil, errorAt(stmt.Pos(), "negation is not supported")
	}
	if stmt.Coprocess {
		return nil, errorAt(stmt.Pos(), "coprocesses are not supported")
	}
	var stmts []*syntax.Stmt
	if err := flattenPipe(stmt, &stmts); err != nil {
		return nil, err
	}
	cmd := &Command{Background: stmt.Background, Pos: posOf(stmt.Pos())}
	last := len(stmts) - 1
	for i, st := range stmts {
		call, ok := st.Cmd.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return nil, errorAt(st.Pos(), "missing program name")
		}
		if len(call.Assigns) > 0 {
			return nil, errorAt(call.Assigns[0].Pos(), "variable assignment is not supported")
		}
		argv := make([]string, 0, len(call.Args))
		for _, w := range call.Args {
			s, err := literal(w)
			if err != nil {
				return nil, err
			}
			argv = append(argv, s)
		}
		for _, rd := range st.Redirs {
			if err := applyRedirect(cmd, rd, i == 0, i == last); err != nil {
				return nil, err
			}
		}
		cmd.Pipeline = append(cmd.Pipeline, Stage{Argv: argv})
	}
	return cmd, nil
}

// flattenPipe turns the left-nested pipe tree into stages in execution order.
func flattenPipe(stmt *syntax.Stmt, out *[]*syntax.Stmt) error {
	bin, ok := stmt.Cmd.(*syntax.BinaryCmd)
	if !ok {
		*out = append(*out, stmt)
		return nil
	}
	if bin.Op != syntax.Pipe {
		return errorAt(bin.OpPos, "operator %s is not supported", bin.Op)
	}
	if len(stmt.Redirs) > 0 {
		return errorAt(stmt.Redirs[0].OpPos, "redirection of a whole pipeline is not supported")
	}
	if err := flattenPipe(bin.X, out); err != nil {
		return err
	}
	return flattenPipe(bin.Y, out)
}

func applyRedirect(cmd *Command, rd *syntax.Redirect, first, last bool) error {
	if rd.N != nil {
		return errorAt(rd.OpPos, "descriptor redirection is not supported")
	}
	target, err := literal(rd.Word)
	if err != nil {
		return err
	}
	if target == "" {
		return errorAt(rd.OpPos, "missing redirection target")
	}
	switch rd.Op {
	case syntax.RdrIn:
		if !first {
			return errorAt(rd.OpPos, "input redirection is only allowed on the first program")
		}
		cmd.Stdin = target
	case syntax.RdrOut, syntax.ClbOut:
		if !last {
			return errorAt(rd.OpPos, "output redirection is only allowed on the last program")
		}
		cmd.Stdout = target
	default:
		return errorAt(rd.OpPos, "redirection %s is not supported", rd.Op)
	}
	return nil
}

// literal returns the text of a word made only of literal and quoted parts.
// Expansions of any kind are rejected; quote removal is left to expand.
func literal(w *syntax.Word) (string, error) {
	if w == nil {
		return "", nil
	}
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
		case *syntax.SglQuoted:
			if p.Dollar {
				return "", errorAt(p.Pos(), "$'...' quoting is not supported")
			}
		case *syntax.DblQuoted:
			if p.Dollar {
				return "", errorAt(p.Pos(), "$\"...\" quoting is not supported")
			}
			for _, inner := range p.Parts {
				if _, ok := inner.(*syntax.Lit); !ok {
					return "", errorAt(inner.Pos(), "expansions are not supported")
				}
			}
		default:
			return "", errorAt(part.Pos(), "expansions are not supported")
		}
	}
	s, err := expand.Literal(nil, w)
	if err != nil {
		return "", errorAt(w.Pos(), "%v", err)
	}
	return s, nil
}
