package parse

import (
	"errors"
	"strings"
)

// Pos tracks a source position.
type Pos struct {
	Line int
	Col  int
}

// Stage is one program invocation. Argv[0] is the program name.
type Stage struct {
	Argv []string
}

// Name returns the program name, or "" for an empty stage.
func (s Stage) Name() string {
	if len(s.Argv) == 0 {
		return ""
	}
	return s.Argv[0]
}

// Args returns the arguments following the program name.
func (s Stage) Args() []string {
	if len(s.Argv) < 2 {
		return nil
	}
	return s.Argv[1:]
}

// Pipeline is an ordered chain of stages; stage i writes into stage i+1.
type Pipeline []Stage

// Command is one parsed input line.
type Command struct {
	Pipeline   Pipeline
	Stdin      string
	Stdout     string
	Background bool
	Pos        Pos
}

// S constructs a stage from words.
func S(argv ...string) Stage {
	return Stage{Argv: argv}
}

// C constructs a foreground command without redirections.
func C(stages ...Stage) *Command {
	return &Command{Pipeline: stages}
}

var (
	errEmptyPipeline = errors.New("empty pipeline")
	errEmptyStage    = errors.New("empty program in pipeline")
)

// Validate checks the shape the engine relies on: at least one stage and
// a program name in every stage.
func (c *Command) Validate() error {
	if c == nil || len(c.Pipeline) == 0 {
		return errEmptyPipeline
	}
	for _, st := range c.Pipeline {
		if st.Name() == "" {
			return errEmptyStage
		}
	}
	return nil
}

// First returns the first stage of the pipeline.
func (c *Command) First() Stage {
	if c == nil || len(c.Pipeline) == 0 {
		return Stage{}
	}
	return c.Pipeline[0]
}

// Last returns the last stage of the pipeline.
func (c *Command) Last() Stage {
	if c == nil || len(c.Pipeline) == 0 {
		return Stage{}
	}
	return c.Pipeline[len(c.Pipeline)-1]
}

// String renders the command back in shell syntax (best-effort).
func (c *Command) String() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	for i, st := range c.Pipeline {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(formatWords(st.Argv))
	}
	if c.Stdin != "" {
		b.WriteString(" < ")
		b.WriteString(quoteWord(c.Stdin))
	}
	if c.Stdout != "" {
		b.WriteString(" > ")
		b.WriteString(quoteWord(c.Stdout))
	}
	if c.Background {
		b.WriteString(" &")
	}
	return b.String()
}
