package parse

import (
	"fmt"
	"strings"
)

const dumpRule = "------------------------------"

// Dump renders a parsed command in the debug layout printed by the -p flag.
// A nil command is reported as a parse error.
func Dump(c *Command) string {
	var b strings.Builder
	if c == nil {
		b.WriteString("Parse ERROR\n")
		return b.String()
	}
	b.WriteString(dumpRule + "\n")
	b.WriteString("Parse OK\n")
	fmt.Fprintf(&b, "stdin:      %s\n", orNone(c.Stdin))
	fmt.Fprintf(&b, "stdout:     %s\n", orNone(c.Stdout))
	fmt.Fprintf(&b, "background: %t\n", c.Background)
	b.WriteString("Pgms:\n")
	for _, st := range c.Pipeline {
		b.WriteString("            * [ ")
		for _, w := range st.Argv {
			b.WriteString(w)
			b.WriteString(" ")
		}
		b.WriteString("]\n")
	}
	b.WriteString(dumpRule + "\n")
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

func formatWords(words []string) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, quoteWord(w))
	}
	return strings.Join(parts, " ")
}

func quoteWord(s string) string {
	if s == "" {
		return "''"
	}
	if !needsQuote(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '#', ';', '&', '|', '$', '`', '\'', '"', '\\', '{', '}', '(', ')', '<', '>', '*', '?', '[', ']':
			return true
		}
	}
	return false
}
