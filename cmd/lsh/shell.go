package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/peterh/liner"
	"golang.org/x/sys/unix"

	"lsh/internal/config"
	"lsh/internal/eval"
	"lsh/internal/parse"
)

// parseErrorStatus is the status of a line that does not parse.
const parseErrorStatus = 2

type shell struct {
	cfg    *config.Config
	term   eval.Terminal
	logger *log.Logger
	runner *eval.Runner

	exited     bool
	exitStatus int
}

func newShell(cfg *config.Config, term eval.Terminal) (*shell, error) {
	logger, err := newLogger(cfg, term)
	if err != nil {
		return nil, err
	}
	s := &shell{cfg: cfg, term: term, logger: logger}
	s.runner = &eval.Runner{
		Env:         eval.NewEnv(nil),
		Term:        term,
		Logger:      logger,
		Trace:       cfg.Trace,
		TraceWriter: term.Stderr,
		Exit:        s.requestExit,
	}
	return s, nil
}

// requestExit stops the read loop once the current line returns.
func (s *shell) requestExit(code int) {
	s.exited = true
	s.exitStatus = code
}

// runLine parses and runs one input line. Blank lines leave status alone
// and report false.
func (s *shell) runLine(input string) (int, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, false
	}
	cmd, err := parse.ParseLine(input)
	if err != nil {
		if s.cfg.PrintCommand {
			fmt.Fprint(s.term.Stdout, parse.Dump(nil))
		}
		fmt.Fprintf(s.term.Stderr, "lsh: %v\n", err)
		return parseErrorStatus, true
	}
	if cmd == nil {
		return 0, false
	}
	if s.cfg.PrintCommand {
		fmt.Fprint(s.term.Stdout, parse.Dump(cmd))
	}
	if s.cfg.NoExec {
		return 0, true
	}
	return s.runner.Run(cmd).Status, true
}

func (s *shell) runCommand(input string) int {
	status, _ := s.runLine(input)
	if s.exited {
		return s.exitStatus
	}
	return status
}

// runScript reads commands one per line until end of input.
func (s *shell) runScript(ctx context.Context, rd io.Reader) int {
	stop := s.runner.HandleSignals(ctx)
	defer stop()

	status := 0
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		s.collectJobs()
		if st, ok := s.runLine(sc.Text()); ok {
			status = st
		}
		if s.exited {
			return s.exitStatus
		}
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(s.term.Stderr, "lsh: %v\n", err)
		return 1
	}
	return status
}

func (s *shell) runInteractive(ctx context.Context) int {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	s.loadHistory(line)
	defer s.saveHistory(line)

	s.takeTerminal()
	stop := s.runner.HandleSignals(ctx)
	defer stop()

	for !s.exited {
		s.collectJobs()
		input, err := line.Prompt(s.cfg.Prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.term.Stdout)
			return 0
		}
		if err != nil {
			fmt.Fprintf(s.term.Stderr, "lsh: %v\n", err)
			return 1
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		s.runLine(input)
	}
	return s.exitStatus
}

// takeTerminal makes the shell its own process group and the terminal's
// foreground group. SIGTTOU stays ignored so the shell can hand the
// terminal back to itself after a foreground job.
func (s *shell) takeTerminal() {
	ttyfd := int(s.term.Stdin.Fd())
	signal.Ignore(syscall.SIGTTOU)
	if err := unix.Setpgid(0, 0); err != nil {
		s.logger.Debug("setpgid", "err", err)
	}
	pgid := unix.Getpgrp()
	if err := unix.IoctlSetPointerInt(ttyfd, unix.TIOCSPGRP, pgid); err != nil {
		s.logger.Warn("cannot take terminal", "err", err)
	}
	s.runner.Interactive = true
	s.runner.TTYFD = ttyfd
	s.runner.ShellPgid = pgid
}

// collectJobs runs a reap pass and drops finished background jobs.
func (s *shell) collectJobs() {
	s.runner.Reap()
	for _, job := range s.runner.CollectFinished() {
		s.logger.Info("job finished", "job", job.ID, "state", job.State, "status", job.Status, "cmd", job.Cmd)
	}
}

func (s *shell) loadHistory(line *liner.State) {
	if s.cfg.HistoryFile == "" {
		return
	}
	f, err := os.Open(s.cfg.HistoryFile)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := line.ReadHistory(f); err != nil {
		s.logger.Warn("cannot read history", "path", s.cfg.HistoryFile, "err", err)
	}
}

func (s *shell) saveHistory(line *liner.State) {
	if s.cfg.HistoryFile == "" {
		return
	}
	f, err := os.Create(s.cfg.HistoryFile)
	if err != nil {
		s.logger.Warn("cannot save history", "path", s.cfg.HistoryFile, "err", err)
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		s.logger.Warn("cannot save history", "path", s.cfg.HistoryFile, "err", err)
	}
}
