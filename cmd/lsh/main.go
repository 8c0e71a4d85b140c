package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lsh/internal/config"
	"lsh/internal/eval"
)

// usageError marks failures that happen before any command ran.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(execute(context.Background(), os.Args[1:]))
}

func execute(ctx context.Context, args []string) int {
	status := 0
	root := newRootCmd(&status)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "lsh: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return status
}

func newRootCmd(status *int) *cobra.Command {
	v := viper.New()
	var cfgFile, command string

	cmd := &cobra.Command{
		Use:           "lsh [flags]",
		Short:         "A small job-control shell",
		Long:          "lsh runs pipelines of external programs with < and > redirection,\nbackground jobs (&) and the built-ins cd and exit.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return &usageError{err}
			}
			term, err := eval.CaptureTerminal()
			if err != nil {
				return err
			}
			defer term.Close()

			sh, err := newShell(cfg, term)
			if err != nil {
				return &usageError{err}
			}
			switch {
			case cmd.Flags().Changed("command"):
				*status = sh.runCommand(command)
			case term.IsTTY():
				*status = sh.runInteractive(cmd.Context())
			default:
				*status = sh.runScript(cmd.Context(), term.Stdin)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolP("no-exec", "n", false, "parse commands without running them")
	flags.BoolP("print", "p", false, "print each parsed command")
	flags.BoolP("trace", "x", false, "trace commands before running them")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/lsh/config.yaml)")
	flags.StringVarP(&command, "command", "c", "", "run one command line and exit with its status")

	for key, name := range map[string]string{
		config.KeyNoExec:       "no-exec",
		config.KeyPrintCommand: "print",
		config.KeyTrace:        "trace",
		config.KeyLogLevel:     "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
	return cmd
}

func newLogger(cfg *config.Config, term eval.Terminal) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(term.Stderr, log.Options{
		Prefix: "lsh",
		Level:  level,
	}), nil
}
