package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes per spec.md §6: 0 on clean shutdown, distinct non-zero codes
// for an invalid command line versus an invalid configuration.
const (
	exitOK              = 0
	exitBadCommandLine  = 1
	exitBadConfig       = 2
	exitRuntimeFailure  = 3
)

// cliError carries the exit code a failure should produce, so run can
// distinguish a cobra usage error from a config or runtime one without
// string-matching messages.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func badCommandLine(err error) error { return &cliError{code: exitBadCommandLine, err: err} }
func badConfig(err error) error      { return &cliError{code: exitBadConfig, err: err} }
func runtimeFailure(err error) error { return &cliError{code: exitRuntimeFailure, err: err} }

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lserver",
		Short:         "lserver is a dynamically reconfigurable TCP server that executes VScript programs over HTTP/1.1 request bodies",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newConfigCommand())
	return cmd
}

func run(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		var ce *cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.Error())
			return ce.code
		}
		fmt.Fprintln(os.Stderr, err)
		return exitBadCommandLine
	}
	return exitOK
}
