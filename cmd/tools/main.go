package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(args []string, out io.Writer) error
}

var commands = []command{
	{
		name:    "validate",
		summary: "Load and validate every model file in a directory",
		run:     runValidate,
	},
	{
		name:    "init-db",
		summary: "Create the PostgreSQL snapshot table used by the postgres sink",
		run:     func(args []string, _ io.Writer) error { return runInitDB(args) },
	},
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			zap.S().Errorw("command failed", "error", err)
		}
		logger.Sync()
		os.Exit(1)
	}
}

// run dispatches args[0] to its command. An empty or unknown command prints
// the command list and returns errUsage.
func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return errUsage
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			if err := cmd.run(args[1:], out); err != nil {
				return fmt.Errorf("%s: %w", cmd.name, err)
			}
			return nil
		}
	}
	fmt.Fprintf(out, "unknown command %q\n\n", args[0])
	printUsage(out)
	return errUsage
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: objgraph-tools <command> [options]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(out, "  %-10s %s\n", cmd.name, cmd.summary)
	}
}
