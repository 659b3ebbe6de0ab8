package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Populated via -ldflags at build time.
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

// dispatch routes the top-level command and returns the process exit code.
func dispatch(args []string) int {
	if len(args) == 0 {
		printHelp()
		return 0
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return 0
	case "--help", "-h", "help":
		printHelp()
		return 0
	case "serve":
		return runCommand(runServeCommand, args[1:])
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(os.Stderr, "Run 'parlance --help' for usage.")
		return 1
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeForError(err)
	}
	return 0
}

func printVersion() {
	fmt.Printf("Parlance %s\n", version)
	if commit != "unknown" {
		fmt.Printf("  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Printf("  Built:      %s\n", buildDate)
	}
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

func printHelp() {
	fmt.Println("Parlance - Command Resolution Engine")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  parlance <COMMAND> [FLAGS]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  serve                            Start the HTTP command engine")
	fmt.Println("  version                          Print version information")
	fmt.Println("  help                             Show this help")
	fmt.Println()
	fmt.Println("SERVE FLAGS:")
	fmt.Println("  --config <path>                  Load configuration from one explicit file")
	fmt.Println("  --bind <host:port>               Listen address (overrides config)")
	fmt.Println("  --log-level <level>              debug, info, warn, or error (overrides config)")
	fmt.Println()
	fmt.Println("CONFIGURATION:")
	fmt.Println("  Without --config, settings merge from ~/.parlance/config.yaml, then")
	fmt.Println("  ./.parlance/config.yaml, then PARLANCE_* environment variables.")
}

// exitCoder lets an error carry the process exit code it should produce.
type exitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error { return e.err }

func (e exitError) ExitCode() int {
	if e.code == 0 {
		return 1
	}
	return e.code
}

// withExitCode tags err with an explicit exit code. Configuration problems
// exit 2 so wrappers can tell them from runtime failures.
func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, err: err}
}

func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return 1
}
