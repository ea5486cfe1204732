// Package console is the terminal front end: one subcommand per user action,
// plus an interactive shell that keeps the store alive between commands.
package console

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"bilancio/internal/app"
	"bilancio/internal/log"
	"bilancio/internal/store"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// usageError marks bad invocations; Run prints usage and exits with 2.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// errReported means the command already printed what went wrong.
var errReported = errors.New("reported")

type command struct {
	name    string
	args    string
	summary string
	run     func(c *Console, ctx context.Context, args []string) error
}

var commands = map[string]command{}

func register(cmd command) {
	commands[cmd.name] = cmd
}

type Console struct {
	ctrl   *app.Controller
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *log.Logger
}

func New(ctrl *app.Controller, in io.Reader, out, errOut io.Writer, logger *log.Logger) *Console {
	if logger == nil {
		logger = log.Discard()
	}
	return &Console{
		ctrl:   ctrl,
		in:     in,
		out:    out,
		errOut: errOut,
		logger: logger.WithComponent(log.ComponentConsole),
	}
}

// Run executes one subcommand and returns the process exit code.
func (c *Console) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		c.usage()
		return ExitUsage
	}
	name, rest := args[0], args[1:]
	if name == "help" || name == "-h" || name == "--help" {
		c.usage()
		return ExitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(c.errOut, "unknown command %q\n\n", name)
		c.usage()
		return ExitUsage
	}
	return c.exitCode(cmd.run(c, ctx, rest))
}

func (c *Console) exitCode(err error) int {
	var uerr usageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return ExitOK
	case errors.As(err, &uerr):
		fmt.Fprintf(c.errOut, "%s\n\n", uerr.msg)
		c.usage()
		return ExitUsage
	case errors.Is(err, errReported):
		return ExitError
	case errors.Is(err, store.ErrNotPersisted):
		fmt.Fprintf(c.errOut, "warning: change kept in memory but not saved: %v\n", err)
		return ExitError
	default:
		fmt.Fprintf(c.errOut, "error: %v\n", err)
		return ExitError
	}
}

func (c *Console) usage() {
	fmt.Fprintln(c.errOut, "usage: bilancio <command> [flags]")
	fmt.Fprintln(c.errOut)
	fmt.Fprintln(c.errOut, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(c.errOut, "  %-28s %s\n", strings.TrimSpace(cmd.name+" "+cmd.args), cmd.summary)
	}
}

// flagSet returns a flag set whose errors and help go to the console's
// error stream instead of terminating the process.
func (c *Console) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// parse wraps flag parsing errors as usage errors.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	return nil
}

// splitID accepts the id before or after the flags.
func splitID(fs *flag.FlagSet, args []string) (string, error) {
	var id string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		id, args = args[0], args[1:]
	}
	if err := parse(fs, args); err != nil {
		return "", err
	}
	if id == "" && fs.NArg() > 0 {
		id = fs.Arg(0)
		if fs.NArg() > 1 {
			return "", usagef("%s: unexpected arguments %v", fs.Name(), fs.Args()[1:])
		}
	} else if fs.NArg() > 0 {
		return "", usagef("%s: unexpected arguments %v", fs.Name(), fs.Args())
	}
	if id == "" {
		return "", usagef("%s: missing transaction id", fs.Name())
	}
	return id, nil
}
