package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one recordb subcommand, runnable from the command line and
// from the shell. Its name is the first word of Usage.
type Command struct {
	Flags *flag.FlagSet

	// Usage follows "recordb" in help, e.g. "update <id> <field=value>...".
	Usage string

	// Aliases are extra names the command answers to.
	Aliases []string

	// Short is shown in command listings, Long (or Short) in command help.
	Short string
	Long  string

	Exec func(ctx context.Context, o *IO, args []string) error
}

func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// Matches reports whether name selects this command.
func (c *Command) Matches(name string) bool {
	return name == c.Name() || slices.Contains(c.Aliases, name)
}

// HelpLine is the command's entry in listings.
func (c *Command) HelpLine() string {
	short := c.Short
	if len(c.Aliases) > 0 {
		short += " (also: " + strings.Join(c.Aliases, ", ") + ")"
	}

	return fmt.Sprintf("  %-30s %s", c.Usage, short)
}

// PrintHelp writes usage, description and flags for "recordb <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Printf("Usage: recordb %s\n\n%s\n", c.Usage, desc)

	if len(c.Aliases) > 0 {
		o.Printf("\nAliases: %s\n", strings.Join(c.Aliases, ", "))
	}

	if c.Flags.HasFlags() {
		o.Printf("\nFlags:\n%s", c.Flags.FlagUsages())
	}
}

// Run parses args against the command's flags and executes it. Errors go to
// stderr; the result is the exit code.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(io.Discard)

	err := c.Flags.Parse(args)

	switch {
	case errors.Is(err, flag.ErrHelp):
		c.PrintHelp(o)

		return 0
	case err != nil:
		o.ErrPrintln("error:", err)
		o.ErrPrintln("see: recordb", c.Name(), "--help")

		return 1
	}

	err = c.Exec(ctx, o, c.Flags.Args())
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return 0
}
