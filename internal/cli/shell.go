package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// prompter reads command lines. liner.State satisfies it.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// linerPrompter adds history persistence around a liner.State.
type linerPrompter struct {
	*liner.State

	historyPath string
}

func newLinerPrompter(env map[string]string) *linerPrompter {
	p := &linerPrompter{State: liner.NewLiner()}
	p.SetCtrlCAborts(true)

	if home := env["HOME"]; home != "" {
		p.historyPath = filepath.Join(home, ".recordb_history")
	}

	if p.historyPath != "" {
		if f, err := os.Open(p.historyPath); err == nil {
			_, _ = p.ReadHistory(f)
			_ = f.Close()
		}
	}

	return p
}

// Close saves history and restores the terminal.
func (p *linerPrompter) Close() error {
	if p.historyPath != "" {
		if f, err := os.Create(p.historyPath); err == nil {
			_, _ = p.WriteHistory(f)
			_ = f.Close()
		}
	}

	return p.State.Close()
}

// runShell reads command lines from p and runs them against s until EOF,
// Ctrl-C or "exit". Command errors are printed and the loop continues.
func runShell(ctx context.Context, o *IO, s *session, p prompter) error {
	defer func() { _ = p.Close() }()

	o.Printf("recordb shell (table %s in %s)\n", s.model.Schema().Table(), s.model.Schema().Path())
	o.Println("Type 'help' for available commands.")

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := p.Prompt("recordb> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				o.Println()

				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		p.AppendHistory(line)

		parts := splitArgs(line)
		name := strings.ToLower(parts[0])

		switch name {
		case "exit", "quit", "q":
			return nil
		case "help", "?":
			for _, c := range s.commands() {
				o.Println(c.HelpLine())
			}

			o.Printf("  %-30s %s\n", "exit", "Leave the shell")

			continue
		}

		cmd := s.find(name)
		if cmd == nil {
			o.Printf("Unknown command: %s (type 'help' for commands)\n", name)

			continue
		}

		cmd.Run(ctx, o, parts[1:])

		o.Finish()
	}
}

// splitArgs splits a line on whitespace, keeping single- or double-quoted
// sections together. Quotes are kept so values stay strings.
func splitArgs(line string) []string {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		inArg bool
	)

	for _, r := range line {
		switch {
		case quote != 0:
			cur.WriteRune(r)

			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true

			cur.WriteRune(r)
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()

				inArg = false
			}
		default:
			inArg = true

			cur.WriteRune(r)
		}
	}

	if inArg {
		args = append(args, cur.String())
	}

	return args
}
