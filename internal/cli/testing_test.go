package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

// CLI runs recordb commands against a per-test store directory.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

func NewCLI(t *testing.T) *CLI {
	t.Helper()

	return &CLI{
		t:   t,
		Dir: t.TempDir(),
		Env: map[string]string{},
	}
}

// Run executes the CLI with the given args and returns stdout, stderr, and
// exit code. "--dir" is added automatically.
func (c *CLI) Run(args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"recordb", "--dir", c.Dir}, args...)
	code := Run(nil, &outBuf, &errBuf, fullArgs, c.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test on a non-zero exit code.
// Returns trimmed stdout.
func (c *CLI) MustRun(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code != 0 {
		c.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if it succeeds. Returns
// trimmed stderr.
func (c *CLI) MustFail(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code == 0 {
		c.t.Fatalf("command %v should fail\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// scriptPrompter feeds fixed lines to the shell.
type scriptPrompter struct {
	lines   []string
	history []string
	closed  bool
}

func (p *scriptPrompter) Prompt(string) (string, error) {
	if len(p.lines) == 0 {
		return "", io.EOF
	}

	line := p.lines[0]
	p.lines = p.lines[1:]

	return line, nil
}

func (p *scriptPrompter) AppendHistory(item string) { p.history = append(p.history, item) }

func (p *scriptPrompter) Close() error {
	p.closed = true

	return nil
}
