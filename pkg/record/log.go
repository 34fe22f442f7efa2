package record

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
)

// StatementLog is the append-only record of every statement a model
// executed, kept for the lifetime of its [Registry]. Safe for concurrent use.
type StatementLog struct {
	mu    sync.Mutex
	stmts []string
	trace *tracer
}

func newStatementLog(trace *tracer) *StatementLog {
	return &StatementLog{trace: trace}
}

func (l *StatementLog) record(stmt string) {
	l.mu.Lock()
	l.stmts = append(l.stmts, stmt)
	l.mu.Unlock()

	l.trace.println(stmt)
}

// tracer serializes writes to [Options.Trace]. One tracer is shared by every
// model of a registry. A nil tracer discards.
type tracer struct {
	mu sync.Mutex
	w  io.Writer
}

func newTracer(w io.Writer) *tracer {
	if w == nil {
		return nil
	}

	return &tracer{w: w}
}

func (t *tracer) println(stmt string) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, _ = fmt.Fprintln(t.w, stmt)
}

// Statements returns a copy of the logged statements, oldest first.
func (l *StatementLog) Statements() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.stmts))
	copy(out, l.stmts)

	return out
}

// Len returns the number of logged statements.
func (l *StatementLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.stmts)
}

// String joins the statements with blank lines.
func (l *StatementLog) String() string {
	return strings.Join(l.Statements(), "\n\n")
}

// WriteFile atomically replaces path with the log, one statement per
// paragraph. Readers never observe a partially written file.
func (l *StatementLog) WriteFile(path string) error {
	text := l.String()
	if text != "" {
		text += "\n"
	}

	err := atomic.WriteFile(path, strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("write statement log: %w", err)
	}

	return nil
}
