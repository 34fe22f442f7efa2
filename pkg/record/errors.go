package record

import (
	"errors"
	"strconv"
	"strings"
)

// Sentinel errors. Use [errors.Is] to test for them; most are wrapped in
// [*Error] carrying the table and statement involved.
var (
	// ErrStoreUnavailable indicates the backing file could not be opened,
	// read or written (I/O, permissions, locking, corruption). Never retried.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrStatement indicates SQLite rejected a statement (syntax, missing
	// table or column).
	ErrStatement = errors.New("statement failed")

	// ErrConstraint indicates a constraint violation that was not absorbed
	// by the insert-or-ignore policy (for example on UPDATE).
	ErrConstraint = errors.New("constraint violation")

	// ErrIgnored indicates INSERT OR IGNORE inserted nothing, usually because
	// of a duplicate unique value or a missing NOT NULL value.
	ErrIgnored = errors.New("insert ignored")

	// ErrMalformedFilter indicates one or more filter conditions could not be
	// compiled and were left out of the predicate.
	ErrMalformedFilter = errors.New("malformed filter")

	// ErrUnknownColumn indicates a column name that is not part of the schema.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrInvalidName indicates a table or column name that is not a valid
	// identifier (lowercase a-z, 0-9 and underscore, not starting with a digit).
	ErrInvalidName = errors.New("invalid name")

	// ErrDuplicateModel indicates a record type was registered twice.
	ErrDuplicateModel = errors.New("model already registered")

	// ErrNotFound indicates an update matched no row.
	ErrNotFound = errors.New("not found")

	// ErrLockTimeout indicates the writer lock could not be acquired in time.
	ErrLockTimeout = errors.New("writer lock timeout")
)

var errNilContext = errors.New("context is nil")

// Error is the error type returned by store operations.
//
// The underlying cause comes first, followed by table and statement context:
//
//	statement failed: no such column: agee (table=user stmt="SELECT * FROM user WHERE agee = 1")
//
// Use [errors.As] to extract the fields and [errors.Is] to match sentinels.
type Error struct {
	// Table is the backing table of the model the operation ran on.
	Table string

	// Statement is the SQL text being executed, if any.
	Statement string

	// Err is the underlying cause.
	Err error
}

// Error formats as "<cause> (table=X stmt=Y)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var parts []string

	if e.Table != "" {
		parts = append(parts, "table="+e.Table)
	}

	if e.Statement != "" {
		parts = append(parts, "stmt="+strconv.Quote(e.Statement))
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	if len(parts) == 0 {
		return cause
	}

	suffix := "(" + strings.Join(parts, " ") + ")"
	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// withContext attaches table/statement context. An existing *Error keeps its
// fields; only missing ones are filled in.
func withContext(err error, table, stmt string) error {
	if err == nil {
		return nil
	}

	existing := &Error{}
	if errors.As(err, &existing) {
		if existing.Table == "" {
			existing.Table = table
		}

		if existing.Statement == "" {
			existing.Statement = stmt
		}

		return err
	}

	return &Error{Table: table, Statement: stmt, Err: err}
}

// FilterError reports the conditions that were dropped while compiling a
// filter. It is returned by [Model.Filter] when [Options.StrictFilters] is set.
type FilterError struct {
	Skipped []Skipped
}

func (e *FilterError) Error() string {
	reasons := make([]string, len(e.Skipped))
	for i, s := range e.Skipped {
		reasons[i] = s.String()
	}

	return ErrMalformedFilter.Error() + ": " + strings.Join(reasons, "; ")
}

// Unwrap makes [errors.Is] match [ErrMalformedFilter].
func (e *FilterError) Unwrap() error {
	return ErrMalformedFilter
}
