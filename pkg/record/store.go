package record

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Registry owns the record types registered in one process (or test).
//
// Each record type maps to exactly one table; registering the same type name
// twice in a registry fails. Models stored in the same file share a backend,
// so their writes are serialized together.
type Registry struct {
	opts     Options
	trace    *tracer
	mu       sync.Mutex
	models   map[string]*Model
	backends map[string]*backend
}

// NewRegistry creates a registry. Zero option fields take their defaults.
func NewRegistry(opts Options) (*Registry, error) {
	opts = opts.withDefaults()

	err := opts.validate()
	if err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}

	return &Registry{
		opts:     opts,
		trace:    newTracer(opts.Trace),
		models:   make(map[string]*Model),
		backends: make(map[string]*backend),
	}, nil
}

// Model is the store for one record type, bound to its table.
//
// # Concurrency
//
// Safe for concurrent use. Every operation opens its own connection, so
// there is no shared transaction across calls. Writes ([Model.Create],
// [Row.Update], [Row.Remove], [Model.DropTable], [Model.Reconcile]) are
// serialized per backing file, in-process and across processes.
type Model struct {
	schema  *Schema
	backend *backend
	log     *StatementLog
	strict  bool
}

// Register declares a record type and reconciles its table with the
// declaration: the table is created if missing, otherwise missing columns are
// added and undeclared ones dropped.
//
// name is the record type name; it is lowercased to form the table name. The
// backing file is [Options.File] or, by default, derived from the Go file
// that calls Register.
func (r *Registry) Register(ctx context.Context, name string, fields ...Field) (*Model, error) {
	file := r.opts.File
	if file == "" {
		file = callerFile(2)
	}

	return r.register(ctx, name, r.storePath(file), fields)
}

// RegisterIn is like [Registry.Register] with an explicit backing file name,
// relative to [Options.Dir] unless absolute.
func (r *Registry) RegisterIn(ctx context.Context, file, name string, fields ...Field) (*Model, error) {
	return r.register(ctx, name, r.storePath(file), fields)
}

func (r *Registry) register(ctx context.Context, name, path string, fields []Field) (*Model, error) {
	if ctx == nil {
		return nil, fmt.Errorf("register: %w", errNilContext)
	}

	schema, err := newSchema(name, path, fields)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[schema.table]; ok {
		return nil, fmt.Errorf("register %s: %w", name, ErrDuplicateModel)
	}

	b, ok := r.backends[path]
	if !ok {
		err = os.MkdirAll(filepath.Dir(path), 0o750)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w: %w", name, ErrStoreUnavailable, err)
		}

		b = newBackend(path, r.opts)
		r.backends[path] = b
	}

	m := &Model{
		schema:  schema,
		backend: b,
		log:     newStatementLog(r.trace),
		strict:  r.opts.StrictFilters,
	}

	_, err = m.Reconcile(ctx)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}

	r.models[schema.table] = m

	return m, nil
}

// Model returns a registered model by record type name.
func (r *Registry) Model(name string) (*Model, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.models[strings.ToLower(name)]

	return m, ok
}

func (r *Registry) storePath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}

	return filepath.Join(r.opts.Dir, file)
}

// callerFile derives the default backing file name from the Go source file
// skip frames up the stack: ".../models/user.go" becomes "user.db".
func callerFile(skip int) string {
	_, file, _, ok := runtime.Caller(skip)
	if !ok {
		return "records.db"
	}

	return strings.TrimSuffix(filepath.Base(file), ".go") + ".db"
}

// Schema returns the resolved declaration.
func (m *Model) Schema() *Schema { return m.schema }

// Log returns the statement log of this model.
func (m *Model) Log() *StatementLog { return m.log }

// Queries returns every statement this model executed, separated by blank
// lines.
func (m *Model) Queries() string { return m.log.String() }

// Create inserts a new record and returns it.
//
// The identity is assigned by the store: one more than the current maximum,
// 1 on an empty table. fields names must be declared columns; foreign-key
// fields may hold an [Identifier] (such as a *Row), which is replaced by its
// ID. An explicit "id" field is inserted as given.
//
// Returns [ErrIgnored] if the insert-or-ignore policy dropped the row (for
// example a duplicate unique value), [ErrUnknownColumn] for undeclared fields.
func (m *Model) Create(ctx context.Context, fields map[string]any) (*Row, error) {
	names := make([]string, 0, len(fields))
	values := make(map[string]any, len(fields))

	for k, v := range fields {
		name := strings.ToLower(k)
		names = append(names, name)
		values[name] = v
	}

	ordered, err := m.schema.orderFields(names)
	if err != nil {
		return nil, m.wrap(fmt.Errorf("create: %w", err), "")
	}

	vals := make([]any, len(ordered))

	for i, name := range ordered {
		vals[i] = m.resolveReference(name, values[name])
	}

	var stmt string

	if len(ordered) == 0 {
		stmt = "INSERT OR IGNORE INTO " + m.schema.table + " DEFAULT VALUES"
	} else {
		stmt, err = buildInsert(m.schema, ordered, vals)
		if err != nil {
			return nil, m.wrap(fmt.Errorf("create: %w", err), "")
		}
	}

	release, err := m.backend.lockWrite(ctx)
	if err != nil {
		return nil, m.wrap(fmt.Errorf("create: %w", err), stmt)
	}
	defer release()

	var id int64

	err = m.backend.withConn(ctx, func(db *sql.DB) error {
		m.log.record(stmt)

		res, execErr := execStmt(ctx, db, stmt)
		if execErr != nil {
			return execErr
		}

		affected, execErr := res.RowsAffected()
		if execErr != nil {
			return fmt.Errorf("%w: rows affected: %w", ErrStoreUnavailable, execErr)
		}

		if affected == 0 {
			return ErrIgnored
		}

		id, execErr = res.LastInsertId()
		if execErr != nil {
			return fmt.Errorf("%w: last insert id: %w", ErrStoreUnavailable, execErr)
		}

		return nil
	})
	if err != nil {
		return nil, m.wrap(fmt.Errorf("create: %w", err), stmt)
	}

	row := &Row{model: m, cols: []string{idColumn}, vals: []any{id}}

	for i, name := range ordered {
		if name == idColumn {
			continue
		}

		row.cols = append(row.cols, name)
		row.vals = append(row.vals, vals[i])
	}

	return row, nil
}

// resolveReference replaces an [Identifier] held by a foreign-key field with
// its ID.
func (m *Model) resolveReference(name string, v any) any {
	col, _ := m.schema.Column(name)
	if _, ok := col.Reference(); !ok {
		return v
	}

	if ref, ok := v.(Identifier); ok && !isNil(ref) {
		return ref.ID()
	}

	return v
}

// All returns every row, shaped by cfg.
func (m *Model) All(ctx context.Context, cfg ResultConfig) (*Rows, error) {
	stmt, err := buildSelect(m.schema, nil, "", cfg)
	if err != nil {
		return nil, m.wrap(fmt.Errorf("all: %w", err), "")
	}

	return m.fetch(ctx, "all", stmt)
}

// Get returns the named columns of every row, shaped by cfg. Names that are
// not declared columns are ignored; if none remain every column is returned.
func (m *Model) Get(ctx context.Context, fields []string, cfg ResultConfig) (*Rows, error) {
	projection := make([]string, 0, len(fields))

	for _, f := range fields {
		name := strings.ToLower(f)
		if m.schema.Has(name) {
			projection = append(projection, name)
		}
	}

	stmt, err := buildSelect(m.schema, projection, "", cfg)
	if err != nil {
		return nil, m.wrap(fmt.Errorf("get: %w", err), "")
	}

	return m.fetch(ctx, "get", stmt)
}

// Filter returns the rows matching every node, shaped by cfg. With no nodes
// it matches every row.
//
// Conditions that cannot be compiled (unknown operator suffix, malformed key,
// bad BETWEEN operand) are left out and reported by [Rows.Skipped]. If
// [Options.StrictFilters] is set, Filter instead fails with [*FilterError]
// and runs nothing.
func (m *Model) Filter(ctx context.Context, cfg ResultConfig, nodes ...Node) (*Rows, error) {
	pred := Compile(nodes...)

	if m.strict && len(pred.Skipped) > 0 {
		return nil, m.wrap(fmt.Errorf("filter: %w", &FilterError{Skipped: pred.Skipped}), "")
	}

	stmt, err := buildSelect(m.schema, nil, pred.SQL, cfg)
	if err != nil {
		return nil, m.wrap(fmt.Errorf("filter: %w", err), "")
	}

	rows, err := m.fetch(ctx, "filter", stmt)
	if err != nil {
		return nil, err
	}

	rows.skipped = pred.Skipped

	return rows, nil
}

// First returns the row with id 1, or nil if there is none.
func (m *Model) First(ctx context.Context) (*Row, error) {
	stmt := "SELECT * FROM " + m.schema.table + " WHERE id = 1"

	rows, err := m.fetch(ctx, "first", stmt)
	if err != nil {
		return nil, err
	}

	return rows.First(), nil
}

// Last returns the row with the highest id, or nil if the table is empty.
func (m *Model) Last(ctx context.Context) (*Row, error) {
	stmt := "SELECT * FROM " + m.schema.table +
		" WHERE id = (SELECT MAX(id) FROM " + m.schema.table + ")"

	rows, err := m.fetch(ctx, "last", stmt)
	if err != nil {
		return nil, err
	}

	return rows.First(), nil
}

// Scalar is an aggregate result keyed by the requested column.
type Scalar struct {
	Key   string
	Value any
}

// Int64 returns the value as an integer, truncating floats.
func (s Scalar) Int64() (int64, bool) {
	switch v := s.Value.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Float64 returns the value as a float.
func (s Scalar) Float64() (float64, bool) {
	switch v := s.Value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Max returns the largest value of column. ok is false on an empty table.
func (m *Model) Max(ctx context.Context, column string) (Scalar, bool, error) {
	return m.aggregate(ctx, aggMax, column)
}

// Min returns the smallest value of column. ok is false on an empty table.
func (m *Model) Min(ctx context.Context, column string) (Scalar, bool, error) {
	return m.aggregate(ctx, aggMin, column)
}

// Avg returns the average of column. ok is false on an empty table.
func (m *Model) Avg(ctx context.Context, column string) (Scalar, bool, error) {
	return m.aggregate(ctx, aggAvg, column)
}

// Sum returns the sum of column. ok is false on an empty table.
func (m *Model) Sum(ctx context.Context, column string) (Scalar, bool, error) {
	return m.aggregate(ctx, aggSum, column)
}

// Count returns the number of rows keyed by "count".
func (m *Model) Count(ctx context.Context) (Scalar, bool, error) {
	return m.aggregate(ctx, aggCount, "count")
}

func (m *Model) aggregate(ctx context.Context, fn aggregate, column string) (Scalar, bool, error) {
	op := strings.ToLower(string(fn))

	if fn != aggCount {
		column = strings.ToLower(column)
		if !m.schema.Has(column) {
			return Scalar{}, false, m.wrap(fmt.Errorf("%s: %w: %q", op, ErrUnknownColumn, column), "")
		}
	}

	stmt := buildAggregate(m.schema, fn, column)

	res, err := m.query(ctx, op, stmt)
	if err != nil {
		return Scalar{}, false, err
	}

	if len(res.rows) == 0 || len(res.rows[0]) == 0 || res.rows[0][0] == nil {
		return Scalar{}, false, nil
	}

	return Scalar{Key: column, Value: res.rows[0][0]}, true, nil
}

// DropTable drops the backing table unconditionally. The model is unusable
// afterwards until [Model.Reconcile] recreates the table.
func (m *Model) DropTable(ctx context.Context) error {
	stmt := buildDropTable(m.schema)

	release, err := m.backend.lockWrite(ctx)
	if err != nil {
		return m.wrap(fmt.Errorf("drop table: %w", err), stmt)
	}
	defer release()

	err = m.backend.withConn(ctx, func(db *sql.DB) error {
		m.log.record(stmt)

		_, execErr := execStmt(ctx, db, stmt)

		return execErr
	})
	if err != nil {
		return m.wrap(fmt.Errorf("drop table: %w", err), stmt)
	}

	return nil
}

// fetch runs a SELECT and materializes its rows.
func (m *Model) fetch(ctx context.Context, op, stmt string) (*Rows, error) {
	res, err := m.query(ctx, op, stmt)
	if err != nil {
		return nil, err
	}

	return m.materialize(res), nil
}

func (m *Model) query(ctx context.Context, op, stmt string) (result, error) {
	if ctx == nil {
		return result{}, fmt.Errorf("%s: %w", op, errNilContext)
	}

	release := m.backend.lockRead()
	defer release()

	var res result

	err := m.backend.withConn(ctx, func(db *sql.DB) error {
		m.log.record(stmt)

		var queryErr error

		res, queryErr = queryStmt(ctx, db, stmt)

		return queryErr
	})
	if err != nil {
		return result{}, m.wrap(fmt.Errorf("%s: %w", op, err), stmt)
	}

	return res, nil
}

func (m *Model) wrap(err error, stmt string) error {
	return withContext(err, m.schema.table, stmt)
}
