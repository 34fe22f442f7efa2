package record

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// Row is a materialized record: field values in column order, bound to the
// model it was read from.
//
// A Row is not safe for concurrent mutation. [Row.Update] replaces its
// values; every other method only reads.
type Row struct {
	cols  []string
	vals  []any
	model *Model
}

// Fields returns the held field names in order.
func (r *Row) Fields() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)

	return out
}

// Values returns the held values in field order.
func (r *Row) Values() []any {
	out := make([]any, len(r.vals))
	copy(out, r.vals)

	return out
}

// Get returns the value of a held field.
func (r *Row) Get(name string) (any, bool) {
	name = strings.ToLower(name)

	for i, col := range r.cols {
		if col == name {
			return r.vals[i], true
		}
	}

	return nil, false
}

// Map returns the held fields as a map.
func (r *Row) Map() map[string]any {
	out := make(map[string]any, len(r.cols))
	for i, col := range r.cols {
		out[col] = r.vals[i]
	}

	return out
}

// ID returns the row identity, or 0 if the row does not hold it (for
// example a [Model.Get] projection without "id").
func (r *Row) ID() int64 {
	if r == nil {
		return 0
	}

	v, ok := r.Get(idColumn)
	if !ok {
		return 0
	}

	switch id := v.(type) {
	case int64:
		return id
	case int:
		return int64(id)
	default:
		return 0
	}
}

// String renders the row as <id=1, name='Ann'>.
func (r *Row) String() string {
	parts := make([]string, len(r.cols))

	for i, col := range r.cols {
		lit, err := Literal(r.vals[i])
		if err != nil {
			lit = fmt.Sprint(r.vals[i])
		}

		parts[i] = col + "=" + lit
	}

	return "<" + strings.Join(parts, ", ") + ">"
}

// Update writes changes to every stored row matching the fields this row
// holds, then refreshes the row from the store by id. Rows without an id
// merge the changes locally instead.
//
// An empty changes map does nothing. Unknown field names fail with
// [ErrUnknownColumn]; if nothing matched the update fails with [ErrNotFound]
// and the row is left unchanged.
func (r *Row) Update(ctx context.Context, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}

	m := r.model

	names := make([]string, 0, len(changes))
	values := make(map[string]any, len(changes))

	for k, v := range changes {
		name := strings.ToLower(k)
		names = append(names, name)
		values[name] = v
	}

	ordered, err := m.schema.orderFields(names)
	if err != nil {
		return m.wrap(fmt.Errorf("update: %w", err), "")
	}

	vals := make([]any, len(ordered))
	for i, name := range ordered {
		vals[i] = m.resolveReference(name, values[name])
	}

	stmt, err := buildUpdate(m.schema, ordered, vals, r)
	if err != nil {
		return m.wrap(fmt.Errorf("update: %w", err), "")
	}

	release, err := m.backend.lockWrite(ctx)
	if err != nil {
		return m.wrap(fmt.Errorf("update: %w", err), stmt)
	}
	defer release()

	var refreshed *Row

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
			return ErrNotFound
		}

		id := r.ID()
		if id == 0 {
			return nil
		}

		// The update may have changed the id itself.
		if v, ok := values[idColumn]; ok {
			if newID, isInt := asInt64(v); isInt {
				id = newID
			}
		}

		refresh := "SELECT * FROM " + m.schema.table + " WHERE id = " + strconv.FormatInt(id, 10)
		stmt = refresh

		m.log.record(refresh)

		res2, queryErr := queryStmt(ctx, db, refresh)
		if queryErr != nil {
			return queryErr
		}

		refreshed = m.materialize(res2).First()

		return nil
	})
	if err != nil {
		return m.wrap(fmt.Errorf("update: %w", err), stmt)
	}

	if refreshed != nil {
		r.cols, r.vals = refreshed.cols, refreshed.vals

		return nil
	}

	r.merge(ordered, vals)

	return nil
}

func (r *Row) merge(cols []string, vals []any) {
	for i, col := range cols {
		found := false

		for j, held := range r.cols {
			if held == col {
				r.vals[j] = vals[i]
				found = true

				break
			}
		}

		if !found {
			r.cols = append(r.cols, col)
			r.vals = append(r.vals, vals[i])
		}
	}
}

// Remove deletes every stored row matching the fields this row holds. The
// row itself keeps its values; using it for further writes is a caller error.
func (r *Row) Remove(ctx context.Context) error {
	m := r.model

	stmt, err := buildDelete(m.schema, r)
	if err != nil {
		return m.wrap(fmt.Errorf("remove: %w", err), "")
	}

	release, err := m.backend.lockWrite(ctx)
	if err != nil {
		return m.wrap(fmt.Errorf("remove: %w", err), stmt)
	}
	defer release()

	err = m.backend.withConn(ctx, func(db *sql.DB) error {
		m.log.record(stmt)

		_, execErr := execStmt(ctx, db, stmt)

		return execErr
	})
	if err != nil {
		return m.wrap(fmt.Errorf("remove: %w", err), stmt)
	}

	return nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case Identifier:
		return n.ID(), true
	default:
		return 0, false
	}
}

// Rows is the ordered result of one retrieval. It never changes after
// construction; iterating it again yields the same rows.
type Rows struct {
	rows    []*Row
	skipped []Skipped
}

// Count returns the number of rows.
func (rs *Rows) Count() int { return len(rs.rows) }

// First returns the first row, or nil if there are none.
func (rs *Rows) First() *Row {
	if len(rs.rows) == 0 {
		return nil
	}

	return rs.rows[0]
}

// Last returns the last row, or nil if there are none.
func (rs *Rows) Last() *Row {
	if len(rs.rows) == 0 {
		return nil
	}

	return rs.rows[len(rs.rows)-1]
}

// At returns the row at index i, or nil if i is out of range.
func (rs *Rows) At(i int) *Row {
	if i < 0 || i >= len(rs.rows) {
		return nil
	}

	return rs.rows[i]
}

// All iterates the rows in order.
func (rs *Rows) All() iter.Seq[*Row] {
	return func(yield func(*Row) bool) {
		for _, row := range rs.rows {
			if !yield(row) {
				return
			}
		}
	}
}

// Slice returns the rows as a new slice.
func (rs *Rows) Slice() []*Row {
	out := make([]*Row, len(rs.rows))
	copy(out, rs.rows)

	return out
}

// Skipped lists the filter conditions that were left out of the query.
// Always empty for retrievals other than [Model.Filter].
func (rs *Rows) Skipped() []Skipped {
	return rs.skipped
}

// materialize turns raw tuples into rows. The driver returns TEXT as
// []byte in some paths; those become strings unless the column is a BLOB.
func (m *Model) materialize(res result) *Rows {
	rows := make([]*Row, 0, len(res.rows))

	for _, tuple := range res.rows {
		row := &Row{
			model: m,
			cols:  make([]string, len(res.columns)),
			vals:  make([]any, len(res.columns)),
		}

		for i, name := range res.columns {
			name = strings.ToLower(name)
			row.cols[i] = name
			row.vals[i] = m.normalize(name, tuple[i])
		}

		rows = append(rows, row)
	}

	return &Rows{rows: rows}
}

func (m *Model) normalize(name string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}

	if m.schema.hasBlob {
		if col, declared := m.schema.Column(name); declared && col.typ == TypeBlob {
			return b
		}
	}

	return string(b)
}
