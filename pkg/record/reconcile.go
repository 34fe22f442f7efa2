package record

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// Migration describes what a reconciliation did to the live table.
type Migration struct {
	// Created is true if the table did not exist and was created.
	Created bool

	// Added lists columns added to the live table, in declaration order.
	Added []string

	// Dropped lists live columns removed because they are no longer declared,
	// in live table order.
	Dropped []string

	// Statements lists every DDL statement executed, in order.
	Statements []string
}

// Changed reports whether any DDL ran.
func (m Migration) Changed() bool {
	return len(m.Statements) > 0
}

// Reconcile makes the live table match the declared schema.
//
// A missing table is created. Otherwise the live and declared column sets
// are compared: declared columns missing from the table are added first,
// then live columns no longer declared are dropped. Column order is not
// part of the comparison, so a reordered declaration runs nothing.
//
// Running Reconcile again with an unchanged declaration executes no DDL.
// SQLite refuses to add a UNIQUE column or drop a column that is UNIQUE,
// indexed or part of a foreign key; those errors are returned as-is and the
// statements executed before them stay applied.
func (m *Model) Reconcile(ctx context.Context) (Migration, error) {
	if ctx == nil {
		return Migration{}, fmt.Errorf("reconcile: %w", errNilContext)
	}

	release, err := m.backend.lockWrite(ctx)
	if err != nil {
		return Migration{}, m.wrap(fmt.Errorf("reconcile: %w", err), "")
	}
	defer release()

	var (
		mig  Migration
		stmt string
	)

	exec := func(db *sql.DB, s string) error {
		stmt = s

		m.log.record(s)

		_, execErr := execStmt(ctx, db, s)
		if execErr != nil {
			return execErr
		}

		mig.Statements = append(mig.Statements, s)

		return nil
	}

	err = m.backend.withConn(ctx, func(db *sql.DB) error {
		stmt = "PRAGMA table_info(" + m.schema.table + ")"

		live, liveErr := liveColumns(ctx, db, m.schema.table)
		if liveErr != nil {
			return liveErr
		}

		if len(live) == 0 {
			mig.Created = true

			return exec(db, m.schema.CreateTableSQL())
		}

		add, drop := diffColumns(m.schema.Columns(), live)

		for _, name := range add {
			execErr := exec(db, m.schema.addColumnSQL(name))
			if execErr != nil {
				return execErr
			}

			mig.Added = append(mig.Added, name)
		}

		for _, name := range drop {
			execErr := exec(db, m.schema.dropColumnSQL(name))
			if execErr != nil {
				return execErr
			}

			mig.Dropped = append(mig.Dropped, name)
		}

		return nil
	})
	if err != nil {
		return mig, m.wrap(fmt.Errorf("reconcile: %w", err), stmt)
	}

	return mig, nil
}

// diffColumns returns the declared names missing from live (declaration
// order) and the live names no longer declared (live order).
func diffColumns(declared, live []string) (add, drop []string) {
	for _, name := range declared {
		if !slices.Contains(live, name) {
			add = append(add, name)
		}
	}

	for _, name := range live {
		if !slices.Contains(declared, name) {
			drop = append(drop, name)
		}
	}

	return add, drop
}
