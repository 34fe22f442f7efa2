// Package record is an embedded active-record data layer on top of SQLite.
//
// A record type is declared as an ordered list of [Field]s and registered
// with a [Registry]. Registration reconciles the backing table with the
// declaration (creating it, adding and dropping columns) and returns a
// [Model] that creates, retrieves, filters, aggregates, updates and removes
// records.
//
// Filters are trees of [Node]s. Keyword conditions use Django-style
// suffixes:
//
//	m.Filter(ctx, record.ResultConfig{}, record.Where("age__gte", 26))
//	m.Filter(ctx, record.ResultConfig{}, record.Or(
//		record.Where("name", "Ann"),
//		record.Not(record.Where("age__between", []int{20, 29})),
//	))
//
// Every operation opens its own connection, runs in auto-commit mode and
// closes the connection. Writes to one backing file are serialized across
// goroutines and processes; there are no multi-statement transactions.
//
// Every executed statement is appended to the model's [StatementLog].
package record
