package table

import (
	"context"
	"iter"
	"slices"
	"time"
)

// Row is one normalized commit. An empty Name or Email means the source had no value.
type Row struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// Attributed reports whether the row can be grouped by committer name.
func (r Row) Attributed() bool {
	return r.Name != ""
}

// Table is an immutable, ordered sequence of rows.
type Table struct {
	rows []Row
}

// FromRows builds a table from a copy of rows.
func FromRows(rows []Row) *Table {
	return &Table{rows: slices.Clone(rows)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Row returns the row at index i.
func (t *Table) Row(i int) Row {
	return t.rows[i]
}

// All iterates rows in insertion order.
func (t *Table) All() iter.Seq2[int, Row] {
	return func(yield func(int, Row) bool) {
		if t == nil {
			return
		}
		for i, row := range t.rows {
			if !yield(i, row) {
				return
			}
		}
	}
}

// Rows returns a copy of all rows in insertion order.
func (t *Table) Rows() []Row {
	if t == nil {
		return nil
	}
	return slices.Clone(t.rows)
}

// Builder accumulates rows during ingestion. It has a single writer.
type Builder struct {
	rows []Row
}

// Append adds rows at the end of the table.
func (b *Builder) Append(rows ...Row) {
	b.rows = append(b.rows, rows...)
}

// Len returns the number of rows appended so far.
func (b *Builder) Len() int {
	return len(b.rows)
}

// Freeze returns the finished table. The builder is reset and may be reused.
func (b *Builder) Freeze() *Table {
	frozen := &Table{rows: b.rows}
	b.rows = nil
	return frozen
}

// Sink persists a finished table.
type Sink interface {
	WriteTable(ctx context.Context, t *Table) error
}

// Source reloads a previously persisted table.
type Source interface {
	ReadTable(ctx context.Context) (*Table, error)
}

// Store is a sink that can also serve the table back.
type Store interface {
	Sink
	Source
}
