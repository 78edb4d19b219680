// Package store defines the triple store abstraction the consistency
// pipeline runs against, together with a structured query model shared by
// every backend.
package store

import (
	"context"
	"errors"

	"github.com/emergent-company/graphmerge/pkg/rdf"
)

var (
	// ErrMalformedQuery marks client input that cannot be evaluated.
	ErrMalformedQuery = errors.New("malformed query")
	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("transaction already committed or rolled back")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// Store is a tenant-scoped quad store.
type Store interface {
	// Begin starts a write transaction. The caller owns it exclusively and
	// must end it with Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)
	// Query evaluates a read-only query against committed data.
	Query(ctx context.Context, q Query) (Rows, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tx buffers mutations until Commit.
//
// Removing a statement that is not present is not an error. Rollback after
// Commit is a no-op so it can always be deferred.
type Tx interface {
	Insert(ctx context.Context, stmts ...rdf.Statement) error
	Remove(ctx context.Context, stmts ...rdf.Statement) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Registry hands out the store of a tenant.
type Registry interface {
	ForTenant(ctx context.Context, tenant string) (Store, error)
	// Tenants lists the known tenants in sorted order.
	Tenants() []string
}

// Binding maps variable names to terms for one solution.
type Binding map[string]rdf.Term

// Rows streams query solutions.
type Rows interface {
	Next() bool
	Binding() Binding
	Err() error
	Close() error
}

// SliceRows adapts a materialized result to Rows.
type SliceRows struct {
	rows []Binding
	pos  int
}

// NewSliceRows wraps rows.
func NewSliceRows(rows []Binding) *SliceRows {
	return &SliceRows{rows: rows, pos: -1}
}

func (r *SliceRows) Next() bool {
	if r.pos+1 >= len(r.rows) {
		r.pos = len(r.rows)
		return false
	}
	r.pos++
	return true
}

func (r *SliceRows) Binding() Binding {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return nil
	}
	return r.rows[r.pos]
}

func (r *SliceRows) Err() error   { return nil }
func (r *SliceRows) Close() error { return nil }

// Collect drains rows into a slice and closes it.
func Collect(rows Rows) ([]Binding, error) {
	defer rows.Close()
	var out []Binding
	for rows.Next() {
		out = append(out, rows.Binding())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// QueryAll runs q and collects the result.
func QueryAll(ctx context.Context, s Store, q Query) ([]Binding, error) {
	rows, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return Collect(rows)
}

// StatementsAbout returns every default-partition statement with subject s.
func StatementsAbout(ctx context.Context, st Store, s rdf.Term) ([]rdf.Statement, error) {
	q := Query{
		Select: []string{"p", "o"},
		Where:  []Pattern{{Subject: Const(s), Predicate: Var("p"), Object: Var("o")}},
	}
	rows, err := QueryAll(ctx, st, q)
	if err != nil {
		return nil, err
	}
	out := make([]rdf.Statement, 0, len(rows))
	for _, b := range rows {
		out = append(out, rdf.NewStatement(s, b["p"], b["o"]))
	}
	return out, nil
}

// StatementsReferencing returns every default-partition statement with
// object o.
func StatementsReferencing(ctx context.Context, st Store, o rdf.Term) ([]rdf.Statement, error) {
	q := Query{
		Select: []string{"s", "p"},
		Where:  []Pattern{{Subject: Var("s"), Predicate: Var("p"), Object: Const(o)}},
	}
	rows, err := QueryAll(ctx, st, q)
	if err != nil {
		return nil, err
	}
	out := make([]rdf.Statement, 0, len(rows))
	for _, b := range rows {
		out = append(out, rdf.NewStatement(b["s"], b["p"], o))
	}
	return out, nil
}
