// Package memstore is an in-memory quad store. It backs the "memory" store
// backend and doubles as the store used by pipeline tests.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/internal/store/eval"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// Store keeps every quad of one tenant in insertion order.
type Store struct {
	mu       sync.RWMutex
	quads    *rdf.Graph
	closed   bool
	failNext error
	commits  int
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{quads: &rdf.Graph{}}
}

// Seed inserts statements outside of a transaction.
func (s *Store) Seed(stmts ...rdf.Statement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quads.Add(stmts...)
}

// Statements returns a snapshot of every quad.
func (s *Store) Statements() []rdf.Statement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quads.Statements()
}

// Data returns a snapshot of the default partition.
func (s *Store) Data() *rdf.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := &rdf.Graph{}
	for _, st := range s.quads.Statements() {
		if st.Context.IsZero() {
			g.Add(st)
		}
	}
	return g
}

// Contains reports whether the exact quad is stored.
func (s *Store) Contains(st rdf.Statement) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quads.Contains(st)
}

// Commits returns the number of successful commits.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// FailNextCommit makes the next Commit fail with err without applying
// anything.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return &tx{s: s}, nil
}

func (s *Store) Query(ctx context.Context, q store.Query) (store.Rows, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, store.ErrClosed
	}
	snapshot := s.quads.Clone()
	s.mu.RUnlock()

	rows, err := eval.Run(ctx, q, eval.MatcherFunc(func(_ context.Context, sub, p, o, graph rdf.Term, anyContext bool) ([]rdf.Statement, error) {
		var out []rdf.Statement
		for _, st := range snapshot.Filter(sub, p, o) {
			if anyContext || st.Context == graph {
				out = append(out, st)
			}
		}
		return out, nil
	}))
	if err != nil {
		return nil, err
	}
	return store.NewSliceRows(rows), nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type opKind int

const (
	opInsert opKind = iota
	opRemove
)

type op struct {
	kind opKind
	st   rdf.Statement
}

// tx buffers operations in call order and applies them atomically.
type tx struct {
	s    *Store
	ops  []op
	done bool
}

func (t *tx) Insert(ctx context.Context, stmts ...rdf.Statement) error {
	return t.add(opInsert, stmts)
}

func (t *tx) Remove(ctx context.Context, stmts ...rdf.Statement) error {
	return t.add(opRemove, stmts)
}

func (t *tx) add(kind opKind, stmts []rdf.Statement) error {
	if t.done {
		return store.ErrTxDone
	}
	for _, st := range stmts {
		if !st.Valid() {
			return fmt.Errorf("invalid statement %s", st)
		}
		t.ops = append(t.ops, op{kind: kind, st: st})
	}
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.closed {
		return store.ErrClosed
	}
	if err := t.s.failNext; err != nil {
		t.s.failNext = nil
		return err
	}
	for _, o := range t.ops {
		switch o.kind {
		case opInsert:
			t.s.quads.Add(o.st)
		case opRemove:
			t.s.quads.Remove(o.st)
		}
	}
	t.s.commits++
	t.done = true
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.ops = nil
	return nil
}
