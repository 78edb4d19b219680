package badgerstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/internal/store/eval"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

var indexes = [...]index{indexSPO, indexPOS, indexOSP}

// Store is the view of one tenant on a shared DB.
type Store struct {
	db     *DB
	tenant string
	log    *slog.Logger
}

var _ store.Store = (*Store)(nil)

// ForTenant returns the store of tenant.
func (d *DB) ForTenant(tenant string) *Store {
	return &Store{
		db:     d,
		tenant: tenant,
		log:    d.log.With(logger.Scope("badgerstore"), slog.String("tenant", tenant)),
	}
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if s.db.db.IsClosed() {
		return nil, store.ErrClosed
	}
	return &tx{txn: s.db.db.NewTransaction(true), tenant: s.tenant}, nil
}

func (s *Store) Query(ctx context.Context, q store.Query) (store.Rows, error) {
	if s.db.db.IsClosed() {
		return nil, store.ErrClosed
	}
	txn := s.db.db.NewTransaction(false)
	defer txn.Discard()

	rows, err := eval.Run(ctx, q, eval.MatcherFunc(func(ctx context.Context, sub, p, o, graph rdf.Term, anyContext bool) ([]rdf.Statement, error) {
		return s.match(ctx, txn, sub, p, o, graph, anyContext)
	}))
	if err != nil {
		return nil, err
	}
	return store.NewSliceRows(rows), nil
}

func (s *Store) match(ctx context.Context, txn *badger.Txn, sub, p, o, graph rdf.Term, anyContext bool) ([]rdf.Statement, error) {
	idx, prefix := scanPlan(s.tenant, sub, p, o)
	base := tenantPrefix(s.tenant, idx)

	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()

	var out []rdf.Statement
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st, err := decodeKey(base, idx, it.Item().Key())
		if err != nil {
			s.log.Warn("skipping unreadable key", logger.Error(err))
			continue
		}
		if !p.IsZero() && st.Predicate != p {
			continue
		}
		if !o.IsZero() && st.Object != o {
			continue
		}
		if !anyContext && st.Context != graph {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db.db.IsClosed() {
		return store.ErrClosed
	}
	return nil
}

// Close is a no-op; the shared DB is closed by its owner.
func (s *Store) Close() error { return nil }

type tx struct {
	txn    *badger.Txn
	tenant string
	done   bool
}

func (t *tx) Insert(ctx context.Context, stmts ...rdf.Statement) error {
	if t.done {
		return store.ErrTxDone
	}
	for _, st := range stmts {
		if !st.Valid() {
			return fmt.Errorf("invalid statement %s", st)
		}
		for _, idx := range indexes {
			if err := t.txn.Set(encodeKey(t.tenant, idx, st), nil); err != nil {
				return fmt.Errorf("insert statement: %w", err)
			}
		}
	}
	return nil
}

func (t *tx) Remove(ctx context.Context, stmts ...rdf.Statement) error {
	if t.done {
		return store.ErrTxDone
	}
	for _, st := range stmts {
		for _, idx := range indexes {
			if err := t.txn.Delete(encodeKey(t.tenant, idx, st)); err != nil {
				return fmt.Errorf("remove statement: %w", err)
			}
		}
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
	t.done = true
	if err := t.txn.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.txn.Discard()
	return nil
}
