// Package pgstore is the Postgres store backend. All tenants share the
// kb.statements table and are separated by the tenant column.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/emergent-company/graphmerge/internal/database"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

const insertBatchSize = 500

// StatementRow is one stored quad.
type StatementRow struct {
	bun.BaseModel `bun:"table:kb.statements,alias:st"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Tenant      string    `bun:"tenant,notnull"`
	Subject     string    `bun:"subject,notnull"`
	SubjectKind string    `bun:"subject_kind,notnull"`
	Predicate   string    `bun:"predicate,notnull"`
	Object      string    `bun:"object,notnull"`
	ObjectKind  string    `bun:"object_kind,notnull"`
	Datatype    string    `bun:"datatype,notnull"`
	Lang        string    `bun:"lang,notnull"`
	Context     string    `bun:"context,notnull"`
	ContextKind string    `bun:"context_kind,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func toRow(tenant string, st rdf.Statement) StatementRow {
	return StatementRow{
		Tenant:      tenant,
		Subject:     st.Subject.Value,
		SubjectKind: kindOf(st.Subject),
		Predicate:   st.Predicate.Value,
		Object:      st.Object.Value,
		ObjectKind:  kindOf(st.Object),
		Datatype:    st.Object.Datatype,
		Lang:        st.Object.Lang,
		Context:     st.Context.Value,
		ContextKind: kindOf(st.Context),
	}
}

// Statement converts the row back into a statement.
func (r StatementRow) Statement() rdf.Statement {
	return rdf.Statement{
		Subject:   decodeTerm(r.Subject, r.SubjectKind, "", ""),
		Predicate: rdf.IRI(r.Predicate),
		Object:    decodeTerm(r.Object, r.ObjectKind, r.Datatype, r.Lang),
		Context:   decodeTerm(r.Context, r.ContextKind, "", ""),
	}
}

func decodeTerm(value, kind, datatype, lang string) rdf.Term {
	k, err := rdf.ParseKind(kind)
	if err != nil || k == rdf.KindNone {
		return rdf.Term{}
	}
	return rdf.Term{Kind: k, Value: value, Datatype: datatype, Lang: lang}
}

// Store is the store of one tenant.
type Store struct {
	db       bun.IDB
	tenant   string
	compiler *Compiler
	log      *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New returns the store of tenant on db.
func New(db bun.IDB, tenant string, log *slog.Logger) *Store {
	return &Store{
		db:       db,
		tenant:   tenant,
		compiler: NewCompiler(),
		log:      log.With(logger.Scope("pgstore"), slog.String("tenant", tenant)),
	}
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &pgTx{tx: tx, tenant: s.tenant}, nil
}

func (s *Store) Query(ctx context.Context, q store.Query) (store.Rows, error) {
	compiled, err := s.compiler.Compile(s.tenant, q)
	if err != nil {
		return nil, err
	}
	s.log.Debug("query compiled", slog.String("sql", compiled.SQL), slog.Int("args", len(compiled.Args)))
	rows, err := s.db.QueryContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		return nil, fmt.Errorf("query statements: %w", err)
	}
	return &pgRows{rows: rows, compiled: compiled}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.NewRaw("SELECT 1").Scan(ctx, &one)
}

// Close is a no-op; the connection pool is owned by the database module.
func (s *Store) Close() error { return nil }

type pgTx struct {
	tx     *database.SafeTx
	tenant string
	done   bool
}

func (t *pgTx) Insert(ctx context.Context, stmts ...rdf.Statement) error {
	if t.done {
		return store.ErrTxDone
	}
	for start := 0; start < len(stmts); start += insertBatchSize {
		end := min(start+insertBatchSize, len(stmts))
		rows := make([]StatementRow, 0, end-start)
		for _, st := range stmts[start:end] {
			if !st.Valid() {
				return fmt.Errorf("invalid statement %s", st)
			}
			rows = append(rows, toRow(t.tenant, st))
		}
		if _, err := t.tx.NewInsert().Model(&rows).On("CONFLICT DO NOTHING").Returning("NULL").Exec(ctx); err != nil {
			return fmt.Errorf("insert statements: %w", err)
		}
	}
	return nil
}

func (t *pgTx) Remove(ctx context.Context, stmts ...rdf.Statement) error {
	if t.done {
		return store.ErrTxDone
	}
	for _, st := range stmts {
		r := toRow(t.tenant, st)
		_, err := t.tx.NewDelete().
			Model((*StatementRow)(nil)).
			Where("tenant = ?", r.Tenant).
			Where("subject = ?", r.Subject).
			Where("subject_kind = ?", r.SubjectKind).
			Where("predicate = ?", r.Predicate).
			Where("object = ?", r.Object).
			Where("object_kind = ?", r.ObjectKind).
			Where("datatype = ?", r.Datatype).
			Where("lang = ?", r.Lang).
			Where("context = ?", r.Context).
			Where("context_kind = ?", r.ContextKind).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("remove statement: %w", err)
		}
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.done = true
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

type pgRows struct {
	rows     *sql.Rows
	compiled *Compiled
	current  store.Binding
	err      error
}

func (r *pgRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}

	var dest []any
	// Capacity is fixed up front so the scan pointers stay stable.
	terms := make([][4]sql.NullString, 0, len(r.compiled.Columns))
	var count sql.NullInt64
	if len(r.compiled.Columns) == 0 {
		var one int
		dest = append(dest, &one)
	}
	for _, name := range r.compiled.Columns {
		if name == r.compiled.CountAs {
			dest = append(dest, &count)
			continue
		}
		terms = append(terms, [4]sql.NullString{})
		t := &terms[len(terms)-1]
		dest = append(dest, &t[0], &t[1], &t[2], &t[3])
	}
	if err := r.rows.Scan(dest...); err != nil {
		r.err = fmt.Errorf("scan binding: %w", err)
		return false
	}

	b := make(store.Binding, len(r.compiled.Columns))
	i := 0
	for _, name := range r.compiled.Columns {
		if name == r.compiled.CountAs {
			b[name] = rdf.TypedLiteral(fmt.Sprint(count.Int64), rdf.XSDInteger)
			continue
		}
		t := terms[i]
		i++
		b[name] = decodeTerm(t[0].String, t[1].String, t[2].String, t[3].String)
	}
	r.current = b
	return true
}

func (r *pgRows) Binding() store.Binding { return r.current }

func (r *pgRows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *pgRows) Close() error { return r.rows.Close() }
