package classify

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/internal/store/memstore"
	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

var (
	ns      = ident.Default()
	discard = slog.New(slog.DiscardHandler)

	individual = rdf.IRI(ns.Class(ident.ClassIndividual))
	classifier = rdf.IRI(ns.Class(ident.ClassClassifier))
	embedded   = rdf.IRI(ns.Class(ident.ClassEmbedded))

	personT  = rdf.IRI(rdf.NSSchema + "Person")
	conceptT = rdf.IRI(rdf.NSSKOS + "Concept")
	addressT = rdf.IRI("urn:t:Address")
	street   = rdf.IRI("urn:t:street")
)

func local(s string) rdf.Term { return rdf.IRI(ns.EntityPrefix + s) }

type registry map[string]store.Store

func (r registry) ForTenant(_ context.Context, tenant string) (store.Store, error) {
	st, ok := r[tenant]
	if !ok {
		return nil, errors.New("unknown tenant")
	}
	return st, nil
}

func (r registry) Tenants() []string {
	out := make([]string, 0, len(r))
	for t := range r {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func TestOf(t *testing.T) {
	n := local("n")
	tests := []struct {
		name   string
		stmts  []rdf.Statement
		want   rdf.Term
		wantOK bool
	}{
		{
			name:   "individual by type",
			stmts:  []rdf.Statement{rdf.NewStatement(n, rdf.Type, personT)},
			want:   individual,
			wantOK: true,
		},
		{
			name: "individual type beats classifier type",
			stmts: []rdf.Statement{
				rdf.NewStatement(n, rdf.Type, personT),
				rdf.NewStatement(n, rdf.Type, conceptT),
			},
			want:   individual,
			wantOK: true,
		},
		{
			name: "characteristic property",
			stmts: []rdf.Statement{
				rdf.NewStatement(n, rdf.Type, addressT),
				rdf.NewStatement(n, rdf.SchemaURL, rdf.IRI("https://acme.example")),
			},
			want:   individual,
			wantOK: true,
		},
		{
			name: "naming predicate without type",
			stmts: []rdf.Statement{
				rdf.NewStatement(n, rdf.IRI("urn:t:productCode"), rdf.Literal("X-1")),
			},
			want:   individual,
			wantOK: true,
		},
		{
			name: "classifier keeps its label",
			stmts: []rdf.Statement{
				rdf.NewStatement(n, rdf.Type, conceptT),
				rdf.NewStatement(n, rdf.PrefLabel, rdf.Literal("Retail")),
			},
			want:   classifier,
			wantOK: true,
		},
		{
			name: "other typed resource is embedded",
			stmts: []rdf.Statement{
				rdf.NewStatement(n, rdf.Type, addressT),
				rdf.NewStatement(n, street, rdf.Literal("Main St 1")),
			},
			want:   embedded,
			wantOK: true,
		},
		{
			name:  "untyped without names",
			stmts: []rdf.Statement{rdf.NewStatement(n, street, rdf.Literal("Main St 1"))},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Of(rdf.NewGraph(tt.stmts...), n, ns)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatements(t *testing.T) {
	person, done, bare := local("person"), local("done"), local("bare")
	tx := rdf.IRI(ns.Transaction())
	g := rdf.NewGraph(
		rdf.NewStatement(person, rdf.Type, personT),
		rdf.NewStatement(done, rdf.Type, addressT),
		rdf.NewStatement(done, rdf.Type, embedded),
		rdf.NewStatement(bare, street, rdf.Literal("Main St 1")),
		rdf.NewStatement(rdf.Blank("b"), rdf.Type, personT),
		rdf.NewStatement(tx, rdf.Type, rdf.IRI("urn:t:Activity")),
	)

	out, unclassified := Statements(g, ns)
	assert.Equal(t, []rdf.Statement{rdf.NewStatement(person, rdf.Type, individual)}, out)
	assert.Equal(t, []rdf.Term{bare}, unclassified)
	assert.True(t, Classified(g, done, ns))
	assert.False(t, Classified(g, person, ns))
}

func TestTransformer_Handle(t *testing.T) {
	person, term := local("person"), local("term")
	cs, err := changeset.New("acme", ns).Apply(changeset.Patch{Insert: []rdf.Statement{
		rdf.NewStatement(person, rdf.Type, personT),
		rdf.NewStatement(term, rdf.Type, conceptT),
	}})
	require.NoError(t, err)

	tr := NewTransformer(discard)
	assert.Equal(t, Name, tr.Name())
	out, err := tr.Handle(context.Background(), cs, pipeline.Params{Namespace: ns})
	require.NoError(t, err)

	model := out.Model()
	assert.True(t, model.Contains(rdf.NewStatement(person, rdf.Type, individual)))
	assert.True(t, model.Contains(rdf.NewStatement(term, rdf.Type, classifier)))
}

func seedCoercion(st *memstore.Store) (person, term, done rdf.Term) {
	person, term, done = local("person"), local("term"), local("done")
	st.Seed(
		rdf.NewStatement(person, rdf.Type, personT),
		rdf.NewStatement(term, rdf.Type, conceptT),
		rdf.NewStatement(done, rdf.Type, addressT),
		rdf.NewStatement(done, rdf.Type, embedded),
		rdf.NewStatement(rdf.IRI(ns.Transaction()), rdf.Type, rdf.IRI("urn:t:Activity")),
	)
	return person, term, done
}

func TestCoercer_Run(t *testing.T) {
	st := memstore.New()
	person, term, done := seedCoercion(st)

	c := NewCoercer(registry{"acme": st}, commit.NewCommitter(discard, false), ns, 0, discard)
	reports, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "acme", reports[0].Tenant)
	assert.Equal(t, 3, reports[0].Scanned)
	assert.Equal(t, 2, reports[0].Classified)

	assert.True(t, st.Contains(rdf.NewStatement(person, rdf.Type, individual)))
	assert.True(t, st.Contains(rdf.NewStatement(term, rdf.Type, classifier)))
	assert.Len(t, st.Data().ObjectsOf(done, rdf.Type), 2)
	assert.Equal(t, 1, st.Commits())

	again, err := c.Run(context.Background(), "acme")
	require.NoError(t, err)
	assert.Zero(t, again[0].Classified)
	assert.Equal(t, 1, st.Commits())
}

func TestCoercer_BatchLimit(t *testing.T) {
	st := memstore.New()
	seedCoercion(st)

	c := NewCoercer(registry{"acme": st}, commit.NewCommitter(discard, false), ns, 1, discard)
	reports, err := c.Run(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, reports[0].Classified)

	reports, err = c.Run(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, reports[0].Classified)
}

func TestCoercer_Errors(t *testing.T) {
	st := memstore.New()
	seedCoercion(st)
	c := NewCoercer(registry{"acme": st}, commit.NewCommitter(discard, false), ns, 0, discard)

	c.running.Store(true)
	_, err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunning)
	c.running.Store(false)

	st.FailNextCommit(errors.New("disk full"))
	_, err = c.Run(context.Background(), "acme", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant acme")
	assert.Contains(t, err.Error(), "tenant missing")
	assert.False(t, c.Running())
}

func TestTypedSubjectsQuery(t *testing.T) {
	assert.NoError(t, TypedSubjectsQuery().Validate())
}
