package postprocess

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/events"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/internal/store/memstore"
	"github.com/emergent-company/graphmerge/pkg/ident"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

var (
	ns      = ident.Default()
	discard = slog.New(slog.DiscardHandler)
	orgT    = rdf.IRI("https://schema.org/Organization")
	addrT   = rdf.IRI("https://schema.org/PostalAddress")
	address = rdf.IRI("https://schema.org/address")
	city    = rdf.IRI("https://schema.org/addressLocality")
	fixed   = time.Date(2024, 5, 6, 7, 8, 9, 500, time.UTC)
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

func (r registry) Tenants() []string { return nil }

func newProcessors(st store.Store) *Processors {
	p := New(registry{"t": st}, commit.NewCommitter(discard, false), ns, discard)
	p.now = func() time.Time { return fixed }
	return p
}

func event(typ events.EntityEventType, resources ...rdf.Term) events.EntityEvent {
	out := events.EntityEvent{Type: typ, Tenant: "t", TransactionID: "tx"}
	for _, r := range resources {
		out.Resources = append(out.Resources, r.Value)
	}
	return out
}

func TestInjectCreationDate(t *testing.T) {
	a, b, untyped := local("a"), local("b"), local("c")
	existing := rdf.TypedLiteral("2020-01-01T00:00:00Z", rdf.XSDDateTime)

	st := memstore.New()
	st.Seed(
		rdf.NewStatement(a, rdf.Type, orgT),
		rdf.NewStatement(b, rdf.Type, orgT),
		rdf.NewStatement(b, rdf.DCTermsCreated, existing),
		rdf.NewStatement(untyped, rdf.Label, rdf.Literal("x")),
	)

	p := newProcessors(st)
	require.NoError(t, p.InjectCreationDate(context.Background(), event(events.EventTypeCreated, a, b, untyped)))

	want := rdf.TypedLiteral("2024-05-06T07:08:09Z", rdf.XSDDateTime)
	assert.True(t, st.Contains(rdf.NewStatement(a, rdf.DCTermsCreated, want)))
	assert.Equal(t, []rdf.Statement{rdf.NewStatement(b, rdf.DCTermsCreated, existing)},
		st.Data().Filter(b, rdf.DCTermsCreated, rdf.Term{}))
	assert.Empty(t, st.Data().Filter(untyped, rdf.DCTermsCreated, rdf.Term{}))
}

func TestInjectCreationDate_NothingToDo(t *testing.T) {
	st := memstore.New()
	p := newProcessors(st)

	require.NoError(t, p.InjectCreationDate(context.Background(), event(events.EventTypeCreated, local("gone"))))
	assert.Zero(t, st.Commits())
}

func TestUpdateModifiedDate(t *testing.T) {
	a := local("a")
	old := rdf.TypedLiteral("2020-01-01T00:00:00Z", rdf.XSDDateTime)

	st := memstore.New()
	st.Seed(
		rdf.NewStatement(a, rdf.Type, orgT),
		rdf.NewStatement(a, rdf.DCTermsModified, old),
	)

	p := newProcessors(st)
	require.NoError(t, p.UpdateModifiedDate(context.Background(), event(events.EventTypeUpdated, a)))

	want := rdf.TypedLiteral("2024-05-06T07:08:09Z", rdf.XSDDateTime)
	assert.Equal(t, []rdf.Statement{rdf.NewStatement(a, rdf.DCTermsModified, want)},
		st.Data().Filter(a, rdf.DCTermsModified, rdf.Term{}))

	// A second update within the same second keeps the value
	require.NoError(t, p.UpdateModifiedDate(context.Background(), event(events.EventTypeUpdated, a)))
	assert.Equal(t, []rdf.Statement{rdf.NewStatement(a, rdf.DCTermsModified, want)},
		st.Data().Filter(a, rdf.DCTermsModified, rdf.Term{}))
}

func TestMergeEmbeddedDuplicates(t *testing.T) {
	owner, addr1, addr2, other := local("owner"), local("addr1"), local("addr2"), local("addr3")

	st := memstore.New()
	st.Seed(
		rdf.NewStatement(owner, rdf.Type, orgT),
		rdf.NewStatement(owner, address, addr1),
		rdf.NewStatement(owner, address, addr2),
		rdf.NewStatement(owner, address, other),
		rdf.NewStatement(addr1, rdf.Type, addrT),
		rdf.NewStatement(addr1, city, rdf.Literal("Berlin")),
		rdf.NewStatement(addr2, rdf.Type, addrT),
		rdf.NewStatement(addr2, city, rdf.Literal("berlin")),
		rdf.NewStatement(other, rdf.Type, addrT),
		rdf.NewStatement(other, city, rdf.Literal("Paris")),
	)

	p := newProcessors(st)
	require.NoError(t, p.MergeEmbeddedDuplicates(context.Background(), event(events.EventTypeCreated, owner)))

	data := st.Data()
	assert.False(t, data.HasSubject(addr2))
	assert.False(t, data.Contains(rdf.NewStatement(owner, address, addr2)))
	assert.True(t, data.Contains(rdf.NewStatement(owner, address, addr1)))
	assert.True(t, data.Contains(rdf.NewStatement(owner, address, other)))
	assert.True(t, data.HasSubject(other))
}

func TestMergeEmbeddedDuplicates_DifferentObjectsKept(t *testing.T) {
	owner, addr1, addr2 := local("owner"), local("addr1"), local("addr2")

	st := memstore.New()
	st.Seed(
		rdf.NewStatement(owner, rdf.Type, orgT),
		rdf.NewStatement(owner, address, addr1),
		rdf.NewStatement(owner, address, addr2),
		rdf.NewStatement(addr1, rdf.Type, addrT),
		rdf.NewStatement(addr1, city, rdf.Literal("Berlin")),
		rdf.NewStatement(addr2, rdf.Type, addrT),
		rdf.NewStatement(addr2, city, rdf.Literal("Berlin")),
		rdf.NewStatement(addr2, rdf.Label, rdf.Literal("HQ")),
	)

	p := newProcessors(st)
	require.NoError(t, p.MergeEmbeddedDuplicates(context.Background(), event(events.EventTypeCreated, owner)))
	assert.Zero(t, st.Commits())
}

func TestMergeEmbeddedDuplicates_SharedEmbeds(t *testing.T) {
	a, b := local("a"), local("b")
	e1, e2, e3 := local("e1"), local("e2"), local("e3")
	berlin := func(e rdf.Term) []rdf.Statement {
		return []rdf.Statement{
			rdf.NewStatement(e, rdf.Type, addrT),
			rdf.NewStatement(e, city, rdf.Literal("Berlin")),
		}
	}

	tests := []struct {
		name    string
		links   []rdf.Statement
		embeds  []rdf.Term
		touched []rdf.Term
		deleted []rdf.Term
	}{
		{
			name: "other owner keeps a valid link",
			links: []rdf.Statement{
				rdf.NewStatement(a, address, e1),
				rdf.NewStatement(a, address, e2),
				rdf.NewStatement(b, address, e2),
			},
			embeds:  []rdf.Term{e1, e2},
			touched: []rdf.Term{a},
			deleted: []rdf.Term{e2},
		},
		{
			name: "survivor chosen across owners",
			links: []rdf.Statement{
				rdf.NewStatement(a, address, e1),
				rdf.NewStatement(a, address, e2),
				rdf.NewStatement(b, address, e2),
				rdf.NewStatement(b, address, e3),
			},
			embeds:  []rdf.Term{e1, e2, e3},
			touched: []rdf.Term{a, b},
			deleted: []rdf.Term{e2, e3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memstore.New()
			st.Seed(
				rdf.NewStatement(a, rdf.Type, orgT),
				rdf.NewStatement(b, rdf.Type, orgT),
			)
			st.Seed(tt.links...)
			for _, e := range tt.embeds {
				st.Seed(berlin(e)...)
			}

			p := newProcessors(st)
			require.NoError(t, p.MergeEmbeddedDuplicates(context.Background(), event(events.EventTypeCreated, tt.touched...)))

			data := st.Data()
			for _, d := range tt.deleted {
				assert.False(t, data.HasSubject(d), "%s still has statements", d)
				assert.Empty(t, data.Filter(rdf.Term{}, rdf.Term{}, d), "%s is still referenced", d)
			}
			assert.True(t, data.HasSubject(e1))
			assert.True(t, data.Contains(rdf.NewStatement(a, address, e1)))
			assert.True(t, data.Contains(rdf.NewStatement(b, address, e1)))
		})
	}
}

func TestProcessors_HandleAfterStop(t *testing.T) {
	a := local("a")
	st := memstore.New()
	st.Seed(rdf.NewStatement(a, rdf.Type, orgT))

	p := newProcessors(st)
	p.Stop()

	assert.NotPanics(t, func() { p.Handle(event(events.EventTypeCreated, a)) })
	assert.Zero(t, st.Commits())
}

func TestProcessors_FailuresAreContained(t *testing.T) {
	a := local("a")
	st := memstore.New()
	st.Seed(rdf.NewStatement(a, rdf.Type, orgT))
	st.FailNextCommit(errors.New("disk full"))

	p := newProcessors(st)
	err := p.InjectCreationDate(context.Background(), event(events.EventTypeCreated, a))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// Handle only logs
	assert.NotPanics(t, func() { p.Handle(event(events.EventTypeCreated, a)) })
}

func TestProcessors_UnknownTenant(t *testing.T) {
	p := newProcessors(memstore.New())
	ev := event(events.EventTypeCreated, local("a"))
	ev.Tenant = "missing"

	assert.Error(t, p.InjectCreationDate(context.Background(), ev))
}

func TestProcessors_ReactToBus(t *testing.T) {
	a := local("a")
	st := memstore.New()
	st.Seed(rdf.NewStatement(a, rdf.Type, orgT))

	bus := events.NewService(discard)
	p := newProcessors(st)
	p.Start(bus)
	defer p.Stop()

	bus.EmitCreated("t", "tx", []string{a.Value})

	assert.Eventually(t, func() bool {
		_, ok := st.Data().FirstObject(a, rdf.DCTermsCreated)
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestProcessors_StopUnsubscribes(t *testing.T) {
	bus := events.NewService(discard)
	p := newProcessors(memstore.New())
	p.Start(bus)
	assert.Equal(t, 1, bus.GetTotalSubscriberCount())

	p.Stop()
	assert.Equal(t, 0, bus.GetTotalSubscriberCount())
}
