// Package commit writes changesets to a tenant store as one atomic unit and
// reports the outcome on the changeset itself.
package commit

import (
	"context"
	"log/slog"
	"time"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/logger"
	"github.com/emergent-company/graphmerge/pkg/metrics"
	"github.com/emergent-company/graphmerge/pkg/rdf"
	"github.com/emergent-company/graphmerge/pkg/tracing"
)

// Committer applies changesets. It holds no connection: every call takes its
// own transaction from the store.
type Committer struct {
	audit bool
	log   *slog.Logger
	now   func() time.Time
}

// NewCommitter returns a committer. With audit enabled every transaction also
// writes its audit trail into the transaction's named contexts.
func NewCommitter(log *slog.Logger, audit bool) *Committer {
	return &Committer{
		audit: audit,
		log:   log.With(logger.Scope("commit")),
		now:   time.Now,
	}
}

// Commit writes inserted, updated, audit and removed statements in that
// order within one transaction. Storage failures never surface as errors:
// the returned changeset carries StatusFailure and the reason. A changeset
// that is already finalized is returned as it is.
func (c *Committer) Commit(ctx context.Context, st store.Store, cs *changeset.Changeset) *changeset.Changeset {
	if cs.Finalized() {
		c.log.Warn("changeset already finalized, not committed",
			slog.String("tx", cs.ID().Value),
			slog.String("status", string(cs.Status())))
		return cs
	}

	ctx, span := tracing.Start(ctx, "commit",
		tracing.KeyTenant.String(cs.Tenant()),
		tracing.KeyTransactionID.String(cs.ID().Value),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.CommitDuration.Observe(time.Since(start).Seconds())
	}()

	// The audit trail records the outcome, so it is rendered from the
	// completed snapshot and only persisted if the commit succeeds.
	done, err := cs.Complete(c.now())
	if err != nil {
		return c.fail(ctx, st, cs, err)
	}

	if err := c.write(ctx, st, done); err != nil {
		tracing.Fail(span, err)
		return c.fail(ctx, st, cs, err)
	}

	inserted, updated, removed := done.Inserted().Len(), done.Updated().Len(), done.Removed().Len()
	metrics.CommitsTotal.WithLabelValues(string(changeset.StatusSuccess)).Inc()
	metrics.CommittedStatements.WithLabelValues(changeset.ActivityInserted.String()).Add(float64(inserted))
	metrics.CommittedStatements.WithLabelValues(changeset.ActivityUpdated.String()).Add(float64(updated))
	metrics.CommittedStatements.WithLabelValues(changeset.ActivityRemoved.String()).Add(float64(removed))
	span.SetAttributes(tracing.KeyStatements.Int(inserted + updated + removed))

	c.log.Debug("transaction committed",
		slog.String("tenant", done.Tenant()),
		slog.String("tx", done.ID().Value),
		slog.Int("inserted", inserted),
		slog.Int("updated", updated),
		slog.Int("removed", removed))
	return done
}

func (c *Committer) write(ctx context.Context, st store.Store, cs *changeset.Changeset) error {
	tx, err := st.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := tx.Insert(ctx, cs.Inserted().Statements()...); err != nil {
		return err
	}
	if err := tx.Insert(ctx, cs.Updated().Statements()...); err != nil {
		return err
	}
	if c.audit {
		if err := tx.Insert(ctx, cs.AuditQuads()...); err != nil {
			return err
		}
	}
	if err := tx.Remove(ctx, cs.Removed().Statements()...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// fail finalizes cs as FAILURE. With audit enabled the failed transaction's
// provenance is written on a best-effort basis.
func (c *Committer) fail(ctx context.Context, st store.Store, cs *changeset.Changeset, cause error) *changeset.Changeset {
	metrics.CommitsTotal.WithLabelValues(string(changeset.StatusFailure)).Inc()
	c.log.Warn("transaction failed",
		slog.String("tenant", cs.Tenant()),
		slog.String("tx", cs.ID().Value),
		logger.Error(cause))

	failed, err := cs.Fail(c.now(), cause.Error())
	if err != nil {
		return cs
	}
	if c.audit {
		if err := c.writeProvenance(ctx, st, failed); err != nil {
			c.log.Debug("failed to record provenance of failed transaction",
				slog.String("tx", cs.ID().Value),
				logger.Error(err))
		}
	}
	return failed
}

func (c *Committer) writeProvenance(ctx context.Context, st store.Store, cs *changeset.Changeset) error {
	tx, err := st.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	prov := cs.Context(changeset.ContextProvenance)
	stmts := make([]rdf.Statement, 0, 8)
	for _, s := range cs.Provenance() {
		stmts = append(stmts, s.InContext(prov))
	}
	if err := tx.Insert(ctx, stmts...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CommitAll commits each changeset in order with its own transaction and
// returns every result, failed ones included.
func (c *Committer) CommitAll(ctx context.Context, st store.Store, sets []*changeset.Changeset) []*changeset.Changeset {
	out := make([]*changeset.Changeset, len(sets))
	for i, cs := range sets {
		out[i] = c.Commit(ctx, st, cs)
	}
	return out
}
