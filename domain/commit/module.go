package commit

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/internal/config"
)

// Module provides the committer.
var Module = fx.Module("commit",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns a committer honoring STORE_AUDIT_ENABLED.
func NewFromConfig(cfg *config.Config, log *slog.Logger) *Committer {
	return NewCommitter(log, cfg.Store.AuditEnabled)
}
