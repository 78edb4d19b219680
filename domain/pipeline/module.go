package pipeline

import (
	"go.uber.org/fx"

	"github.com/emergent-company/graphmerge/internal/config"
)

// Module provides the parsed pipeline file.
var Module = fx.Module("pipeline",
	fx.Provide(NewDefinition),
)

// NewDefinition loads PIPELINE_FILE, or the embedded default.
func NewDefinition(cfg *config.Config) (*Definition, error) {
	return LoadDefinition(cfg.PipelineFile)
}
