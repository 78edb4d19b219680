package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/domain/sweep"
)

func newSweepCmd() *cobra.Command {
	var tenants []string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one duplicate sweep pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			def, err := pipeline.LoadDefinition(e.cfg.PipelineFile)
			if err != nil {
				return err
			}
			// Manual passes are not throttled.
			sc := e.cfg.Sweep
			s := sweep.New(e.registry, commit.NewCommitter(e.log, e.cfg.Store.AuditEnabled), e.cfg.Namespace.Namespace(), sweep.Config{
				Predicates:     def.SweepPredicates(),
				CandidateLimit: sc.CandidateLimit,
				MaxRounds:      sc.MaxRounds,
				QueryTimeout:   sc.QueryTimeout(),
			}, e.log)

			reports, runErr := s.Run(cmd.Context(), tenants...)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(reports); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringSliceVar(&tenants, "tenant", nil, "tenant to sweep, repeatable (default: every known tenant)")
	return cmd
}
