package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/emergent-company/graphmerge/domain/changeset"
	"github.com/emergent-company/graphmerge/domain/commit"
	"github.com/emergent-company/graphmerge/domain/entities"
	"github.com/emergent-company/graphmerge/domain/events"
	"github.com/emergent-company/graphmerge/domain/pipeline"
	"github.com/emergent-company/graphmerge/domain/postprocess"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

func newSubmitCmd() *cobra.Command {
	var (
		tenant     string
		removeFile string
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "submit FILE.nq",
		Short: "Run an N-Quads file through the pipeline and commit it",
		Long: "Reads N-Quads from FILE (\"-\" for stdin), runs the configured\n" +
			"transformer pipeline and commits the result. With --remove the\n" +
			"submission is an update that also removes the statements of that file.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			insert, err := readGraph(cmd, args[0])
			if err != nil {
				return err
			}
			var remove *rdf.Graph
			if removeFile != "" {
				if remove, err = readGraph(cmd, removeFile); err != nil {
					return err
				}
			}

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if tenant == "" {
				tenant = e.cfg.Store.DefaultTenant
			}

			def, err := pipeline.LoadDefinition(e.cfg.PipelineFile)
			if err != nil {
				return err
			}
			p, err := entities.NewPipeline(def, e.log)
			if err != nil {
				return err
			}
			committer := commit.NewCommitter(e.log, e.cfg.Store.AuditEnabled)
			svc := entities.NewService(e.registry, p, committer, events.NewService(e.log), e.cfg.Namespace.Namespace(), e.log)

			opts := entities.Options{Strict: strict}
			typ := events.EventTypeCreated
			var cs *changeset.Changeset
			if remove != nil {
				typ = events.EventTypeUpdated
				cs, err = svc.Update(ctx, tenant, insert, remove, opts)
			} else {
				cs, err = svc.Create(ctx, tenant, insert, opts)
			}
			if err != nil {
				return err
			}

			// No bus outlives the command, so the postprocessors run inline.
			if cs.Succeeded() {
				proc := postprocess.New(e.registry, committer, e.cfg.Namespace.Namespace(), e.log)
				proc.Handle(events.EntityEvent{
					Type:          typ,
					Tenant:        tenant,
					TransactionID: cs.ID().Value,
					Resources:     entities.Resources(cs),
				})
				proc.Stop()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(cs.View()); err != nil {
				return err
			}
			if !cs.Succeeded() {
				return fmt.Errorf("transaction %s failed: %s", cs.ID().Value, cs.FailureReason())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant to submit to (default: DEFAULT_TENANT)")
	cmd.Flags().StringVar(&removeFile, "remove", "", "N-Quads file of statements to remove")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on untyped local nodes instead of skipping them")
	return cmd
}

func readGraph(cmd *cobra.Command, path string) (*rdf.Graph, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	stmts, err := rdf.ParseNQuads(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rdf.NewGraph(stmts...), nil
}
