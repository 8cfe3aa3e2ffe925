package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/adapters/spreadsheet"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/application/services"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/clients/predictionapi"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/config"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/secrets"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/utils"
)

// cliUser owns the single workspace of a command-line run.
const cliUser = "cli"

type pipeline struct {
	cfg     *config.Config
	prober  *services.EndpointProber
	batches *services.BatchService
}

func newPipeline(ctx context.Context) (*pipeline, error) {
	if _, err := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv()); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	normalizer := utils.NewRecordNormalizer()
	if cfg.Prediction.AliasFile != "" {
		if normalizer, err = utils.NewRecordNormalizerFromFile(cfg.Prediction.AliasFile); err != nil {
			return nil, err
		}
	}

	client := predictionapi.NewClient(cfg.Prediction.RequestTimeout)
	prober := services.NewEndpointProber(client, &cfg.Prediction, nil)
	explainer := services.NewExplanationService(client, prober, &cfg.Prediction, nil)

	return &pipeline{
		cfg:    cfg,
		prober: prober,
		batches: services.NewBatchService(
			spreadsheet.NewReader(),
			normalizer,
			explainer,
			services.NewSampleService(cfg.Prediction.SampleDataSource, cfg.Prediction.HealthTimeout),
			nil,
			nil,
			nil,
		),
	}, nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "readmit",
		Short:        "Explain hospital readmission risk from the command line",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			env := "production"
			if verbose {
				env = "development"
			}
			observability.InitLoggerTo(cmd.ErrOrStderr(), "readmit", env)
		},
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(probeCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(sampleCmd())
	return rootCmd
}

func probeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Find the first reachable prediction endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			p, err := newPipeline(cmd.Context())
			if err != nil {
				return err
			}

			status := p.prober.Probe(cmd.Context())
			if asJSON {
				if err := writeJSON(cmd, status); err != nil {
					return err
				}
			} else if status.Connected {
				fmt.Fprintf(cmd.OutOrStdout(), "connected: %s\n", status.Endpoint)
			}

			if !status.Connected {
				return fmt.Errorf("no prediction endpoint reachable (tried %s)", strings.Join(p.cfg.Prediction.Candidates(), ", "))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the endpoint status as JSON")
	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file.xls|file.xlsx>",
		Short: "Explain every row of a spreadsheet and export the predictions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			asJSON, _ := cmd.Flags().GetBool("json")
			path := args[0]

			// Reject the file before touching the network.
			if err := services.ValidateFilename(path); err != nil {
				return err
			}

			p, err := newPipeline(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			ctx := cmd.Context()
			p.prober.Probe(ctx)

			stderr := cmd.ErrOrStderr()
			run, err := p.batches.RunBatch(ctx, cliUser, filepath.Base(path), f, func(progress entities.Progress) {
				fmt.Fprintf(stderr, "[%d/%d] explained\n", progress.Done, progress.Total)
			})
			if err != nil {
				return err
			}

			for _, r := range run.Results {
				if r.Failed() {
					fmt.Fprintf(stderr, "row %d (%s): %s\n", r.Index, patientLabel(r), r.Error)
				}
			}

			if out != "" && len(run.Results) > 0 {
				if err := exportTo(out, run.Results); err != nil {
					return err
				}
			}

			if asJSON {
				if err := writeJSON(cmd, run.Results); err != nil {
					return err
				}
			}

			summary := run.Summary()
			fmt.Fprintf(stderr, "%s: %d records, %d explained (%d high risk), %d failed\n",
				run.State, summary.Total, summary.Succeeded, summary.HighRisk, summary.Failed)
			if out != "" && len(run.Results) > 0 {
				fmt.Fprintf(stderr, "wrote %s\n", out)
			}

			if run.State == entities.BatchStateCancelled {
				return context.Canceled
			}
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", spreadsheet.ExportFilename, "Write the predictions workbook here (empty to skip)")
	cmd.Flags().Bool("json", false, "Print the results as JSON to stdout")
	return cmd
}

func sampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Explain one random sample patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline(cmd.Context())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			p.prober.Probe(ctx)

			result, err := p.batches.RunSample(ctx, cliUser)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd, result); err != nil {
				return err
			}
			if result.Failed() {
				return fmt.Errorf("sample %s could not be explained: %s", patientLabel(result), result.Error)
			}
			return nil
		},
	}
}

func exportTo(path string, results []entities.ExplanationResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := spreadsheet.NewExporter().Export(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func patientLabel(r entities.ExplanationResult) string {
	if id := r.Input.ID(); id != "" {
		return id
	}
	return "no id"
}
