package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aadhaar-drishti/backend/internal/bootstrap"
	"github.com/aadhaar-drishti/backend/internal/importer"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
)

type importOptions struct {
	kind    string
	file    string
	replace bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import one CSV or XLSX file into a fact table",
		Example: "  drishtictl import --kind biometric --file data/biometric.csv\n" +
			"  drishtictl import --kind enrolment --file s3://uidai-dumps/enrolment.xlsx --replace",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseImportKind(opts.kind)
			if err != nil {
				return fmt.Errorf("invalid --kind: %w", err)
			}

			return withServices(cmd, func(ctx context.Context, svc *bootstrap.App) error {
				return runImport(ctx, cmd, svc, importer.Request{Path: opts.file, Kind: kind, Replace: opts.replace})
			})
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", "", "Data type: biometric, demographic or enrolment (required)")
	cmd.Flags().StringVar(&opts.file, "file", "", "Local path, s3:// or gs:// URL (required)")
	cmd.Flags().BoolVar(&opts.replace, "replace", false, "Delete existing rows of this kind before importing")

	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(ctx context.Context, cmd *cobra.Command, svc *bootstrap.App, req importer.Request) error {
	result, err := svc.Importer.Import(ctx, req)
	if result != nil && (err == nil || result.Observed > 0) {
		printImport(cmd, result)
	}
	return err
}

func printImport(cmd *cobra.Command, r *importer.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", r.Message())
	fmt.Fprintf(out, "  rows read: %d  skipped: %d  replaced: %d  took: %s\n", r.Observed, r.Skipped, r.Replaced, r.Duration)
	for _, f := range r.FailedBatches {
		fmt.Fprintf(out, "  batch %d (%d rows) failed: %s\n", f.Batch, f.Rows, f.Error)
	}
}

func newCalculateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calculate",
		Short: "Recompute every district summary from the fact tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc *bootstrap.App) error {
				return runCalculate(ctx, cmd, svc)
			})
		},
	}
}

func runCalculate(ctx context.Context, cmd *cobra.Command, svc *bootstrap.App) error {
	result, err := svc.Engine.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (of %d, took %s)\n", result.Message(), result.Districts, result.Duration)
	for _, f := range result.Failed {
		fmt.Fprintf(out, "  %s / %s failed: %s\n", f.State, f.District, f.Error)
	}
	return nil
}

// pipelineFiles lists the files pipeline looks for, in import order.
var pipelineFiles = []struct {
	kind models.ImportKind
	name string
}{
	{models.KindBiometric, "biometric.csv"},
	{models.KindDemographic, "demographic.csv"},
	{models.KindEnrolment, "enrolment.csv"},
}

func newPipelineCmd() *cobra.Command {
	var (
		dir     string
		replace bool
	)

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Import biometric, demographic and enrolment files from a directory, then calculate",
		RunE: func(cmd *cobra.Command, args []string) error {
			requests, err := pipelineRequests(dir, replace)
			if err != nil {
				return err
			}

			return withServices(cmd, func(ctx context.Context, svc *bootstrap.App) error {
				for _, req := range requests {
					if err := runImport(ctx, cmd, svc, req); err != nil {
						return fmt.Errorf("%s import failed: %w", req.Kind, err)
					}
				}
				return runCalculate(ctx, cmd, svc)
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "data", "Directory holding biometric.csv, demographic.csv and enrolment.csv")
	cmd.Flags().BoolVar(&replace, "replace", true, "Replace existing rows of each kind")

	return cmd
}

// pipelineRequests checks that every expected file exists before anything is
// written.
func pipelineRequests(dir string, replace bool) ([]importer.Request, error) {
	var requests []importer.Request
	var missing []error

	for _, f := range pipelineFiles {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, fmt.Errorf("%s: %w", f.kind, err))
			continue
		}
		requests = append(requests, importer.Request{Path: path, Kind: f.kind, Replace: replace})
	}

	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}
	return requests, nil
}
