package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"go-action-pipeline/internal/app"
	"go-action-pipeline/internal/config"
	"go-action-pipeline/internal/logging"
	"go-action-pipeline/internal/model"
	"go-action-pipeline/internal/pipeline"
	"go-action-pipeline/internal/report"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Execute planner action lists against the manufacturing jobs dataset",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./config.yaml if present)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newRunCmd(opts),
		newHistoryCmd(opts),
		newShowCmd(opts),
		newActionsCmd(),
	)
	return root
}

// bootstrap loads config and wires the runner. Logs go to stderr so command
// output stays clean.
func bootstrap(opts *rootOptions) (*app.App, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	return app.New(cfg, logging.NewLogger(level, cfg.Log.Format))
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		planPath  string
		export    string
		preview   int
		showSteps bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute an action plan (JSON or YAML)",
		Example: `  pipeline run --plan examples/late_jobs.yaml
  cat plan.json | pipeline run --plan - --export result.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readPlan(planPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			spec, err := pipeline.ParseRunSpec(data)
			if err != nil {
				return err
			}
			if export != "" {
				spec.Export = &model.Export{File: export}
			}

			a, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			switch {
			case cmd.Flags().Changed("preview"):
				spec.PreviewRows = preview
			case spec.PreviewRows == 0:
				spec.PreviewRows = a.Config.Output.PreviewRows
			}
			if err := pipeline.ValidateRunSpec(spec); err != nil {
				return err
			}

			runID := uuid.New().String()
			result, runErr := a.Runner.Run(context.Background(), runID, spec)
			if result == nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s %s (%d executed, %d skipped)\n",
				result.RunID, result.Status, result.Metrics.Executed, result.Metrics.Skipped)
			if showSteps {
				if err := report.RenderSteps(out, result.Metrics.Steps); err != nil {
					return err
				}
			}
			if err := report.Render(out, result.Preview); err != nil {
				return err
			}
			if result.Export != nil {
				if result.Export.Success {
					fmt.Fprintf(out, "exported %d records to %s\n", result.Export.RecordCount, result.Export.Path)
				} else {
					fmt.Fprintf(out, "export failed: %s\n", result.Export.Error)
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "action plan file, or - for stdin")
	cmd.Flags().StringVarP(&export, "export", "o", "", "export the final result to this file name (.csv or .json)")
	cmd.Flags().IntVar(&preview, "preview", 0, "rows to print (0 uses output.preview_rows)")
	cmd.Flags().BoolVar(&showSteps, "steps", false, "print the per-action trace")
	cmd.MarkFlagRequired("plan")
	return cmd
}

func readPlan(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func openHistory(opts *rootOptions) (*app.App, error) {
	a, err := bootstrap(opts)
	if err != nil {
		return nil, err
	}
	if a.Store == nil {
		a.Close()
		return nil, errors.New("run history is disabled (store.enabled=false)")
	}
	return a, nil
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openHistory(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.Store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTATUS\tACTIONS\tEXECUTED\tSKIPPED\tFINAL ROWS\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					r.ID, r.Status, r.TotalActions, r.Executed, r.Skipped, r.FinalRows,
					r.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs (0 for all)")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the steps, errors and result of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openHistory(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			run, err := a.Store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			steps, err := a.Store.GetSteps(ctx, run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s %s, %d actions, %s\n", run.ID, run.Status, run.TotalActions, run.Duration)
			if run.Error != "" {
				fmt.Fprintf(out, "error: %s\n", run.Error)
			}
			if err := report.RenderSteps(out, steps); err != nil {
				return err
			}
			if run.Preview != nil {
				return report.Render(out, *run.Preview)
			}
			return nil
		},
	}
}

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the functions an action plan may call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FUNCTION\tCATEGORY")
			for _, k := range pipeline.AllKinds {
				fmt.Fprintf(tw, "%s\t%s\n", k, k.Category())
			}
			return tw.Flush()
		},
	}
}
