package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ujjwaljain13/User-Transaction-Graph-Environment/internal/app"
)

func newInferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "infer",
		Short: "Run every relationship detector once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStoredGraph(cmd, func(a *app.App, _ *slog.Logger) error {
				return inferAndPrint(cmd, a)
			})
		},
	}
}

// inferAndPrint runs inference and prints one line per pass. A partial run
// still prints the report before returning the error.
func inferAndPrint(cmd *cobra.Command, a *app.App) error {
	run, runErr := a.Service.RunInference(cmd.Context())
	if runErr != nil && len(run.Passes) == 0 {
		return runErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d relationships created\n", run.RunID, run.Created())

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PASS\tCREATED\tSKIPPED\tDURATION\tERROR")
	for _, p := range run.Passes {
		errText := ""
		if p.Err != nil {
			errText = p.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", p.Name, p.Created, p.Skipped, p.Duration, errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return runErr
}
