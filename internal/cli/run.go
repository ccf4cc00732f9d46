package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xxxbrian/surge-ruleset/internal/aggregate"
	"github.com/xxxbrian/surge-ruleset/internal/logging"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one aggregation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			_, err = a.run(cmd.Context())
			return err
		},
	}
}

// run performs one aggregation pass and exports metrics when configured.
func (a *app) run(ctx context.Context) (*aggregate.Report, error) {
	logger := logging.GetLogger("cli")

	report, err := a.driver.Run(ctx, a.primary, a.custom)
	if report != nil {
		report.Log(logger)
	}

	if a.cfg.Metrics.Textfile != "" {
		if mErr := a.recorder.WriteTextfile(a.cfg.Metrics.Textfile); mErr != nil {
			logger.Warn().Err(mErr).Str("path", a.cfg.Metrics.Textfile).Msg("Failed to write metrics textfile")
		}
	}
	return report, err
}

func newListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the discovered sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}

			primary, err := aggregate.Discover(cmd.Context(), a.primary)
			if err != nil {
				return err
			}
			custom, err := aggregate.Discover(cmd.Context(), a.custom)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PHASE\tNAME\tKIND\tLOCATION")
			for _, e := range primary {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", aggregate.PhasePrimary, e.Name, e.Kind.Resolve(e.Location), e.Location)
			}
			for _, e := range custom {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", aggregate.PhaseCustom, e.Name, e.Kind.Resolve(e.Location), e.Location)
			}
			return tw.Flush()
		},
	}
}
