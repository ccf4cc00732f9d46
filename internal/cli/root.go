// Package cli implements the surge-ruleset command line.
package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xxxbrian/surge-ruleset/internal/aggregate"
	"github.com/xxxbrian/surge-ruleset/internal/catalog"
	"github.com/xxxbrian/surge-ruleset/internal/config"
	"github.com/xxxbrian/surge-ruleset/internal/fetcher"
	"github.com/xxxbrian/surge-ruleset/internal/logging"
	"github.com/xxxbrian/surge-ruleset/internal/metrics"
	"github.com/xxxbrian/surge-ruleset/internal/output"
)

// Version is set at build time.
var Version = "dev"

type globalFlags struct {
	configPath string
	verbosity  int
	logJSON    bool
	outputDir  string
	workers    int
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "surge-ruleset",
		Short: "Aggregate remote rule lists into domain and CIDR rulesets",
		Long: `surge-ruleset fetches rule sources in several formats, normalizes
them into a domains.list / ipcidr.list pair per source and deduplicates
the entries.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(flags.verbosity, flags.logJSON)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", "Increase verbosity (-v DEBUG, -vv TRACE)")
	root.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "Log JSON lines instead of console output")
	root.PersistentFlags().StringVarP(&flags.outputDir, "output", "o", "", "Output directory (overrides output.dir)")
	root.PersistentFlags().IntVarP(&flags.workers, "workers", "w", 0, "Concurrent source workers (overrides fetch.workers)")

	root.AddCommand(newRunCmd(flags), newListCmd(flags), newServeCmd(flags), newVersionCmd())
	return root
}

// app holds the collaborators shared by the commands.
type app struct {
	cfg      *config.Config
	fetcher  *fetcher.Fetcher
	recorder *metrics.Recorder
	primary  catalog.Lister
	custom   catalog.Lister
	driver   *aggregate.Driver
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.outputDir != "" {
		cfg.Output.Dir = flags.outputDir
	}
	if flags.workers > 0 {
		cfg.Fetch.Workers = flags.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := fetcher.NewFetcher(cfg.FetcherOptions())
	primary, err := catalog.New(cfg.Catalog, f)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	custom, err := catalog.New(cfg.Custom, f)
	if err != nil {
		return nil, fmt.Errorf("custom: %w", err)
	}

	recorder := metrics.NewRecorder()
	driver := aggregate.NewDriver(f, output.NewWriter(cfg.Output.Dir), aggregate.Options{
		Workers: cfg.Fetch.Workers,
		Metrics: recorder,
		Logger:  logging.GetLogger("aggregate"),
	})

	return &app{
		cfg:      cfg,
		fetcher:  f,
		recorder: recorder,
		primary:  primary,
		custom:   custom,
		driver:   driver,
	}, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "surge-ruleset version %s\n", Version)
		},
	}
}
