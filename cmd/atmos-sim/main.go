// Command atmos-sim runs an atmospherics scenario headless or validates
// scenario files.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/atmos-simulator/core"
	"github.com/signalsfoundry/atmos-simulator/internal/app"
	"github.com/signalsfoundry/atmos-simulator/internal/config"
	"github.com/signalsfoundry/atmos-simulator/internal/scenario"
	"github.com/signalsfoundry/atmos-simulator/model"
	"github.com/signalsfoundry/atmos-simulator/timectrl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var v *viper.Viper
	root := &cobra.Command{
		Use:   "atmos-sim",
		Short: "Tile and pipe-network atmospherics simulator.",
		Long: `atmos-sim simulates gas on a grid of tiles and the pipe networks laid over
them. Configuration comes from defaults, an optional --config file, ATMOS_*
environment variables and flags, in increasing precedence.`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			v, err = config.New(cmd.Flags())
			if err != nil {
				return err
			}
			return config.ReadFile(v)
		},
	}
	config.RegisterFlags(root.PersistentFlags())
	root.AddCommand(
		newRunCmd(func() *viper.Viper { return v }),
		newValidateCmd(),
		newKindsCmd(),
	)
	return root
}

func newRunCmd(cfgFn func() *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the configured scenario.",
		Long: `run loads --scenario and steps it --ticks times (forever when 0), paced by
--interval in realtime mode or back to back in accelerated mode, then prints
a summary.`,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFn())
			if err != nil {
				return err
			}
			if cfg.Scenario == "" {
				return fmt.Errorf("%w: --scenario is required", config.ErrInvalidConfig)
			}
			cfg.Log.Output = cmd.ErrOrStderr()

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			a.Run(ctx)
			return printSummary(cmd.OutOrStdout(), a)
		},
	}
}

func printSummary(w io.Writer, a *app.App) error {
	tiles, pipes, containers := a.Station.Totals()
	last := a.Station.LastStep()
	_, err := fmt.Fprintf(w, "scenario %s: %d ticks\n  tile moles %.3f\n  pipe moles %.3f\n  container moles %.3f\n  last step: %d nets created, %d removed, %d net reactions\n",
		a.Station.ScenarioName(), a.Station.Tick(), tiles, pipes, containers,
		last.Rebuild.NetsCreated, last.Rebuild.NetsRemoved, last.NetReactions)
	return err
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate SCENARIO...",
		Short: "Check scenario files without running them.",
		Long: `validate decodes each scenario and builds it on a scratch station, so
unknown keys, gases and kinds as well as portables without a gas port are
all reported.`,
		Args:              cobra.MinimumNArgs(1),
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				summary, err := validateScenario(cmd.Context(), path)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s: %s\n", path, summary)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios invalid", failed, len(args))
			}
			return nil
		},
	}
}

func validateScenario(ctx context.Context, path string) (string, error) {
	f, err := scenario.LoadFile(path)
	if err != nil {
		return "", err
	}
	cfg := config.Config{Mode: timectrl.Accelerated, Dt: 1, Atmos: core.DefaultSettings()}
	cfg.Log.Output = io.Discard
	a, err := app.New(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		return "", err
	}
	defer a.Close(ctx)
	loaded, err := a.Station.Load(ctx, f)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%q, %d tiles, %d entities", loaded.Name, loaded.Tiles, len(a.Station.Entities())), nil
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "kinds",
		Short:             "List the entity kinds a scenario may place.",
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := scenario.Kinds()
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\ndirections: any of %s\n", model.AllDirections)
			return nil
		},
	}
}
