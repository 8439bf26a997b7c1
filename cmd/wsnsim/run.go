package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/wsn-simulator/internal/config"
	"github.com/signalsfoundry/wsn-simulator/internal/logging"
	"github.com/signalsfoundry/wsn-simulator/internal/report"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation and print a per-round summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rounds") {
				cfg.Simulation.Rounds, _ = cmd.Flags().GetInt("rounds")
			}
			if cmd.Flags().Changed("out") {
				cfg.Report.Dir, _ = cmd.Flags().GetString("out")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			log := logging.New(cfg.Logging)
			return withTracing(ctx, cfg, log, func() error {
				return runSimulation(ctx, cfg, log, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().Int("rounds", 0, "Maximum number of rounds (0 runs until every sensor is dead)")
	cmd.Flags().String("out", "", "Directory for the per-round count series")
	return cmd
}

func runSimulation(ctx context.Context, cfg config.File, log logging.Logger, out io.Writer) error {
	s, err := newSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := s.simulate(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		log.Warn(context.Background(), "simulation interrupted", logging.Int("rounds", s.ctrl.Round()))
	}
	if path := cfg.Report.TopologyDOT; path != "" {
		if err := s.writeTopology(path); err != nil {
			return err
		}
	}
	return report.RenderSummary(out, s.ctrl.History())
}
