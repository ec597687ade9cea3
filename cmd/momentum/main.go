package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"momentum/internal/config"
	"momentum/internal/logger"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("momentum exited")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "momentum",
		Short:         "Cross-sectional momentum backtester and paper trader",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			l, err := logger.Setup(cfg.Log.Level)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = l
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "configs/momentum.toml", "path to config file (.toml or .yaml)")

	root.AddCommand(
		newBacktestCmd(a),
		newAnalyzeCmd(a),
		newLiveCmd(a),
		newOptimizeCmd(a),
	)
	return root
}
