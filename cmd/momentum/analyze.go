package main

import (
	"momentum/internal/analytics"
	"momentum/internal/store/sqlite"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var run string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Report on a journaled run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			journal, err := sqlite.New(a.cfg.Journal.Path, "")
			if err != nil {
				return err
			}
			defer journal.Close()

			if run == "" {
				if run, err = journal.LatestRun(ctx); err != nil {
					return err
				}
			}
			equity, err := journal.ListEquity(ctx, run)
			if err != nil {
				return err
			}
			trades, err := journal.ListTrades(ctx, run)
			if err != nil {
				return err
			}
			a.log.Info().Str("run", run).Int("points", len(equity)).Int("trades", len(trades)).Msg("journal loaded")

			report, err := analytics.GenerateReport(equity, trades, nil, a.cfg.Report.RollingWindow)
			if err != nil {
				return err
			}
			if err := analytics.PrintReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return a.writeCSVs(equity, trades)
		},
	}
	cmd.Flags().StringVar(&run, "run", "", "run id (default: most recent)")
	return cmd
}
