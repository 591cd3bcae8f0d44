package main

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/store"
)

var (
	scanFlags    seriesFlags
	scanLookback int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the abnormal months of one energy kind",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("scan"); err != nil {
			return err
		}
		kind, period, err := scanFlags.parse()
		if err != nil {
			return err
		}

		var (
			series    model.TrendSeries
			household *model.Household
		)
		if scanFlags.user != "" {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			series, err = storeSeries(ctx, st, scanFlags.user, kind, period)
			if err != nil {
				return err
			}
			household, err = st.GetHousehold(ctx, scanFlags.user)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		} else {
			series, err = fileSeries(scanFlags.file, kind, period)
			if err != nil {
				return err
			}
		}

		scanner, err := initScanner()
		if err != nil {
			return err
		}

		lookback := scanLookback
		if lookback == 0 {
			lookback = cfg.Analysis.LookbackMonths
		}
		records, err := scanner.Scan(ctx, series, lookback, cfg.Oracle.Enabled, household)
		if err != nil {
			return eris.Wrap(err, "scan")
		}

		zap.L().Info("scan complete",
			zap.String("energy_kind", string(kind)),
			zap.Int("points", len(series)),
			zap.Int("anomalies", len(records)),
		)

		f, _ := parseFormat(outputFormat)
		return writeOutput(cmd.OutOrStdout(), f, records, anomalyTable(kind, records))
	},
}

func init() {
	scanFlags.register(scanCmd, true)
	scanCmd.Flags().IntVar(&scanLookback, "lookback", 0, "months before the latest bill to scan (default from config, negative scans everything)")
	rootCmd.AddCommand(scanCmd)
}
