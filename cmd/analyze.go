package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/usage-insight/internal/analysis"
	"github.com/sells-group/usage-insight/internal/billing"
	"github.com/sells-group/usage-insight/internal/model"
)

var (
	analyzeUser   string
	analyzeKind   string
	analyzePeriod string
	analyzeFrom   string
	analyzeTo     string
	costsUser     string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a user's stored bills and save advisory suggestions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		req := analysis.Request{UserID: analyzeUser}
		if analyzeKind != "" {
			kind, err := model.ParseEnergyKind(analyzeKind)
			if err != nil {
				return err
			}
			req.Kind = kind
		}
		period, err := billing.ParsePeriod(analyzePeriod)
		if err != nil {
			return err
		}
		req.Period = period
		if req.From, req.To, err = parseWindow(analyzeFrom, analyzeTo); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, _, err := initAnalysis(st)
		if err != nil {
			return err
		}

		report, err := svc.Analyze(ctx, req)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		f, _ := parseFormat(outputFormat)
		return writeOutput(cmd.OutOrStdout(), f, report, reportTable(report))
	},
}

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Show the latest billed month's cost split by energy kind",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("costs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		breakdown, err := analysis.NewService(st, nil, cfg.AnalysisSettings()).LatestCosts(ctx, costsUser)
		if err != nil {
			return eris.Wrap(err, "costs")
		}

		f, _ := parseFormat(outputFormat)
		return writeOutput(cmd.OutOrStdout(), f, breakdown, costTable(breakdown))
	},
}

// parseWindow reads optional custom period bounds.
func parseWindow(from, to string) (time.Time, time.Time, error) {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = billing.ParseDate(from); err != nil {
			return f, t, eris.Wrap(err, "from")
		}
	}
	if to != "" {
		if t, err = billing.ParseDate(to); err != nil {
			return f, t, eris.Wrap(err, "to")
		}
	}
	return f, t, nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeUser, "user", "", "user ID (required)")
	analyzeCmd.Flags().StringVar(&analyzeKind, "kind", "", "energy kind to analyze (default all)")
	analyzeCmd.Flags().StringVar(&analyzePeriod, "period", string(billing.PeriodMonthly), "aggregation period: monthly, quarter, annual or custom")
	analyzeCmd.Flags().StringVar(&analyzeFrom, "from", "", "first bill date of a custom period, e.g. 2024-01-01")
	analyzeCmd.Flags().StringVar(&analyzeTo, "to", "", "last bill date of a custom period")
	_ = analyzeCmd.MarkFlagRequired("user")

	costsCmd.Flags().StringVar(&costsUser, "user", "", "user ID (required)")
	_ = costsCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(analyzeCmd, costsCmd)
}
