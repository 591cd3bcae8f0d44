package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/usage-insight/internal/compare"
	"github.com/sells-group/usage-insight/internal/detect"
)

var (
	detectFlags  seriesFlags
	compareFlags seriesFlags
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run the statistical detectors on the latest period of a bill file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("detect"); err != nil {
			return err
		}
		kind, period, err := detectFlags.parse()
		if err != nil {
			return err
		}
		series, err := fileSeries(detectFlags.file, kind, period)
		if err != nil {
			return err
		}

		verdict, err := detect.Comprehensive(series)
		if err != nil {
			return eris.Wrap(err, "detect")
		}

		f, _ := parseFormat(outputFormat)
		return writeOutput(cmd.OutOrStdout(), f, verdict, verdictTable(kind, verdict))
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the latest period of a bill file with the previous period and the same month last year",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("compare"); err != nil {
			return err
		}
		kind, period, err := compareFlags.parse()
		if err != nil {
			return err
		}
		series, err := fileSeries(compareFlags.file, kind, period)
		if err != nil {
			return err
		}

		cmp, err := compare.Latest(series)
		if err != nil {
			return eris.Wrap(err, "compare")
		}

		f, _ := parseFormat(outputFormat)
		return writeOutput(cmd.OutOrStdout(), f, cmp, comparisonTable(kind, cmp))
	},
}

func init() {
	detectFlags.register(detectCmd, false)
	compareFlags.register(compareCmd, false)
	rootCmd.AddCommand(detectCmd, compareCmd)
}
