package main

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/usage-insight/internal/billing"
	"github.com/sells-group/usage-insight/internal/model"
)

var (
	importUser  string
	importFile  string
	importSheet string

	householdUser        string
	householdFamilySize  int
	householdFloorArea   float64
	householdRegion      string
	householdBuildingAge int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import bills from a CSV or XLSX file into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		var (
			rows []billing.Row
			err  error
		)
		if importSheet != "" && strings.EqualFold(filepath.Ext(importFile), ".xlsx") {
			rows, err = billing.ReadXLSX(importFile, billing.XLSXOptions{SheetName: importSheet})
		} else {
			rows, err = billing.ReadFile(importFile)
		}
		if err != nil {
			return eris.Wrap(err, "import")
		}

		bills, err := billing.Bills(importUser, rows)
		if err != nil {
			return eris.Wrapf(err, "import %s", importFile)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertBills(ctx, bills)
		if err != nil {
			return eris.Wrap(err, "import bills")
		}

		zap.L().Info("import complete",
			zap.String("user", importUser),
			zap.String("file", importFile),
			zap.Int("rows", len(rows)),
			zap.Int("upserted", n),
		)
		return nil
	},
}

var householdCmd = &cobra.Command{
	Use:   "household",
	Short: "Set the household profile used to ground AI reviews",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("household"); err != nil {
			return err
		}

		h := model.Household{FamilySize: householdFamilySize, Region: householdRegion}
		if cmd.Flags().Changed("floor-area") {
			h.FloorArea = &householdFloorArea
		}
		if cmd.Flags().Changed("building-age") {
			h.BuildingAge = &householdBuildingAge
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SetHousehold(ctx, householdUser, h); err != nil {
			return eris.Wrap(err, "set household")
		}
		zap.L().Info("household saved", zap.String("user", householdUser))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importUser, "user", "", "user ID owning the bills (required)")
	importCmd.Flags().StringVar(&importFile, "file", "", "path to .csv or .xlsx bill file (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "worksheet name for .xlsx files (default first sheet)")
	_ = importCmd.MarkFlagRequired("user")
	_ = importCmd.MarkFlagRequired("file")

	householdCmd.Flags().StringVar(&householdUser, "user", "", "user ID (required)")
	householdCmd.Flags().IntVar(&householdFamilySize, "family-size", 1, "number of people in the household")
	householdCmd.Flags().Float64Var(&householdFloorArea, "floor-area", 0, "floor area in square meters")
	householdCmd.Flags().StringVar(&householdRegion, "region", "", "region or climate zone")
	householdCmd.Flags().IntVar(&householdBuildingAge, "building-age", 0, "building age in years")
	_ = householdCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(importCmd, householdCmd)
}
