package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/usage-insight/internal/billing"
	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/store"
)

// localUser owns bills read straight from a file.
const localUser = "local"

// seriesFlags selects one trend series from a bill file or the store.
type seriesFlags struct {
	file   string
	user   string
	kind   string
	period string
}

func (f *seriesFlags) register(cmd *cobra.Command, allowUser bool) {
	cmd.Flags().StringVar(&f.file, "file", "", "bill file (.csv or .xlsx) with kind,date,usage,cost columns")
	cmd.Flags().StringVar(&f.kind, "kind", string(model.EnergyElectricity), "energy kind: electricity, gas or water")
	cmd.Flags().StringVar(&f.period, "period", string(billing.PeriodMonthly), "aggregation period: monthly, quarter or annual")
	if allowUser {
		cmd.Flags().StringVar(&f.user, "user", "", "read bills for this user from the store instead of a file")
		cmd.MarkFlagsMutuallyExclusive("file", "user")
		cmd.MarkFlagsOneRequired("file", "user")
	} else {
		_ = cmd.MarkFlagRequired("file")
	}
}

func (f *seriesFlags) parse() (model.EnergyKind, billing.Period, error) {
	kind, err := model.ParseEnergyKind(f.kind)
	if err != nil {
		return "", "", err
	}
	period, err := billing.ParsePeriod(f.period)
	if err != nil {
		return "", "", err
	}
	return kind, period, nil
}

// fileSeries reads a bill file and builds the series for kind.
func fileSeries(path string, kind model.EnergyKind, period billing.Period) (model.TrendSeries, error) {
	rows, err := billing.ReadFile(path)
	if err != nil {
		return nil, err
	}
	bills, err := billing.Bills(localUser, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return billing.BuildSeries(bills, period)[kind], nil
}

// storeSeries builds the series for kind from a user's stored bills.
func storeSeries(ctx context.Context, st store.Store, userID string, kind model.EnergyKind, period billing.Period) (model.TrendSeries, error) {
	bills, err := st.ListBills(ctx, userID, store.BillFilter{Kind: kind})
	if err != nil {
		return nil, err
	}
	return billing.BuildSeries(bills, period)[kind], nil
}
