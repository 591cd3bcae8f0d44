package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/usage-insight/internal/analysis"
	"github.com/sells-group/usage-insight/internal/model"
)

var (
	deviceUser        string
	deviceKind        string
	deviceName        string
	devicePower       float64
	deviceHoursPerDay float64
	deviceList        bool
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Save a household device or list the user's devices with their usage shares",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("device"); err != nil {
			return err
		}

		var kind model.EnergyKind
		if deviceKind != "" {
			k, err := model.ParseEnergyKind(deviceKind)
			if err != nil {
				return err
			}
			kind = k
		}
		if !deviceList {
			if kind == "" || deviceName == "" {
				return eris.New("device: --kind and --name are required unless --list is set")
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if !deviceList {
			d, err := st.SaveDevice(ctx, model.Device{
				UserID:      deviceUser,
				Kind:        kind,
				Name:        deviceName,
				PowerRating: devicePower,
				HoursPerDay: deviceHoursPerDay,
			})
			if err != nil {
				return eris.Wrap(err, "save device")
			}
			zap.L().Info("device saved",
				zap.String("user", deviceUser),
				zap.String("device_id", d.ID),
				zap.String("name", d.Name),
			)
		}

		devices, err := st.ListDevices(ctx, deviceUser, kind)
		if err != nil {
			return eris.Wrap(err, "list devices")
		}

		f, _ := parseFormat(outputFormat)
		return writeOutput(cmd.OutOrStdout(), f, devices, deviceTable(devices))
	},
}

// deviceTable shows shares within each kind.
func deviceTable(devices []model.Device) table {
	byKind := make(map[model.EnergyKind][]model.Device)
	for _, d := range devices {
		byKind[d.Kind] = append(byKind[d.Kind], d)
	}
	t := table{header: []string{"Energy", "Device", "Monthly usage", "Share"}}
	for _, kind := range model.AllEnergyKinds() {
		for _, s := range analysis.DeviceShares(byKind[kind]) {
			t.rows = append(t.rows, []string{kindLabel(kind), s.Name, num(s.MonthlyUsage), num(s.SharePct) + "%"})
		}
	}
	return t
}

func init() {
	deviceCmd.Flags().StringVar(&deviceUser, "user", "", "user ID (required)")
	deviceCmd.Flags().StringVar(&deviceKind, "kind", "", "energy kind the device draws on: electricity, gas or water")
	deviceCmd.Flags().StringVar(&deviceName, "name", "", "device name, unique per user")
	deviceCmd.Flags().Float64Var(&devicePower, "power", 0, "rating: watts for electricity, m³/h for gas, L/h for water")
	deviceCmd.Flags().Float64Var(&deviceHoursPerDay, "hours-per-day", 0, "average hours of use per day")
	deviceCmd.Flags().BoolVar(&deviceList, "list", false, "only list devices")
	_ = deviceCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(deviceCmd)
}
