//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/usage-insight/internal/billing"
	"github.com/sells-group/usage-insight/internal/config"
	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/store"
)

const spikeCSV = `kind,date,usage,cost
electricity,2024-01-01,100,50
electricity,2024-02-01,102,51
electricity,2024-03-01,101,50.5
electricity,2024-04-01,103,51.5
electricity,2024-05-01,102,51
electricity,2024-06-01,160,80
electricity,2024-07-01,104,52
electricity,2024-08-01,103,51.5
gas,2024-07-01,40,120
gas,2024-08-01,54,162
`

// setupCmdEnv points the global config at a temp SQLite database and writes
// the sample bill file.
func setupCmdEnv(t *testing.T) (dbPath, billPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "usage.db")
	billPath = filepath.Join(dir, "bills.csv")
	require.NoError(t, os.WriteFile(billPath, []byte(spikeCSV), 0644))

	cfg = &config.Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = dbPath
	cfg.Oracle.Model = "claude-haiku-4-5-20251001"
	cfg.Oracle.Concurrency = 1
	cfg.Analysis.LookbackMonths = 24
	cfg.Analysis.EnergyLookbackMonths = 12
	cfg.Analysis.MinHistory = 3
	cfg.Analysis.MaxSuggestions = 10
	cfg.Server.Port = 8080

	origFormat := outputFormat
	t.Cleanup(func() { outputFormat = origFormat })
	return dbPath, billPath
}

func openStore(t *testing.T, path string) store.Store {
	t.Helper()
	st, err := store.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func TestImportCmd_Metadata(t *testing.T) {
	assert.Equal(t, "import", importCmd.Use)
	assert.NotEmpty(t, importCmd.Short)

	for _, name := range []string{"user", "file"} {
		flag := importCmd.Flags().Lookup(name)
		require.NotNil(t, flag)
	}
}

func TestImportCmd_UpsertsBills(t *testing.T) {
	dbPath, billPath := setupCmdEnv(t)
	importUser, importFile, importSheet = "u1", billPath, ""
	importCmd.SetContext(context.Background())

	require.NoError(t, importCmd.RunE(importCmd, nil))
	// Re-importing the same file replaces rather than duplicates.
	require.NoError(t, importCmd.RunE(importCmd, nil))

	st := openStore(t, dbPath)
	bills, err := st.ListBills(context.Background(), "u1", store.BillFilter{})
	require.NoError(t, err)
	assert.Len(t, bills, 10)

	gas, err := st.ListBills(context.Background(), "u1", store.BillFilter{Kind: model.EnergyGas})
	require.NoError(t, err)
	require.Len(t, gas, 2)
	assert.Equal(t, 162.0, gas[1].Cost)
}

func TestImportCmd_Errors(t *testing.T) {
	_, billPath := setupCmdEnv(t)
	importCmd.SetContext(context.Background())

	bad := filepath.Join(filepath.Dir(billPath), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("kind,date,usage,cost\nsteam,2024-01-01,1,1\n"), 0644))

	tests := []struct {
		name   string
		file   string
		driver string
		want   string
	}{
		{name: "missing file", file: filepath.Join(filepath.Dir(billPath), "nope.csv"), driver: "sqlite", want: "import"},
		{name: "unsupported extension", file: filepath.Join(filepath.Dir(billPath), "bills.txt"), driver: "sqlite", want: "import"},
		{name: "bad kind", file: bad, driver: "sqlite", want: "row 1"},
		{name: "bad driver", file: billPath, driver: "mysql", want: "store.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg.Store.Driver = tt.driver
			importUser, importFile, importSheet = "u1", tt.file, ""
			err := importCmd.RunE(importCmd, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHouseholdCmd_SavesProfile(t *testing.T) {
	dbPath, _ := setupCmdEnv(t)
	householdCmd.SetContext(context.Background())

	householdUser, householdFamilySize, householdRegion = "u1", 3, "north"
	require.NoError(t, householdCmd.Flags().Set("floor-area", "82.5"))

	require.NoError(t, householdCmd.RunE(householdCmd, nil))

	h, err := openStore(t, dbPath).GetHousehold(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, h.FamilySize)
	assert.Equal(t, "north", h.Region)
	require.NotNil(t, h.FloorArea)
	assert.Equal(t, 82.5, *h.FloorArea)
	assert.Nil(t, h.BuildingAge)
}

func TestDetectCmd_JSON(t *testing.T) {
	_, billPath := setupCmdEnv(t)
	outputFormat = "json"
	detectFlags = seriesFlags{file: billPath, kind: "electricity", period: "monthly"}

	var out bytes.Buffer
	detectCmd.SetOut(&out)
	t.Cleanup(func() { detectCmd.SetOut(nil) })

	require.NoError(t, detectCmd.RunE(detectCmd, nil))

	var v model.StatisticalVerdict
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, model.SeverityLow, v.Severity)
	assert.NotNil(t, v.DetectionMethods)
}

func TestDetectCmd_BadKind(t *testing.T) {
	_, billPath := setupCmdEnv(t)
	detectFlags = seriesFlags{file: billPath, kind: "steam", period: "monthly"}

	err := detectCmd.RunE(detectCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown energy kind")
}

func TestCompareCmd_Table(t *testing.T) {
	_, billPath := setupCmdEnv(t)
	outputFormat = "table"
	compareFlags = seriesFlags{file: billPath, kind: "gas", period: "monthly"}

	var out bytes.Buffer
	compareCmd.SetOut(&out)
	t.Cleanup(func() { compareCmd.SetOut(nil) })

	require.NoError(t, compareCmd.RunE(compareCmd, nil))
	assert.Contains(t, out.String(), "Usage")
	assert.Contains(t, out.String(), "54.00")
	assert.Contains(t, out.String(), "35.00%")
	assert.Contains(t, out.String(), "n/a")
}

func TestScanCmd_FileYAML(t *testing.T) {
	_, billPath := setupCmdEnv(t)
	outputFormat = "yaml"
	scanFlags = seriesFlags{file: billPath, kind: "electricity", period: "monthly"}
	scanLookback = 0
	scanCmd.SetContext(context.Background())

	var out bytes.Buffer
	scanCmd.SetOut(&out)
	t.Cleanup(func() { scanCmd.SetOut(nil) })

	require.NoError(t, scanCmd.RunE(scanCmd, nil))

	var records []model.AnomalyMonthRecord
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, 7, records[0].Month)
	assert.Equal(t, 6, records[1].Month)
}

func TestScanCmd_FromStore(t *testing.T) {
	_, billPath := setupCmdEnv(t)
	importUser, importFile, importSheet = "u2", billPath, ""
	importCmd.SetContext(context.Background())
	require.NoError(t, importCmd.RunE(importCmd, nil))

	outputFormat = "json"
	scanFlags = seriesFlags{user: "u2", kind: "electricity", period: "monthly"}
	scanCmd.SetContext(context.Background())

	var out bytes.Buffer
	scanCmd.SetOut(&out)
	t.Cleanup(func() { scanCmd.SetOut(nil) })

	require.NoError(t, scanCmd.RunE(scanCmd, nil))

	var records []model.AnomalyMonthRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestAnalyzeAndCostsCmd(t *testing.T) {
	_, billPath := setupCmdEnv(t)
	importUser, importFile, importSheet = "u3", billPath, ""
	importCmd.SetContext(context.Background())
	require.NoError(t, importCmd.RunE(importCmd, nil))

	outputFormat = "table"
	analyzeUser, analyzeKind, analyzePeriod = "u3", "", "custom"
	analyzeFrom, analyzeTo = "2024-01-01", "2024-12-31"
	t.Cleanup(func() { analyzeFrom, analyzeTo = "", "" })
	analyzeCmd.SetContext(context.Background())

	var out bytes.Buffer
	analyzeCmd.SetOut(&out)
	t.Cleanup(func() { analyzeCmd.SetOut(nil) })

	require.NoError(t, analyzeCmd.RunE(analyzeCmd, nil))
	assert.Contains(t, out.String(), "2024-07")
	assert.Contains(t, out.String(), "2024-06")
	assert.Contains(t, out.String(), "Electricity")

	costsUser = "u3"
	costsCmd.SetContext(context.Background())
	out.Reset()
	costsCmd.SetOut(&out)
	t.Cleanup(func() { costsCmd.SetOut(nil) })

	require.NoError(t, costsCmd.RunE(costsCmd, nil))
	// August: electricity 51.5 and gas 162.
	assert.Contains(t, out.String(), "213.50")
	assert.Contains(t, out.String(), "Total 2024-08")
}

func TestAnalyzeCmd_CustomPeriodNeedsDates(t *testing.T) {
	setupCmdEnv(t)
	analyzeUser, analyzeKind, analyzePeriod = "u3", "", "custom"
	analyzeFrom, analyzeTo = "", ""
	analyzeCmd.SetContext(context.Background())

	err := analyzeCmd.RunE(analyzeCmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrInvalidRange)
}

func TestDeviceCmd_SaveAndList(t *testing.T) {
	dbPath, _ := setupCmdEnv(t)
	deviceCmd.SetContext(context.Background())
	outputFormat = "table"

	var out bytes.Buffer
	deviceCmd.SetOut(&out)
	t.Cleanup(func() {
		deviceCmd.SetOut(nil)
		deviceList = false
	})

	deviceUser, deviceKind, deviceName, devicePower, deviceHoursPerDay = "u4", "electricity", "fridge", 150, 24
	require.NoError(t, deviceCmd.RunE(deviceCmd, nil))
	deviceName, devicePower, deviceHoursPerDay = "water heater", 2000, 2
	require.NoError(t, deviceCmd.RunE(deviceCmd, nil))

	out.Reset()
	deviceKind, deviceName, deviceList = "", "", true
	require.NoError(t, deviceCmd.RunE(deviceCmd, nil))
	assert.Contains(t, out.String(), "water heater")
	assert.Contains(t, out.String(), "52.63%")
	assert.Contains(t, out.String(), "108.00")

	devices, err := openStore(t, dbPath).ListDevices(context.Background(), "u4", model.EnergyElectricity)
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestDeviceCmd_RequiresKindAndName(t *testing.T) {
	setupCmdEnv(t)
	deviceCmd.SetContext(context.Background())
	deviceUser, deviceKind, deviceName, deviceList = "u4", "", "", false

	err := deviceCmd.RunE(deviceCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--kind and --name")
}

func TestMigrateCmd(t *testing.T) {
	dbPath, _ := setupCmdEnv(t)
	migrateCmd.SetContext(context.Background())

	require.NoError(t, migrateCmd.RunE(migrateCmd, nil))

	st := openStore(t, dbPath)
	assert.NoError(t, st.Ping(context.Background()))
	_, err := st.GetHousehold(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
