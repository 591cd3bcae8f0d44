package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/usage-insight/internal/analysis"
	"github.com/sells-group/usage-insight/internal/model"
)

type format string

const (
	formatTable format = "table"
	formatJSON  format = "json"
	formatYAML  format = "yaml"
)

func parseFormat(s string) (format, error) {
	switch f := format(strings.ToLower(s)); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	}
	return "", eris.Errorf("unsupported output format %q (table, json, yaml)", s)
}

// table is the tabular rendering of a result.
type table struct {
	header []string
	rows   [][]string
}

// writeOutput encodes v as JSON or YAML, or renders t for the table format.
func writeOutput(w io.Writer, f format, v any, t table) error {
	switch f {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "encode json")
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "encode yaml")
	}

	tw := tablewriter.NewWriter(w)
	tw.Header(t.header)
	if err := tw.Bulk(t.rows); err != nil {
		return eris.Wrap(err, "render table")
	}
	return eris.Wrap(tw.Render(), "render table")
}

func kindLabel(k model.EnergyKind) string {
	return cases.Title(language.English).String(string(k))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return num(*v) + "%"
}

func optNum(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return num(*v)
}

func verdictTable(kind model.EnergyKind, v model.StatisticalVerdict) table {
	methods := make([]string, len(v.DetectionMethods))
	for i, m := range v.DetectionMethods {
		methods[i] = string(m)
	}
	t := table{header: []string{"Field", "Value"}}
	t.rows = [][]string{
		{"Energy", kindLabel(kind)},
		{"Abnormal", strconv.FormatBool(v.IsAbnormal)},
		{"Type", string(v.AnomalyType)},
		{"Severity", string(v.Severity)},
		{"Confidence", num(v.Confidence)},
		{"Methods", strings.Join(methods, ", ")},
	}
	if v.Thresholds != nil {
		t.rows = append(t.rows, []string{"Change range", fmt.Sprintf("%s%% .. %s%%", num(v.Thresholds.Lower), num(v.Thresholds.Upper))})
	}
	if v.TrendInfo != nil {
		t.rows = append(t.rows, []string{"Trend", fmt.Sprintf("%s (%s)", v.TrendInfo.Direction, num(v.TrendInfo.Strength))})
	}
	for _, r := range v.Recommendations {
		t.rows = append(t.rows, []string{"Advice", r})
	}
	return t
}

func comparisonTable(kind model.EnergyKind, c model.Comparison) table {
	return table{
		header: []string{kindLabel(kind), "Current", "Previous", "MoM", "YoY"},
		rows: [][]string{
			{"Usage", num(c.CurrentUsage), optNum(c.PreviousUsage), pct(c.UsageMoMPct), pct(c.UsageYoYPct)},
			{"Cost", num(c.CurrentCost), optNum(c.PreviousCost), pct(c.CostMoMPct), pct(c.CostYoYPct)},
			{"Unit price", num(c.CurrentUnitPrice), optNum(c.PreviousUnitPrice), pct(c.UnitPriceMoMPct), pct(c.UnitPriceYoYPct)},
		},
	}
}

func anomalyRows(kind model.EnergyKind, records []model.AnomalyMonthRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			kindLabel(kind),
			fmt.Sprintf("%04d-%02d", r.Year, r.Month),
			num(r.Usage),
			num(r.AvgUsage),
			num(r.DeviationPct) + "%",
			string(r.AnomalyType),
			string(r.Severity),
			num(r.Confidence),
		})
	}
	return rows
}

var anomalyHeader = []string{"Energy", "Month", "Usage", "Average", "Deviation", "Type", "Severity", "Confidence"}

func anomalyTable(kind model.EnergyKind, records []model.AnomalyMonthRecord) table {
	return table{header: anomalyHeader, rows: anomalyRows(kind, records)}
}

func reportTable(r *analysis.Report) table {
	t := table{header: anomalyHeader}
	for _, k := range r.Kinds {
		t.rows = append(t.rows, anomalyRows(k.Kind, k.Anomalies)...)
	}
	t.rows = append(t.rows, []string{
		"Total",
		"",
		"",
		"",
		"",
		fmt.Sprintf("%d abnormal kinds", r.Summary.AbnormalKinds),
		fmt.Sprintf("%d months", r.Summary.AnomalyMonths),
		num(r.Summary.TotalCost),
	})
	return t
}

func costTable(b *analysis.CostBreakdown) table {
	t := table{header: []string{"Energy", "Cost", "Share"}}
	for _, item := range b.Items {
		t.rows = append(t.rows, []string{kindLabel(item.Kind), num(item.Cost), num(item.SharePct) + "%"})
	}
	month := ""
	if !b.Month.IsZero() {
		month = b.Month.Format("2006-01")
	}
	t.rows = append(t.rows, []string{"Total " + month, num(b.Total), ""})
	return t
}
