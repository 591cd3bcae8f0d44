package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/usage-insight/internal/model"
)

// historyContext is the number of most recent history points quoted.
const historyContext = 6

// Season is a meteorological season in the northern hemisphere.
type Season string

const (
	Winter Season = "winter"
	Spring Season = "spring"
	Summer Season = "summer"
	Autumn Season = "autumn"
)

// SeasonOf maps a calendar month (1-12) to its season.
func SeasonOf(month int) Season {
	switch month {
	case 12, 1, 2:
		return Winter
	case 3, 4, 5:
		return Spring
	case 6, 7, 8:
		return Summer
	default:
		return Autumn
	}
}

type seasonKey struct {
	season Season
	kind   model.EnergyKind
}

// seasonalThresholds is the same-season deviation, in percent, that
// warrants closer scrutiny.
var seasonalThresholds = map[seasonKey]int{
	{Spring, model.EnergyElectricity}: 15,
	{Spring, model.EnergyGas}:         20,
	{Spring, model.EnergyWater}:       10,
	{Summer, model.EnergyElectricity}: 20,
	{Summer, model.EnergyGas}:         15,
	{Summer, model.EnergyWater}:       15,
	{Autumn, model.EnergyElectricity}: 15,
	{Autumn, model.EnergyGas}:         20,
	{Autumn, model.EnergyWater}:       10,
	{Winter, model.EnergyElectricity}: 20,
	{Winter, model.EnergyGas}:         25,
	{Winter, model.EnergyWater}:       10,
}

// SeasonalThreshold returns the scrutiny threshold for a season and kind,
// 20 when unknown.
func SeasonalThreshold(s Season, kind model.EnergyKind) int {
	if v, ok := seasonalThresholds[seasonKey{s, kind}]; ok {
		return v
	}
	return 20
}

var seasonalTraits = map[seasonKey]string{
	{Spring, model.EnergyElectricity}: "a low-demand",
	{Spring, model.EnergyGas}:         "a moderate-demand",
	{Spring, model.EnergyWater}:       "a steady-demand",
	{Summer, model.EnergyElectricity}: "a peak air-conditioning",
	{Summer, model.EnergyGas}:         "the lowest-demand",
	{Summer, model.EnergyWater}:       "a rising-demand",
	{Autumn, model.EnergyElectricity}: "a moderate-demand",
	{Autumn, model.EnergyGas}:         "a moderate-demand",
	{Autumn, model.EnergyWater}:       "a steady-demand",
	{Winter, model.EnergyElectricity}: "a heating-driven",
	{Winter, model.EnergyGas}:         "a peak heating",
	{Winter, model.EnergyWater}:       "a steady-demand",
}

func unitOf(kind model.EnergyKind) string {
	if kind == model.EnergyElectricity {
		return "kWh"
	}
	return "m³"
}

// seasonalPattern averages history usage by season, in calendar order.
func seasonalPattern(history model.TrendSeries) string {
	if len(history) == 0 {
		return "no history"
	}
	sums := map[Season]float64{}
	counts := map[Season]int{}
	for _, p := range history {
		s := SeasonOf(p.CalendarMonth())
		sums[s] += p.Usage
		counts[s]++
	}
	var parts []string
	for _, s := range []Season{Spring, Summer, Autumn, Winter} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%s avg %.1f", s, sums[s]/float64(counts[s])))
		}
	}
	return strings.Join(parts, ", ")
}

const systemPrompt = "You are an expert household energy analyst. You judge whether a month's utility usage is abnormal " +
	"and reply with a single JSON object only."

const seasonalGuide = `Seasonal norms:
- Electricity: summer (Jun-Aug) cooling lifts usage 15-30%; winter (Dec-Feb) heating lifts it 10-25%; spring and autumn are low.
- Gas: winter heating lifts usage 40-60%; summer is the lowest; spring and autumn are moderate.
- Water: summer lifts usage 10-20%; winter is steady.`

const responseFormat = `Reply with exactly this JSON object and nothing else:
{
  "is_abnormal": true or false,
  "abnormal_type": "value|seasonal|behavioral|none",
  "severity": "high|medium|low",
  "confidence": 0.0 to 1.0,
  "reasoning": "analysis that compares against the same season in prior years",
  "possible_explanations": ["explanation including seasonal factors", "..."],
  "recommendation": "specific advice including a seasonal measure"
}`

// buildPrompt renders the user message for req.
func buildPrompt(req Request) (string, error) {
	household, err := json.MarshalIndent(req.Household, "", "  ")
	if err != nil {
		return "", err
	}
	summary, err := json.MarshalIndent(req.Summary, "", "  ")
	if err != nil {
		return "", err
	}

	cur := req.Current
	unit := unitOf(req.Kind)
	season := SeasonOf(cur.CalendarMonth())
	period := cur.PeriodStart.Format("2006-01")

	var mom float64
	if n := len(req.History); n > 0 && req.History[n-1].Usage > 0 {
		prev := req.History[n-1].Usage
		mom = (cur.Usage - prev) / prev * 100
	}

	recent := req.History
	if len(recent) > historyContext {
		recent = recent[len(recent)-historyContext:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Decide whether this %s usage is abnormal.\n\n", req.Kind)
	b.WriteString("## Current period\n")
	fmt.Fprintf(&b, "- Period: %s (%s)\n", period, season)
	fmt.Fprintf(&b, "- Usage: %.1f %s\n", cur.Usage, unit)
	fmt.Fprintf(&b, "- Cost: %.1f\n", cur.Cost)
	fmt.Fprintf(&b, "- Change from previous period: %+.1f%%\n\n", mom)

	b.WriteString("## Seasonal context\n")
	fmt.Fprintf(&b, "- Historical pattern: %s\n", seasonalPattern(req.History))
	trait, ok := seasonalTraits[seasonKey{season, req.Kind}]
	if !ok {
		trait = "a variable"
	}
	fmt.Fprintf(&b, "- %s is %s season for %s; a same-season deviation above %d%% needs close analysis\n\n",
		season, trait, req.Kind, SeasonalThreshold(season, req.Kind))

	fmt.Fprintf(&b, "## Household\n%s\n\n", household)

	fmt.Fprintf(&b, "## Recent history (last %d periods)\n", len(recent))
	for _, p := range recent {
		fmt.Fprintf(&b, "- %s: %.1f %s (cost %.1f)\n", p.PeriodStart.Format("2006-01"), p.Usage, unit, p.Cost)
	}
	fmt.Fprintf(&b, "\n## Statistical analysis\n%s\n\n", summary)

	b.WriteString(seasonalGuide)
	b.WriteString("\n\n")
	b.WriteString(responseFormat)
	return b.String(), nil
}
