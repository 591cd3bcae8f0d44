package oracle

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/usage-insight/internal/model"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// rawVerdict uses pointers so absent required fields can be detected.
type rawVerdict struct {
	IsAbnormal           *bool    `json:"is_abnormal"`
	AbnormalType         string   `json:"abnormal_type"`
	Severity             *string  `json:"severity"`
	Confidence           *float64 `json:"confidence"`
	Reasoning            string   `json:"reasoning"`
	PossibleExplanations []string `json:"possible_explanations"`
	Recommendation       string   `json:"recommendation"`
}

// extractJSON pulls the object out of a fenced ```json block, or else from
// the first '{' to the last '}'.
func extractJSON(text string) (string, bool) {
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			if s := strings.TrimSpace(rest[:j]); s != "" {
				return s, true
			}
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// parseVerdict decodes an oracle reply. Missing is_abnormal, severity or
// confidence makes the reply malformed.
func parseVerdict(text string) (*model.AIVerdict, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return nil, eris.New("oracle: no JSON object in response")
	}
	raw = strings.NewReplacer("\r", "", "\n", " ", "\t", " ").Replace(raw)

	var rv rawVerdict
	if err := json.Unmarshal([]byte(raw), &rv); err != nil {
		repaired := trailingComma.ReplaceAllString(raw, "$1")
		if err2 := json.Unmarshal([]byte(repaired), &rv); err2 != nil {
			return nil, eris.Wrap(err, "oracle: parse response")
		}
	}

	var missing []string
	if rv.IsAbnormal == nil {
		missing = append(missing, "is_abnormal")
	}
	if rv.Severity == nil {
		missing = append(missing, "severity")
	}
	if rv.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("oracle: response missing %s", strings.Join(missing, ", "))
	}

	conf := *rv.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	explanations := rv.PossibleExplanations
	if explanations == nil {
		explanations = []string{}
	}
	return &model.AIVerdict{
		IsAbnormal:           *rv.IsAbnormal,
		AbnormalType:         normalizeType(rv.AbnormalType),
		Severity:             model.ParseSeverity(strings.ToLower(strings.TrimSpace(*rv.Severity))),
		Confidence:           conf,
		Reasoning:            rv.Reasoning,
		PossibleExplanations: explanations,
		Recommendation:       rv.Recommendation,
	}, nil
}

// normalizeType maps the "no anomaly" spellings to empty.
func normalizeType(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "none", "no anomaly", "normal":
		return ""
	}
	return s
}
