// Package plan defines the analysis plan value types and parses the untrusted
// plan-shaped JSON produced by the reasoning service.
package plan

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Supported aggregation kinds. AggRaw means row-level passthrough (scatter,
// histogram, boxplot).
const (
	AggSum    = "sum"
	AggMean   = "mean"
	AggCount  = "count"
	AggMin    = "min"
	AggMax    = "max"
	AggMedian = "median"
	AggRaw    = "raw"
)

// NormalizeAggregation maps aggregation spellings to a supported kind.
// Unrecognized values fall back to mean.
func NormalizeAggregation(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case AggSum:
		return AggSum
	case AggMean, "avg", "average":
		return AggMean
	case AggCount:
		return AggCount
	case AggMin:
		return AggMin
	case AggMax:
		return AggMax
	case AggMedian:
		return AggMedian
	case AggRaw:
		return AggRaw
	default:
		return AggMean
	}
}

// Metric pairs a column with an aggregation kind.
type Metric struct {
	Column      string `json:"column"`
	Aggregation string `json:"aggregation"`
}

// UnmarshalJSON tolerates the reasoning service emitting a bare column name
// where a metric object is expected.
func (m *Metric) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Column = s
		return nil
	}
	type metric Metric // avoid recursion
	var tmp metric
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*m = Metric(tmp)
	return nil
}

// KPI is a single requested key performance indicator.
type KPI struct {
	Name   string `json:"name"`
	Metric Metric `json:"metric"`
}

// Chart is a single requested chart. Hue is empty when no secondary grouping
// was requested.
type Chart struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	X            string   `json:"x"`
	Y            Metric   `json:"y"`
	Hue          string   `json:"hue,omitempty"`
	Title        string   `json:"title,omitempty"`
	Bins         int      `json:"bins,omitempty"`
	RadarMetrics []string `json:"radar_metrics,omitempty"`
	MaxValue     float64  `json:"max_value,omitempty"`
}

// Plan is an ordered list of KPI and chart requests.
type Plan struct {
	KPIs   []KPI   `json:"kpis"`
	Charts []Chart `json:"charts"`
}

// Summary returns the observability count summary: KPI count, chart count,
// and the chart type list in plan order.
func (p Plan) Summary() (kpis, charts int, types []string) {
	for _, c := range p.Charts {
		types = append(types, c.Type)
	}
	return len(p.KPIs), len(p.Charts), types
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line, for truncated responses
// where the closing fence never arrived.
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// invalidJSONEscapeRe matches a backslash followed by a character that is not
// a valid JSON string escape. Models sometimes emit regex-like content (\d+)
// unescaped inside JSON strings; double-escaping lets the parser accept it.
var invalidJSONEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

// trailingCommaRe matches a comma directly before a closing brace or bracket.
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// Sanitize strips markdown fences and trailing commas from model output,
// returning text that is at least plausibly JSON. Invalid escape sequences
// are left alone here; they are only repaired after a parse failure because
// the fix would corrupt correctly escaped input.
func Sanitize(raw string) string {
	cleaned := stripMarkdownFences(raw)
	return trailingCommaRe.ReplaceAllString(cleaned, "$1")
}

// Parse parses raw reasoning-service output into a Plan. It strips markdown
// fences, sanitizes invalid escapes and trailing commas, and normalizes all
// aggregation spellings. On structural failure it returns an empty plan and
// the parse error; callers surface that as a degraded-result condition, not
// a hard failure.
func Parse(raw string) (Plan, error) {
	cleaned := Sanitize(raw)

	var p Plan
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		fixed := invalidJSONEscapeRe.ReplaceAllString(cleaned, `\\$1`)
		if err2 := json.Unmarshal([]byte(fixed), &p); err2 != nil {
			return Plan{}, fmt.Errorf("plan: parse: %w", err)
		}
	}

	for i := range p.KPIs {
		p.KPIs[i].Metric.Aggregation = NormalizeAggregation(p.KPIs[i].Metric.Aggregation)
	}
	for i := range p.Charts {
		p.Charts[i].Y.Aggregation = NormalizeAggregation(p.Charts[i].Y.Aggregation)
	}
	return p, nil
}
