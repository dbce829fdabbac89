// Package repair rewrites an untrusted analysis plan so every chart and KPI
// obeys the schema and diversity invariants. The engine never rejects: each
// stage is a total plan→plan function that repairs, shrinks, or extends the
// plan, and running the pipeline on its own output is a no-op.
package repair

import (
	"fmt"
	"strings"

	"github.com/plotline-ai/plotline/internal/colschema"
	"github.com/plotline-ai/plotline/internal/plan"
)

// validTypes is the set of supported chart types.
var validTypes = map[string]bool{
	"bar": true, "line": true, "pie": true, "scatter": true, "area": true,
	"boxplot": true, "histogram": true, "radar": true, "heatmap": true,
	"gauge": true, "funnel": true, "treemap": true,
}

// typeSynonyms maps requested-but-unsupported chart types onto the nearest
// supported one. Anything not listed here falls back to bar.
var typeSynonyms = map[string]string{
	"violin":       "boxplot",
	"waterfall":    "bar",
	"donut":        "pie",
	"doughnut":     "pie",
	"stacked_bar":  "bar",
	"stacked_area": "area",
	"grouped_bar":  "bar",
	"column":       "bar",
	"bubble":       "scatter",
	"sankey":       "funnel",
	"sunburst":     "treemap",
}

// stage is one repair step. Stages never fail; they degrade to skipping
// individual items.
type stage func(p plan.Plan, s colschema.Schema) plan.Plan

// stages run in a fixed order; later stages rely on the invariants earlier
// ones establish (rotation assumes identifiers are gone, minimums assume
// diversity charts exist).
var stages = []stage{
	normalizeTypes,
	repairTitles,
	fixYAxis,
	stripIdentifiers,
	enforceDiversity,
	rotateYColumns,
	ensureMinimums,
}

// Repair applies every repair stage in order and returns the corrected plan.
func Repair(p plan.Plan, s colschema.Schema) plan.Plan {
	for _, st := range stages {
		p = st(p, s)
	}
	return p
}

// ── Stage 1: type normalization ───────────────────────────────────────────────

func normalizeTypes(p plan.Plan, s colschema.Schema) plan.Plan {
	for i := range p.Charts {
		c := &p.Charts[i]
		t := strings.ToLower(strings.TrimSpace(c.Type))
		if !validTypes[t] {
			if mapped, ok := typeSynonyms[t]; ok {
				t = mapped
			} else {
				t = "bar"
			}
		}
		c.Type = t

		// The aggregation is determined by the type for row-level charts and
		// for categorical distributions; whatever the plan requested, later
		// stages and the aggregator rely on the canonical value.
		switch t {
		case "scatter", "histogram", "boxplot":
			c.Y.Aggregation = plan.AggRaw
		case "pie", "funnel":
			if c.Y.Column == "" || c.Y.Column == c.X || s.IsCategorical(c.Y.Column) {
				c.Y.Aggregation = plan.AggCount
			}
		}
	}
	return p
}

// ── Stage 2: title repair ─────────────────────────────────────────────────────

// vizWords maps visualization vocabulary to the chart type it implies. Words
// mapping to "" are never supported, so any title using them is wrong.
var vizWords = map[string]string{
	"boxplot": "boxplot", "box plot": "boxplot", "histogram": "histogram",
	"violin": "", "waterfall": "", "sankey": "", "sunburst": "", "bubble": "",
}

func repairTitles(p plan.Plan, _ colschema.Schema) plan.Plan {
	for i := range p.Charts {
		c := &p.Charts[i]
		lower := strings.ToLower(c.Title)
		for word, impliedType := range vizWords {
			if strings.Contains(lower, word) && impliedType != c.Type {
				c.Title = defaultTitle(*c)
				break
			}
		}
	}
	return p
}

// defaultTitle is the deterministic title used whenever a title has to be
// regenerated: "<Y> by <X>" plus the hue when present.
func defaultTitle(c plan.Chart) string {
	parts := []string{prettify(c.Y.Column), "by", prettify(c.X)}
	if c.Hue != "" {
		parts = append(parts, "and", prettify(c.Hue))
	}
	return strings.Join(parts, " ")
}

// prettify turns a column name into display form: underscores to spaces,
// words title-cased.
func prettify(col string) string {
	col = strings.ReplaceAll(col, "_", " ")
	words := strings.Fields(col)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ── Stage 3: y-axis correctness ───────────────────────────────────────────────

func fixYAxis(p plan.Plan, s colschema.Schema) plan.Plan {
	kept := p.Charts[:0]
	for _, c := range p.Charts {
		// A date can never be a bar height. Swap in the best numeric column,
		// or drop the chart when the schema offers none.
		if s.IsDatetime(c.Y.Column) && c.Type != "pie" {
			pool := numericPool(s)
			if len(pool) == 0 {
				continue
			}
			c.Y = plan.Metric{Column: pool[0], Aggregation: plan.AggMean}
			c.Title = defaultTitle(c)
		}
		// Inverted request: numeric on x, category on y.
		if isXYChart(c.Type) && s.IsNumeric(c.X) && s.IsCategorical(c.Y.Column) {
			c.X, c.Y.Column = c.Y.Column, c.X
		}
		kept = append(kept, c)
	}
	p.Charts = kept
	return p
}

func isXYChart(t string) bool {
	return t == "bar" || t == "line" || t == "area"
}

// ── Stage 4: identifier stripping ─────────────────────────────────────────────

func stripIdentifiers(p plan.Plan, s colschema.Schema) plan.Plan {
	known := func(col string) bool {
		return s.IsCategorical(col) || s.IsNumeric(col) || s.IsDatetime(col)
	}
	kept := p.Charts[:0]
	for _, c := range p.Charts {
		if !known(c.X) || !known(c.Y.Column) {
			continue
		}
		if c.Hue != "" && (!known(c.Hue) || s.IsIdentifier(c.Hue)) {
			c.Hue = ""
		}
		kept = append(kept, c)
	}
	p.Charts = dedupeChartIDs(kept)

	keptKPIs := p.KPIs[:0]
	for _, k := range p.KPIs {
		col := k.Metric.Column
		if s.IsIdentifier(col) || s.IsDatetime(col) {
			continue
		}
		keptKPIs = append(keptKPIs, k)
	}
	p.KPIs = keptKPIs
	return p
}

// dedupeChartIDs assigns every chart a unique id. Results are keyed by id
// downstream, so a duplicate or empty id would silently drop a sibling chart.
// Duplicates get a deterministic numeric suffix in plan order.
func dedupeChartIDs(charts []plan.Chart) []plan.Chart {
	seen := make(map[string]bool, len(charts))
	for i := range charts {
		base := charts[i].ID
		if base == "" {
			base = fmt.Sprintf("chart_%d", i+1)
		}
		id := base
		for n := 2; seen[id]; n++ {
			id = fmt.Sprintf("%s_%d", base, n)
		}
		charts[i].ID = id
		seen[id] = true
	}
	return charts
}

// ── Stage 5: diversity enforcement ────────────────────────────────────────────

// patterns records which of the five analytical shapes a plan covers.
type patterns struct {
	catDist  bool // categorical distribution (pie/funnel count, or bar/line/area count without hue)
	numByCat bool // numeric vs categorical (bar/line/area/boxplot, non-count)
	numByNum bool // numeric vs numeric (scatter)
	dist     bool // distribution (histogram or boxplot)
	grouped  bool // any chart with a hue
}

func classify(p plan.Plan) patterns {
	var pt patterns
	for _, c := range p.Charts {
		count := c.Y.Aggregation == plan.AggCount
		switch {
		case (c.Type == "pie" || c.Type == "funnel") && count:
			pt.catDist = true
		case isXYChart(c.Type) && count && c.Hue == "":
			pt.catDist = true
		}
		if (isXYChart(c.Type) || c.Type == "boxplot") && !count {
			pt.numByCat = true
		}
		if c.Type == "scatter" {
			pt.numByNum = true
		}
		if c.Type == "histogram" || c.Type == "boxplot" {
			pt.dist = true
		}
		if c.Hue != "" {
			pt.grouped = true
		}
	}
	return pt
}

func enforceDiversity(p plan.Plan, s colschema.Schema) plan.Plan {
	if s.Empty() {
		return p
	}
	// Order matters: the grouped bar covers both numeric-vs-categorical and
	// grouped, so it goes first; each synthesis re-checks what is still absent.
	pt := classify(p)
	if (!pt.numByCat || !pt.grouped) && !hasChart(p, "auto_grouped_bar") {
		if c, ok := synthGroupedBar(p, s); ok {
			p.Charts = append(p.Charts, c)
			pt = classify(p)
		}
	}
	if !pt.catDist && !hasChart(p, "auto_pie_dist") {
		if c, ok := synthPieDist(s); ok {
			p.Charts = append(p.Charts, c)
			pt = classify(p)
		}
	}
	if !pt.numByNum && !hasChart(p, "auto_scatter") {
		if c, ok := synthScatter(s); ok {
			p.Charts = append(p.Charts, c)
			pt = classify(p)
		}
	}
	if !pt.dist && !hasChart(p, "auto_histogram") {
		if c, ok := synthHistogram(p, s); ok {
			p.Charts = append(p.Charts, c)
		}
	}
	return p
}

func hasChart(p plan.Plan, id string) bool {
	for _, c := range p.Charts {
		if c.ID == id {
			return true
		}
	}
	return false
}

// numericPool is the ranked numeric list chart synthesis draws from: the key
// numeric ranking when present, otherwise every numeric column. A schema of
// zero-variance numerics still gets charts that way.
func numericPool(s colschema.Schema) []string {
	if len(s.KeyNumericColumns) > 0 {
		return s.KeyNumericColumns
	}
	return s.Numeric
}

// leastUsedNumeric returns the pooled numeric column used least often as a
// chart y column, ties broken by first-seen order in the ranked list.
// Deterministic so repeated repair runs make identical choices.
func leastUsedNumeric(p plan.Plan, s colschema.Schema, exclude string) string {
	usage := make(map[string]int)
	for _, c := range p.Charts {
		usage[c.Y.Column]++
	}
	best, bestN := "", -1
	for _, col := range numericPool(s) {
		if col == exclude {
			continue
		}
		if bestN == -1 || usage[col] < bestN {
			best, bestN = col, usage[col]
		}
	}
	return best
}

func firstCategorical(s colschema.Schema) string {
	if len(s.KeyCategoricalColumns) > 0 {
		return s.KeyCategoricalColumns[0]
	}
	if len(s.Categorical) > 0 {
		return s.Categorical[0]
	}
	return ""
}

// firstHue returns the first suggested hue column different from x.
func firstHue(s colschema.Schema, x string) string {
	for _, h := range s.SuggestedHueColumns {
		if h != x {
			return h
		}
	}
	return ""
}

func synthGroupedBar(p plan.Plan, s colschema.Schema) (plan.Chart, bool) {
	x := firstCategorical(s)
	y := leastUsedNumeric(p, s, "")
	if x == "" || y == "" {
		return plan.Chart{}, false
	}
	c := plan.Chart{
		ID:   "auto_grouped_bar",
		Type: "bar",
		X:    x,
		Y:    plan.Metric{Column: y, Aggregation: plan.AggMean},
		Hue:  firstHue(s, x),
	}
	c.Title = defaultTitle(c)
	return c, true
}

func synthPieDist(s colschema.Schema) (plan.Chart, bool) {
	x := firstCategorical(s)
	if x == "" {
		return plan.Chart{}, false
	}
	return plan.Chart{
		ID:    "auto_pie_dist",
		Type:  "pie",
		X:     x,
		Y:     plan.Metric{Column: x, Aggregation: plan.AggCount},
		Title: "Distribution of " + prettify(x),
	}, true
}

func synthScatter(s colschema.Schema) (plan.Chart, bool) {
	pool := numericPool(s)
	if len(pool) < 2 {
		return plan.Chart{}, false
	}
	c := plan.Chart{
		ID:   "auto_scatter",
		Type: "scatter",
		X:    pool[0],
		Y:    plan.Metric{Column: pool[1], Aggregation: plan.AggRaw},
	}
	c.Title = defaultTitle(c)
	return c, true
}

func synthHistogram(p plan.Plan, s colschema.Schema) (plan.Chart, bool) {
	y := leastUsedNumeric(p, s, "")
	if y == "" {
		return plan.Chart{}, false
	}
	return plan.Chart{
		ID:    "auto_histogram",
		Type:  "histogram",
		X:     y,
		Y:     plan.Metric{Column: y, Aggregation: plan.AggRaw},
		Title: "Distribution of " + prettify(y),
	}, true
}

// ── Stage 6: y-column rotation ────────────────────────────────────────────────

// maxYUses is the cap on how many bar/line/area charts may share one numeric
// y column before the excess is reassigned.
const maxYUses = 2

func rotateYColumns(p plan.Plan, s colschema.Schema) plan.Plan {
	usage := make(map[string]int)
	for _, c := range p.Charts {
		if isXYChart(c.Type) {
			usage[c.Y.Column]++
		}
	}

	seen := make(map[string]int)
	for i := range p.Charts {
		c := &p.Charts[i]
		if !isXYChart(c.Type) {
			continue // scatter/histogram/boxplot column choice is structural
		}
		seen[c.Y.Column]++
		if seen[c.Y.Column] <= maxYUses {
			continue
		}
		alt := leastUsedAlternative(usage, s, c.Y.Column)
		if alt == "" {
			continue // nothing under the cap; leave the chart alone
		}
		usage[c.Y.Column]--
		seen[c.Y.Column]--
		usage[alt]++
		seen[alt]++
		c.Y.Column = alt
		c.Title = defaultTitle(*c)
	}
	return p
}

// leastUsedAlternative picks the least-used pooled numeric column currently
// used fewer than maxYUses times, ties broken by ranked order.
func leastUsedAlternative(usage map[string]int, s colschema.Schema, current string) string {
	best, bestN := "", -1
	for _, col := range numericPool(s) {
		if col == current || usage[col] >= maxYUses {
			continue
		}
		if bestN == -1 || usage[col] < bestN {
			best, bestN = col, usage[col]
		}
	}
	return best
}

// ── Stage 7: minimum cardinality ──────────────────────────────────────────────

const (
	minKPIs   = 2
	minCharts = 5
	maxCharts = 7
)

// kpiAggSequence is the rotation of aggregations for synthesized KPIs.
var kpiAggSequence = []struct{ label, agg string }{
	{"Average", plan.AggMean},
	{"Total", plan.AggSum},
	{"Maximum", plan.AggMax},
	{"Count", plan.AggCount},
}

func ensureMinimums(p plan.Plan, s colschema.Schema) plan.Plan {
	p = ensureMinKPIs(p, s)
	return ensureMinCharts(p, s)
}

func ensureMinKPIs(p plan.Plan, s colschema.Schema) plan.Plan {
	if len(p.KPIs) >= minKPIs {
		return p
	}
	usedCols := make(map[string]bool)
	for _, k := range p.KPIs {
		usedCols[k.Metric.Column] = true
	}
	i := 0
	for _, col := range numericPool(s) {
		if len(p.KPIs) >= minKPIs {
			break
		}
		if usedCols[col] {
			continue
		}
		entry := kpiAggSequence[i%len(kpiAggSequence)]
		i++
		p.KPIs = append(p.KPIs, plan.KPI{
			Name:   entry.label + " " + prettify(col),
			Metric: plan.Metric{Column: col, Aggregation: entry.agg},
		})
		usedCols[col] = true
	}
	return p
}

func ensureMinCharts(p plan.Plan, s colschema.Schema) plan.Plan {
	if len(p.Charts) >= minCharts || s.Empty() {
		return p
	}
	templates := []func() (plan.Chart, bool){
		func() (plan.Chart, bool) { return synthPieDist(s) },
		func() (plan.Chart, bool) { return synthScatter(s) },
		func() (plan.Chart, bool) { return synthHistogram(p, s) },
		func() (plan.Chart, bool) { return synthGroupedBar(p, s) },
		func() (plan.Chart, bool) { return synthBoxplot(p, s) },
		func() (plan.Chart, bool) { return synthPlain(p, s, "auto_bar", "bar") },
		func() (plan.Chart, bool) { return synthPlain(p, s, "auto_line", "line") },
	}
	for _, tmpl := range templates {
		if len(p.Charts) >= minCharts || len(p.Charts) >= maxCharts {
			break
		}
		c, ok := tmpl()
		if !ok || hasChart(p, c.ID) {
			continue
		}
		p.Charts = append(p.Charts, c)
	}
	return p
}

func synthBoxplot(p plan.Plan, s colschema.Schema) (plan.Chart, bool) {
	x := firstCategorical(s)
	y := leastUsedNumeric(p, s, "")
	if x == "" || y == "" {
		return plan.Chart{}, false
	}
	c := plan.Chart{
		ID:   "auto_boxplot",
		Type: "boxplot",
		X:    x,
		Y:    plan.Metric{Column: y, Aggregation: plan.AggRaw},
	}
	c.Title = defaultTitle(c)
	return c, true
}

func synthPlain(p plan.Plan, s colschema.Schema, id, typ string) (plan.Chart, bool) {
	x := firstCategorical(s)
	y := leastUsedNumeric(p, s, "")
	if x == "" || y == "" {
		return plan.Chart{}, false
	}
	c := plan.Chart{
		ID:   id,
		Type: typ,
		X:    x,
		Y:    plan.Metric{Column: y, Aggregation: plan.AggMean},
	}
	c.Title = defaultTitle(c)
	return c, true
}
