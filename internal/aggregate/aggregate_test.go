package aggregate

import (
	"fmt"
	"math"
	"testing"

	"github.com/plotline-ai/plotline/internal/colschema"
	"github.com/plotline-ai/plotline/internal/dataset"
	"github.com/plotline-ai/plotline/internal/plan"
)

func testDataset() *dataset.Dataset {
	ds := dataset.New(6)
	ds.AddColumn("region", []any{"north", "north", "south", "south", "east", nil})
	ds.AddColumn("status", []any{"open", "closed", "open", "closed", "open", "open"})
	ds.AddColumn("revenue", []any{10.0, 20.0, 30.0, 40.0, 50.0, 60.0})
	ds.AddColumn("cost", []any{1.0, 2.0, 3.0, nil, 5.0, 6.0})
	return ds
}

func TestQuantileLinearInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 100}
	tests := []struct {
		q    float64
		want float64
	}{
		{0.25, 2.25},
		{0.5, 3.5},
		{0.75, 4.75},
		{0, 1},
		{1, 100},
	}
	for _, tt := range tests {
		if got := quantile(sorted, tt.q); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("quantile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
}

func TestBoxplotFiveNumberSummary(t *testing.T) {
	ds := dataset.New(6)
	ds.AddColumn("grp", []any{"a", "a", "a", "a", "a", "a"})
	ds.AddColumn("val", []any{1.0, 2.0, 3.0, 4.0, 5.0, 100.0})

	res := boxplotChart(ds, plan.Chart{ID: "b", Type: "boxplot", X: "grp", Y: plan.Metric{Column: "val"}}, colschema.Schema{})
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if len(res.Boxplot.Boxes) != 1 {
		t.Fatalf("got %d boxes, want 1", len(res.Boxplot.Boxes))
	}
	// Whiskers clip to the data range below and to the 1.5 IQR fence above.
	want := [5]float64{1, 2.25, 3.5, 4.75, 8.5}
	if res.Boxplot.Boxes[0] != want {
		t.Errorf("box = %v, want %v", res.Boxplot.Boxes[0], want)
	}
	if len(res.Boxplot.Outliers) != 1 || res.Boxplot.Outliers[0] != [2]float64{0, 100} {
		t.Errorf("outliers = %v, want [[0 100]]", res.Boxplot.Outliers)
	}
}

func TestBoxplotSkipsThinCategories(t *testing.T) {
	ds := dataset.New(3)
	ds.AddColumn("grp", []any{"a", "a", "b"})
	ds.AddColumn("val", []any{1.0, 2.0, 3.0})

	res := boxplotChart(ds, plan.Chart{X: "grp", Y: plan.Metric{Column: "val"}}, colschema.Schema{})
	if len(res.Boxplot.Categories) != 1 || res.Boxplot.Categories[0] != "a" {
		t.Errorf("categories = %v, want only the one with two observations", res.Boxplot.Categories)
	}
}

func TestHistogramBinCount(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{9, 5},     // sqrt rounds to 3, clamped up
		{100, 10},  // sqrt exactly 10
		{400, 20},  // sqrt exactly 20
		{2000, 20}, // clamped down
	}
	for _, tt := range tests {
		if got := defaultBinCount(tt.n); got != tt.want {
			t.Errorf("defaultBinCount(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestHistogram(t *testing.T) {
	vals := make([]any, 100)
	for i := range vals {
		vals[i] = float64(i)
	}
	ds := dataset.New(100)
	ds.AddColumn("val", vals)

	res := histogramChart(ds, plan.Chart{X: "val", Y: plan.Metric{Column: "val", Aggregation: plan.AggRaw}}, colschema.Schema{})
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if len(res.Histogram.Counts) != 10 {
		t.Fatalf("got %d bins, want 10", len(res.Histogram.Counts))
	}
	total := 0
	for _, n := range res.Histogram.Counts {
		total += n
	}
	if total != 100 {
		t.Errorf("bin counts sum to %d, want every value binned", total)
	}
	// The maximum lands in the last bin, not off the end.
	if res.Histogram.Counts[9] != 10 {
		t.Errorf("last bin count = %d, want 10", res.Histogram.Counts[9])
	}
}

func TestHistogramHueSharesEdges(t *testing.T) {
	ds := dataset.New(8)
	ds.AddColumn("val", []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0})
	ds.AddColumn("grp", []any{"a", "a", "a", "a", "b", "b", "b", "b"})

	res := histogramChart(ds, plan.Chart{Y: plan.Metric{Column: "val"}, Hue: "grp"}, colschema.Schema{})
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	for hue, counts := range res.Histogram.HueCounts {
		if len(counts) != len(res.Histogram.Counts) {
			t.Errorf("hue %q has %d bins, want %d (shared edges)", hue, len(counts), len(res.Histogram.Counts))
		}
	}
	suma, sumb := 0, 0
	for i := range res.Histogram.HueCounts["a"] {
		suma += res.Histogram.HueCounts["a"][i]
		sumb += res.Histogram.HueCounts["b"][i]
	}
	if suma != 4 || sumb != 4 {
		t.Errorf("subgroup totals = %d, %d, want 4 and 4", suma, sumb)
	}
}

func TestHistogramDegenerate(t *testing.T) {
	ds := dataset.New(3)
	ds.AddColumn("val", []any{5.0, 5.0, 5.0})
	res := histogramChart(ds, plan.Chart{Y: plan.Metric{Column: "val"}}, colschema.Schema{})
	if res.Error != "" {
		t.Fatalf("constant column should widen the range, got error: %s", res.Error)
	}
	total := 0
	for _, n := range res.Histogram.Counts {
		total += n
	}
	if total != 3 {
		t.Errorf("bin counts sum to %d, want 3", total)
	}
}

func TestGroupReduce(t *testing.T) {
	ds := testDataset()
	rows := groupReduce(ds, "region", "", plan.Metric{Column: "revenue", Aggregation: plan.AggSum})

	want := []GroupRow{
		{Key: "north", Value: 30},
		{Key: "south", Value: 70},
		{Key: "east", Value: 50},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row[%d] = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestGroupReduceCountIgnoresY(t *testing.T) {
	ds := testDataset()
	rows := groupReduce(ds, "region", "", plan.Metric{Column: "cost", Aggregation: plan.AggCount})
	// south has a null cost but count is over rows, not parsed values.
	for _, r := range rows {
		if r.Key == "south" && r.Value != 2 {
			t.Errorf("south count = %v, want 2", r.Value)
		}
	}
}

func TestScrub(t *testing.T) {
	if got := scrub(math.NaN()); got != nil {
		t.Errorf("scrub(NaN) = %v, want nil", *got)
	}
	if got := scrub(math.Inf(1)); got != nil {
		t.Errorf("scrub(+Inf) = %v, want nil", *got)
	}
	if got := scrub(1.23456); got == nil || *got != 1.23 {
		t.Errorf("scrub(1.23456) = %v, want 1.23", got)
	}
}

func TestFunnelSortsAndTruncates(t *testing.T) {
	n := 24
	grp := make([]any, n)
	val := make([]any, n)
	for i := 0; i < n; i++ {
		grp[i] = fmt.Sprintf("stage_%02d", i%12)
		val[i] = float64(i % 12)
	}
	ds := dataset.New(n)
	ds.AddColumn("stage", grp)
	ds.AddColumn("val", val)

	res := funnelChart(ds, plan.Chart{X: "stage", Y: plan.Metric{Column: "val", Aggregation: plan.AggSum}}, colschema.Schema{})
	if len(res.Rows) != maxFunnelGroups {
		t.Fatalf("got %d rows, want %d", len(res.Rows), maxFunnelGroups)
	}
	for i := 1; i < len(res.Rows); i++ {
		if res.Rows[i].Value > res.Rows[i-1].Value {
			t.Errorf("rows not sorted descending at %d: %v > %v", i, res.Rows[i].Value, res.Rows[i-1].Value)
		}
	}
}

func TestGaugeDefaultMax(t *testing.T) {
	ds := dataset.New(3)
	ds.AddColumn("val", []any{10.0, 20.0, 30.0})
	res := gaugeChart(ds, plan.Chart{Y: plan.Metric{Column: "val", Aggregation: plan.AggMean}}, colschema.Schema{})
	if res.Gauge == nil || res.Gauge.Value == nil {
		t.Fatalf("gauge missing: %+v", res)
	}
	if *res.Gauge.Value != 20 {
		t.Errorf("gauge value = %v, want 20", *res.Gauge.Value)
	}
	if res.Gauge.Max != 36 {
		t.Errorf("gauge max = %v, want observed max with headroom", res.Gauge.Max)
	}
}

func TestHeatmapRequiresHue(t *testing.T) {
	ds := testDataset()
	res := heatmapChart(ds, plan.Chart{X: "region", Y: plan.Metric{Column: "revenue"}}, colschema.Schema{})
	if res.Error == "" {
		t.Fatal("expected error for heatmap without hue")
	}
}

func TestHeatmapCells(t *testing.T) {
	ds := testDataset()
	res := heatmapChart(ds, plan.Chart{X: "region", Y: plan.Metric{Column: "region", Aggregation: plan.AggCount}, Hue: "status"}, colschema.Schema{})
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	wantCells := len(res.Heatmap.X) * len(res.Heatmap.Y)
	if len(res.Heatmap.Cells) != wantCells {
		t.Errorf("got %d cells, want %d (every pair, zeros included)", len(res.Heatmap.Cells), wantCells)
	}
}

func TestTreemapNestsUnderHue(t *testing.T) {
	ds := testDataset()
	res := treemapChart(ds, plan.Chart{X: "region", Y: plan.Metric{Column: "revenue", Aggregation: plan.AggSum}, Hue: "status"}, colschema.Schema{})
	if len(res.Tree) == 0 {
		t.Fatal("empty tree")
	}
	for _, node := range res.Tree {
		if len(node.Children) == 0 {
			t.Errorf("node %q has no children", node.Name)
			continue
		}
		sum := 0.0
		for _, ch := range node.Children {
			sum += ch.Value
		}
		if math.Abs(node.Value-sum) > 1e-9 {
			t.Errorf("node %q value %v != children sum %v", node.Name, node.Value, sum)
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	ds := testDataset()
	p := plan.Plan{
		KPIs: []plan.KPI{
			{Name: "Total Revenue", Metric: plan.Metric{Column: "revenue", Aggregation: plan.AggSum}},
			{Name: "Ghost", Metric: plan.Metric{Column: "missing", Aggregation: plan.AggSum}},
		},
		Charts: []plan.Chart{
			{ID: "good", Type: "bar", X: "region", Y: plan.Metric{Column: "revenue", Aggregation: plan.AggSum}},
			{ID: "bad", Type: "bar", X: "missing", Y: plan.Metric{Column: "revenue", Aggregation: plan.AggSum}},
		},
	}
	out := Run(ds, p, colschema.Schema{})

	if out.KPIs[0].Value == nil || *out.KPIs[0].Value != 210 {
		t.Errorf("KPI value = %v, want 210", out.KPIs[0].Value)
	}
	if out.KPIs[1].Error == "" || out.KPIs[1].Value != nil {
		t.Errorf("missing-column KPI should degrade: %+v", out.KPIs[1])
	}
	if out.Results["good"].Error != "" {
		t.Errorf("good chart degraded: %s", out.Results["good"].Error)
	}
	if out.Results["bad"].Error == "" {
		t.Errorf("bad chart did not degrade: %+v", out.Results["bad"])
	}
}

func TestScatterPairsOnly(t *testing.T) {
	ds := testDataset()
	res := scatterChart(ds, plan.Chart{X: "revenue", Y: plan.Metric{Column: "cost", Aggregation: plan.AggRaw}}, colschema.Schema{})
	// The row with a null cost contributes no point.
	if len(res.Points) != 5 {
		t.Errorf("got %d points, want 5", len(res.Points))
	}
}
