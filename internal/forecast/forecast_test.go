package forecast

import (
	"reflect"
	"testing"
	"time"

	"github.com/plotline-ai/plotline/internal/colschema"
	"github.com/plotline-ai/plotline/internal/dataset"
)

func TestIsForecastIntent(t *testing.T) {
	tests := []struct {
		prompt string
		want   bool
	}{
		{"forecast revenue for next quarter", true},
		{"What will sales be in the coming months?", true},
		{"Predict churn", true},
		{"show me revenue by region", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsForecastIntent(tt.prompt); got != tt.want {
			t.Errorf("IsForecastIntent(%q) = %v, want %v", tt.prompt, got, tt.want)
		}
	}
}

func TestChoosePeriod(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		span time.Duration
		want string
	}{
		{800 * day, "Quarter"},
		{365 * day, "Month"},
		{60 * day, "Week"},
		{10 * day, "Day"},
	}
	for _, tt := range tests {
		if got := choosePeriod(tt.span).label; got != tt.want {
			t.Errorf("choosePeriod(%v) = %q, want %q", tt.span, got, tt.want)
		}
	}
}

func TestWeekStartsMonday(t *testing.T) {
	p := choosePeriod(60 * 24 * time.Hour)
	// 2024-06-12 is a Wednesday; its week starts Monday 2024-06-10.
	got := p.start(time.Date(2024, 6, 12, 15, 30, 0, 0, time.UTC))
	want := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("week start = %v, want %v", got, want)
	}
}

// monthlyDataset builds n months of strictly increasing values starting
// January 2023.
func monthlyDataset(n int) *dataset.Dataset {
	dates := make([]any, n)
	vals := make([]any, n)
	for i := 0; i < n; i++ {
		dates[i] = time.Date(2023, time.Month(1+i%12), 15, 0, 0, 0, 0, time.UTC).AddDate(i/12, 0, 0)
		vals[i] = 100.0 + 10.0*float64(i)
	}
	ds := dataset.New(n)
	ds.AddColumn("order_date", dates)
	ds.AddColumn("revenue", vals)
	return ds
}

func TestRunMonthlyTrend(t *testing.T) {
	ds := monthlyDataset(24)
	s := colschema.Schema{Datetime: []string{"order_date"}, Numeric: []string{"revenue"}}

	results := Run(ds, s, "forecast revenue")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]

	if r.ID != "forecast_revenue_0" {
		t.Errorf("id = %q, want forecast_revenue_0", r.ID)
	}
	if r.Period != "Month" {
		t.Errorf("period = %q, want Month", r.Period)
	}
	if r.BoundaryIndex != 24 || len(r.Actual) != 24 {
		t.Errorf("boundary = %d with %d actuals, want 24", r.BoundaryIndex, len(r.Actual))
	}
	if len(r.Forecast) != horizon || len(r.Dates) != 24+horizon {
		t.Errorf("got %d forecasts over %d dates, want %d over %d", len(r.Forecast), len(r.Dates), horizon, 24+horizon)
	}
	if r.Dates[0] != "2023-01-01" {
		t.Errorf("first period = %q, want 2023-01-01", r.Dates[0])
	}
	if r.Dates[24] != "2025-01-01" {
		t.Errorf("first projected period = %q, want 2025-01-01", r.Dates[24])
	}

	for i := range r.Forecast {
		if r.Lower[i] > r.Forecast[i] || r.Forecast[i] > r.Upper[i] {
			t.Errorf("band inverted at %d: [%v, %v, %v]", i, r.Lower[i], r.Forecast[i], r.Upper[i])
		}
	}
	// The series rises 10 per month; the projection must sit well above the
	// historical average.
	var actualMean, forecastMean float64
	for _, v := range r.Actual {
		actualMean += v / float64(len(r.Actual))
	}
	for _, v := range r.Forecast {
		forecastMean += v / float64(len(r.Forecast))
	}
	if forecastMean <= actualMean {
		t.Errorf("forecast mean %v does not continue the upward trend past actual mean %v", forecastMean, actualMean)
	}
}

func TestRunShortSeriesTrend(t *testing.T) {
	// Seven points two days apart: too short for any seasonal cycle, so the
	// non-seasonal smoothing model projects the trend.
	n := 7
	dates := make([]any, n)
	vals := make([]any, n)
	for i := 0; i < n; i++ {
		dates[i] = time.Date(2024, 3, 1+2*i, 0, 0, 0, 0, time.UTC)
		vals[i] = float64(5 * i)
	}
	ds := dataset.New(n)
	ds.AddColumn("day", dates)
	ds.AddColumn("output", vals)
	s := colschema.Schema{Datetime: []string{"day"}, Numeric: []string{"output"}}

	results := Run(ds, s, "predict output")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Period != "Day" {
		t.Errorf("period = %q, want Day", r.Period)
	}
	for i := 1; i < len(r.Forecast); i++ {
		if r.Forecast[i] <= r.Forecast[i-1] {
			t.Errorf("projection not increasing at %d: %v", i, r.Forecast)
		}
	}
}

func TestModelSeriesShortSeriesSmoothes(t *testing.T) {
	// Below eight points the model is still exponential smoothing, just
	// without a seasonal component; the linear fit is only the failure path.
	series := []float64{10, 12, 11, 15, 14, 18, 17}

	wantFit, wantFc := fitHoltWinters(series, 0, horizon)
	gotFit, gotFc := modelSeries(series)

	if !reflect.DeepEqual(gotFit, wantFit) || !reflect.DeepEqual(gotFc, wantFc) {
		t.Errorf("modelSeries = (%v, %v), want non-seasonal smoothing (%v, %v)",
			gotFit, gotFc, wantFit, wantFc)
	}
}

func TestRunSkipsInsufficientData(t *testing.T) {
	// Four points: below the minimum pair count.
	dates := []any{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	ds := dataset.New(4)
	ds.AddColumn("dt", dates)
	ds.AddColumn("v", []any{1.0, 2.0, 3.0, 4.0})
	s := colschema.Schema{Datetime: []string{"dt"}, Numeric: []string{"v"}}

	if results := Run(ds, s, "forecast"); len(results) != 0 {
		t.Errorf("got %d results for a 4-point series, want none", len(results))
	}
}

func TestRunSkipsNarrowSpan(t *testing.T) {
	// Eight points inside five days: span below the weekly minimum.
	dates := make([]any, 8)
	vals := make([]any, 8)
	for i := range dates {
		dates[i] = time.Date(2024, 1, 1, i*12, 0, 0, 0, time.UTC)
		vals[i] = float64(i)
	}
	ds := dataset.New(8)
	ds.AddColumn("dt", dates)
	ds.AddColumn("v", vals)
	s := colschema.Schema{Datetime: []string{"dt"}, Numeric: []string{"v"}}

	if results := Run(ds, s, "forecast"); len(results) != 0 {
		t.Errorf("got %d results for a narrow span, want none", len(results))
	}
}

func TestRunCapsWithoutIntent(t *testing.T) {
	ds := monthlyDataset(24)
	vals := make([]any, 24)
	for i := range vals {
		vals[i] = 50.0 + float64(i)
	}
	ds.AddColumn("cost", vals)
	s := colschema.Schema{Datetime: []string{"order_date"}, Numeric: []string{"revenue", "cost"}}

	if got := len(Run(ds, s, "show me an overview")); got != 1 {
		t.Errorf("got %d results without forecast intent, want 1", got)
	}
	if got := len(Run(ds, s, "forecast everything")); got != 2 {
		t.Errorf("got %d results with forecast intent, want 2", got)
	}
}

func TestRunSkipsIdentifierColumns(t *testing.T) {
	ds := monthlyDataset(24)
	s := colschema.Schema{
		Datetime:    []string{"order_date"},
		Numeric:     []string{"revenue"},
		Identifiers: []string{"revenue"},
	}
	if results := Run(ds, s, "forecast"); len(results) != 0 {
		t.Errorf("identifier column was forecast: %d results", len(results))
	}
}
