// Package forecast projects numeric trends over time. It pairs datetime
// columns with numeric columns, resamples each pair to a regular period, and
// extends the series with an additive Holt-Winters model, falling back to a
// linear fit when the seasonal model cannot be applied.
package forecast

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/plotline-ai/plotline/internal/colschema"
	"github.com/plotline-ai/plotline/internal/dataset"
)

const (
	horizon        = 6
	minValidPairs  = 6
	minPeriods     = 6
	minSpanDays    = 7
	bandMultiplier = 1.5
	dateFormat     = "2006-01-02"
)

// Result is one forecast series. Dates holds the labels for the full
// timeline, historical periods first; BoundaryIndex is the position where
// the projected periods begin (equal to len(Actual)).
type Result struct {
	ID            string    `json:"id"`
	Column        string    `json:"column"`
	DateColumn    string    `json:"date_column"`
	Period        string    `json:"period"`
	Dates         []string  `json:"dates"`
	Actual        []float64 `json:"actual"`
	Forecast      []float64 `json:"forecast"`
	Lower         []float64 `json:"lower"`
	Upper         []float64 `json:"upper"`
	BoundaryIndex int       `json:"boundary_index"`
}

// forecastKeywords mark a prompt as explicitly asking about the future.
var forecastKeywords = []string{
	"forecast", "predict", "future", "projection", "trend",
	"next", "coming", "expected", "estimate", "will be", "gonna",
}

// IsForecastIntent reports whether the prompt asks a forward-looking
// question.
func IsForecastIntent(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, kw := range forecastKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Run builds forecasts for datetime/numeric column pairs. Up to two datetime
// columns are paired with up to three non-identifier numeric columns each;
// pairs that cannot support a forecast are skipped silently. A prompt with
// explicit forecast intent raises the result cap from one to three.
func Run(ds *dataset.Dataset, s colschema.Schema, prompt string) []Result {
	maxResults := 1
	if IsForecastIntent(prompt) {
		maxResults = 3
	}

	var dateCols []string
	for _, col := range s.Datetime {
		if ds.Has(col) {
			dateCols = append(dateCols, col)
		}
		if len(dateCols) == 2 {
			break
		}
	}
	var numCols []string
	for _, col := range s.Numeric {
		if ds.Has(col) && !s.IsIdentifier(col) {
			numCols = append(numCols, col)
		}
		if len(numCols) == 3 {
			break
		}
	}

	var results []Result
	idx := 0
	for _, dc := range dateCols {
		for _, nc := range numCols {
			if r, ok := forecastPair(ds, dc, nc, idx); ok {
				results = append(results, r)
				idx++
				if len(results) == maxResults {
					return results
				}
			}
		}
	}
	return results
}

func forecastPair(ds *dataset.Dataset, dateCol, numCol string, idx int) (Result, bool) {
	dCol := ds.Column(dateCol)
	nCol := ds.Column(numCol)

	type obs struct {
		t time.Time
		v float64
	}
	var observed []obs
	for i := range dCol {
		t, ok := dataset.AsTime(dCol[i])
		if !ok {
			continue
		}
		v, ok := dataset.AsFloat(nCol[i])
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		observed = append(observed, obs{t, v})
	}
	if len(observed) < minValidPairs {
		return Result{}, false
	}

	sort.Slice(observed, func(i, j int) bool { return observed[i].t.Before(observed[j].t) })
	span := observed[len(observed)-1].t.Sub(observed[0].t)
	if span < minSpanDays*24*time.Hour {
		return Result{}, false
	}
	period := choosePeriod(span)

	// Resample to one mean value per period, in period order.
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	for _, o := range observed {
		p := period.start(o.t)
		sums[p] += o.v
		counts[p]++
	}
	periods := make([]time.Time, 0, len(sums))
	for p := range sums {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })
	if len(periods) < minPeriods {
		return Result{}, false
	}
	series := make([]float64, len(periods))
	for i, p := range periods {
		series[i] = sums[p] / float64(counts[p])
	}

	fitted, projected := modelSeries(series)
	if projected == nil {
		return Result{}, false
	}
	band := bandMultiplier * residualStd(series, fitted)

	r := Result{
		ID:            fmt.Sprintf("forecast_%s_%d", numCol, idx),
		Column:        numCol,
		DateColumn:    dateCol,
		Period:        period.label,
		BoundaryIndex: len(series),
	}
	for _, p := range periods {
		r.Dates = append(r.Dates, p.Format(dateFormat))
	}
	for i := range series {
		r.Actual = append(r.Actual, round2(series[i]))
	}
	next := periods[len(periods)-1]
	for _, v := range projected {
		next = period.advance(next)
		r.Dates = append(r.Dates, next.Format(dateFormat))
		r.Forecast = append(r.Forecast, round2(v))
		r.Lower = append(r.Lower, round2(v-band))
		r.Upper = append(r.Upper, round2(v+band))
	}
	return r, true
}

// modelSeries always attempts the exponential smoothing fit first, with a
// seasonal cycle only when the series is long enough to estimate one; short
// series get the non-seasonal trend model. The linear fit is the failure
// path, taken only when smoothing produces unusable output. Returns a nil
// forecast when neither model applies.
func modelSeries(series []float64) (fitted, forecast []float64) {
	seasonLen := 0
	switch {
	case len(series) >= 24:
		seasonLen = 12
	case len(series) >= 8:
		seasonLen = 4
	}
	if len(series) >= 2 {
		f, fc := fitHoltWinters(series, seasonLen, horizon)
		if allFinite(f) && allFinite(fc) {
			return f, fc
		}
	}
	if f, fc, ok := linearForecast(series, horizon); ok {
		return f, fc
	}
	return nil, nil
}

func allFinite(vals []float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// period defines how timestamps collapse into regular buckets and how the
// timeline extends past the last observation.
type period struct {
	label   string
	start   func(time.Time) time.Time
	advance func(time.Time) time.Time
}

// choosePeriod picks a sampling period from the observed span: quarterly
// past two years, monthly past six months, weekly past a month, daily below
// that.
func choosePeriod(span time.Duration) period {
	days := span.Hours() / 24
	switch {
	case days > 730:
		return period{
			label: "Quarter",
			start: func(t time.Time) time.Time {
				q := (int(t.Month()) - 1) / 3
				return time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
			},
			advance: func(t time.Time) time.Time { return t.AddDate(0, 3, 0) },
		}
	case days > 180:
		return period{
			label: "Month",
			start: func(t time.Time) time.Time {
				return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
			},
			advance: func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
		}
	case days > 30:
		return period{
			label: "Week",
			start: func(t time.Time) time.Time {
				// Weeks begin on Monday.
				offset := (int(t.Weekday()) + 6) % 7
				d := t.AddDate(0, 0, -offset)
				return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
			},
			advance: func(t time.Time) time.Time { return t.AddDate(0, 0, 7) },
		}
	default:
		return period{
			label: "Day",
			start: func(t time.Time) time.Time {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			},
			advance: func(t time.Time) time.Time { return t.AddDate(0, 0, 1) },
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
