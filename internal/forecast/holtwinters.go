package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// holtWinters fits an additive Holt-Winters model and returns fitted values
// plus a forecast of the requested horizon. seasonLen of 0 disables the
// seasonal component (Holt's linear trend).
type holtWinters struct {
	alpha, beta, gamma float64
	seasonLen          int
}

// smoothingGrid is the parameter grid searched during fitting. The grid is
// small and fixed so a refit on the same series always picks the same model.
var smoothingGrid = []float64{0.1, 0.3, 0.5, 0.7, 0.9}

// fitHoltWinters searches the smoothing grid for the parameter set with the
// lowest in-sample squared error and returns fitted values and forecasts.
func fitHoltWinters(series []float64, seasonLen, horizon int) (fitted, forecast []float64) {
	best := holtWinters{alpha: 0.5, beta: 0.1, seasonLen: seasonLen}
	bestSSE := math.Inf(1)
	for _, a := range smoothingGrid {
		for _, b := range smoothingGrid {
			gammas := smoothingGrid
			if seasonLen == 0 {
				gammas = []float64{0}
			}
			for _, g := range gammas {
				m := holtWinters{alpha: a, beta: b, gamma: g, seasonLen: seasonLen}
				f, _ := m.run(series, 0)
				sse := 0.0
				for i, v := range f {
					d := series[i] - v
					sse += d * d
				}
				if sse < bestSSE {
					bestSSE = sse
					best = m
				}
			}
		}
	}
	return best.run(series, horizon)
}

// run smooths the series and extends it by horizon steps. The level is
// initialized from the first season's mean, the trend from the averaged
// season-over-season change, and the seasonal terms from first-season
// deviations.
func (m holtWinters) run(series []float64, horizon int) (fitted, forecast []float64) {
	n := len(series)
	s := m.seasonLen

	var level, trend float64
	seasonal := make([]float64, s)
	if s > 0 && n >= 2*s {
		level = stat.Mean(series[:s], nil)
		for i := 0; i < s; i++ {
			trend += (series[s+i] - series[i]) / float64(s)
		}
		trend /= float64(s)
		for i := 0; i < s; i++ {
			seasonal[i] = series[i] - level
		}
	} else {
		s = 0
		level = series[0]
		trend = series[1] - series[0]
	}

	fitted = make([]float64, n)
	for i, v := range series {
		var seas float64
		if s > 0 {
			seas = seasonal[i%s]
		}
		fitted[i] = level + trend + seas

		prevLevel := level
		level = m.alpha*(v-seas) + (1-m.alpha)*(level+trend)
		trend = m.beta*(level-prevLevel) + (1-m.beta)*trend
		if s > 0 {
			seasonal[i%s] = m.gamma*(v-level) + (1-m.gamma)*seas
		}
	}

	forecast = make([]float64, horizon)
	for h := 1; h <= horizon; h++ {
		var seas float64
		if s > 0 {
			seas = seasonal[(n+h-1)%s]
		}
		forecast[h-1] = level + float64(h)*trend + seas
	}
	return fitted, forecast
}

// linearForecast is the fallback model: ordinary least squares over the
// series index. Returns false when fewer than three finite points remain.
func linearForecast(series []float64, horizon int) (fitted, forecast []float64, ok bool) {
	var xs, ys []float64
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, v)
	}
	if len(xs) < 3 {
		return nil, nil, false
	}
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)

	fitted = make([]float64, len(series))
	for i := range series {
		fitted[i] = intercept + slope*float64(i)
	}
	forecast = make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		forecast[h] = intercept + slope*float64(len(series)+h)
	}
	return fitted, forecast, true
}

// residualStd is the population standard deviation of actual minus fitted,
// used to size the confidence band.
func residualStd(series, fitted []float64) float64 {
	var resid []float64
	for i := range series {
		d := series[i] - fitted[i]
		if !math.IsNaN(d) && !math.IsInf(d, 0) {
			resid = append(resid, d)
		}
	}
	if len(resid) == 0 {
		return 0
	}
	mean := stat.Mean(resid, nil)
	var ss float64
	for _, d := range resid {
		ss += (d - mean) * (d - mean)
	}
	return math.Sqrt(ss / float64(len(resid)))
}
