package dataset

import (
	"strconv"
	"strings"
	"time"
)

// invalidValues are string cells treated as missing after normalization.
var invalidValues = map[string]bool{
	"--": true, "-": true, "": true, "none": true, "null": true,
}

// coerceThreshold is the fraction of a column's rows that must parse before
// the whole column is converted to that type. Conservative: a column stays
// textual unless the dominant interpretation is unambiguous.
const coerceThreshold = 0.7

// timeLayouts are the timestamp formats the cleaner recognises, tried in order.
var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-01-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Clean normalizes string cells and coerces each column to datetime or
// numeric when more than 70% of its rows parse as that type. Rows are never
// dropped; unparseable cells in a coerced column become nil.
func Clean(d *Dataset) {
	for ci := range d.cols {
		col := d.cols[ci]

		allStrings := true
		for _, v := range col {
			if _, ok := v.(string); v != nil && !ok {
				allStrings = false
				break
			}
		}
		if !allStrings {
			continue
		}

		// Normalize: trim, lowercase, map placeholder values to missing.
		for ri, v := range col {
			s, ok := v.(string)
			if !ok {
				continue
			}
			s = strings.ToLower(strings.TrimSpace(s))
			if invalidValues[s] {
				col[ri] = nil
			} else {
				col[ri] = s
			}
		}

		total := len(col)
		if total == 0 {
			continue
		}

		// Datetime first: a column of dates parses as neither numeric nor
		// useful text, and date columns drive the forecasting engine.
		parsedTimes := make([]any, total)
		nTimes := 0
		for ri, v := range col {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if t, ok := parseTime(s); ok {
				parsedTimes[ri] = t
				nTimes++
			}
		}
		if float64(nTimes)/float64(total) > coerceThreshold {
			d.cols[ci] = parsedTimes
			continue
		}

		parsedNums := make([]any, total)
		nNums := 0
		for ri, v := range col {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
				parsedNums[ri] = f
				nNums++
			}
		}
		if float64(nNums)/float64(total) > coerceThreshold {
			d.cols[ci] = parsedNums
		}
	}
}
