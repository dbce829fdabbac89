package colschema

import (
	"strings"
	"time"

	"github.com/plotline-ai/plotline/internal/dataset"
)

// ColumnProfile holds per-column statistics used by classification and by the
// reasoning-service prompt.
type ColumnProfile struct {
	Name        string   `json:"name"`
	Dtype       string   `json:"dtype"`
	Unique      int      `json:"unique"`
	Nulls       int      `json:"nulls"`
	Samples     []string `json:"sample_values"`
	UniqueRatio float64  `json:"unique_ratio"`
}

// Profile computes statistics for every column of the dataset.
func Profile(ds *dataset.Dataset) []ColumnProfile {
	rows := ds.NumRows()
	if rows == 0 {
		rows = 1
	}
	var out []ColumnProfile
	for _, name := range ds.Columns() {
		col := ds.Column(name)
		seen := make(map[string]bool)
		nulls := 0
		var samples []string
		dtype := "string"
		for _, v := range col {
			if v == nil {
				nulls++
				continue
			}
			switch v.(type) {
			case float64:
				dtype = "float64"
			case time.Time:
				dtype = "datetime"
			}
			lbl := dataset.Label(v)
			if !seen[lbl] {
				seen[lbl] = true
			}
			if len(samples) < 5 {
				samples = append(samples, lbl)
			}
		}
		out = append(out, ColumnProfile{
			Name:        name,
			Dtype:       dtype,
			Unique:      len(seen),
			Nulls:       nulls,
			Samples:     samples,
			UniqueRatio: float64(len(seen)) / float64(rows),
		})
	}
	return out
}

// idNameKeywords mark columns whose name alone suggests a row key.
var idNameKeywords = []string{
	" id", "_id", "id ", "key", "index", "serial", "number", "no.",
	"report_id", "project_id", "review_id", "row", "record",
}

// looksLikeIdentifier applies the identifier heuristic: an id-like name, or a
// "code" column with uniqueness ratio above 0.8, combined with near-unique
// values. The code rule is a known approximation: a legitimate business code
// with high cardinality will be swallowed by it.
func looksLikeIdentifier(p ColumnProfile) bool {
	lower := strings.ToLower(p.Name)
	isIDName := lower == "id"
	for _, kw := range idNameKeywords {
		if strings.Contains(lower, kw) {
			isIDName = true
			break
		}
	}
	isCode := (strings.TrimSpace(lower) == "code" || strings.HasSuffix(lower, "_code")) &&
		p.UniqueRatio > 0.8
	nearlyUnique := p.UniqueRatio > 0.85

	return (isIDName || isCode) && nearlyUnique
}

// Classify derives a schema from column profiles using the cleaned cell
// types: float columns are numeric, time columns are datetime, everything
// else is categorical. Identifier detection runs on top and wins.
func Classify(ds *dataset.Dataset) Schema {
	var s Schema
	for _, p := range Profile(ds) {
		if looksLikeIdentifier(p) {
			s.Identifiers = append(s.Identifiers, p.Name)
			continue
		}
		switch p.Dtype {
		case "float64":
			s.Numeric = append(s.Numeric, p.Name)
		case "datetime":
			s.Datetime = append(s.Datetime, p.Name)
		default:
			s.Categorical = append(s.Categorical, p.Name)
		}
	}
	return s
}

// HardenIdentifiers re-applies the identifier heuristic to a schema produced
// elsewhere (typically by the reasoning service, which misses some row keys)
// and strips identifiers out of the analyzable category lists.
func HardenIdentifiers(s *Schema, profiles []ColumnProfile) {
	for _, p := range profiles {
		if looksLikeIdentifier(p) && !s.IsIdentifier(p.Name) {
			s.Identifiers = append(s.Identifiers, p.Name)
		}
	}
	s.dropIdentifiers()
}
