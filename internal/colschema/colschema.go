// Package colschema classifies dataset columns into analytical categories and
// enriches the result with the metadata the planner and engines consume:
// hue candidates, ranked key numeric columns, and derived columns.
package colschema

// Category is the analytical class of a column.
type Category string

const (
	Categorical Category = "categorical"
	Numeric     Category = "numeric"
	Datetime    Category = "datetime"
	Identifier  Category = "identifier"
)

// DerivedColumn records a column materialized during enrichment.
type DerivedColumn struct {
	Name    string `json:"name"`
	Formula string `json:"formula"`
	Kind    string `json:"kind"`
}

// Schema is the column classification consumed by the validator, aggregator,
// and forecaster. The four category lists are pairwise disjoint; columns in
// none of them are unusable. Identifier columns are the do-not-analyze set.
type Schema struct {
	Categorical           []string        `json:"categorical"`
	Numeric               []string        `json:"numeric"`
	Datetime              []string        `json:"datetime"`
	Identifiers           []string        `json:"identifiers"`
	SuggestedHueColumns   []string        `json:"suggested_hue_columns"`
	KeyNumericColumns     []string        `json:"key_numeric_columns"`
	KeyCategoricalColumns []string        `json:"key_categorical_columns"`
	DerivedColumns        []DerivedColumn `json:"derived_columns"`
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// IsIdentifier reports whether col is in the do-not-analyze set.
func (s Schema) IsIdentifier(col string) bool { return contains(s.Identifiers, col) }

// IsDatetime reports whether col is classified as datetime.
func (s Schema) IsDatetime(col string) bool { return contains(s.Datetime, col) }

// IsNumeric reports whether col is classified as numeric.
func (s Schema) IsNumeric(col string) bool { return contains(s.Numeric, col) }

// IsCategorical reports whether col is classified as categorical.
func (s Schema) IsCategorical(col string) bool { return contains(s.Categorical, col) }

// Empty reports whether the schema has no analyzable columns at all; chart
// and KPI synthesis legitimately produce nothing in that case.
func (s Schema) Empty() bool {
	return len(s.Categorical) == 0 && len(s.Numeric) == 0
}

// ApplyHints merges an external reclassification into the schema. Only
// columns the schema already knows are moved; hinted names that match no
// known column are ignored. Identifier hints win over category hints.
func (s *Schema) ApplyHints(categorical, numeric, datetime, identifiers []string) {
	known := func(col string) bool {
		return s.IsCategorical(col) || s.IsNumeric(col) || s.IsDatetime(col) || s.IsIdentifier(col)
	}
	remove := func(list []string, col string) []string {
		out := list[:0]
		for _, c := range list {
			if c != col {
				out = append(out, c)
			}
		}
		return out
	}
	move := func(cols []string, dst *[]string) {
		for _, col := range cols {
			if !known(col) || contains(*dst, col) {
				continue
			}
			s.Categorical = remove(s.Categorical, col)
			s.Numeric = remove(s.Numeric, col)
			s.Datetime = remove(s.Datetime, col)
			s.Identifiers = remove(s.Identifiers, col)
			*dst = append(*dst, col)
		}
	}
	move(categorical, &s.Categorical)
	move(numeric, &s.Numeric)
	move(datetime, &s.Datetime)
	move(identifiers, &s.Identifiers)
	s.dropIdentifiers()
}

// dropIdentifiers removes every identifier column from the analyzable lists.
func (s *Schema) dropIdentifiers() {
	filter := func(list []string) []string {
		out := list[:0]
		for _, c := range list {
			if !s.IsIdentifier(c) {
				out = append(out, c)
			}
		}
		return out
	}
	s.Categorical = filter(s.Categorical)
	s.Numeric = filter(s.Numeric)
	s.Datetime = filter(s.Datetime)
}
