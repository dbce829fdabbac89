package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// tabularExtensions are the file types Load understands.
var tabularExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
}

// Load reads a tabular file (CSV or Excel), applies the cleaning pass, and
// returns the typed dataset.
func Load(path string) (*Dataset, error) {
	var (
		ds  *Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		ds, err = loadCSV(path)
	case ".xlsx", ".xlsm", ".xls":
		ds, err = loadExcel(path)
	default:
		return nil, fmt.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	Clean(ds)
	return ds, nil
}

// FindFile returns the first tabular file in dir, preferring Excel files, in
// lexical order.
func FindFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("dataset: read dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if tabularExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("dataset: no tabular file found in %s", dir)
	}
	sort.Slice(names, func(i, j int) bool {
		ei := strings.ToLower(filepath.Ext(names[i])) != ".csv"
		ej := strings.ToLower(filepath.Ext(names[j])) != ".csv"
		if ei != ej {
			return ei // Excel before CSV
		}
		return names[i] < names[j]
	})
	return filepath.Join(dir, names[0]), nil
}

func loadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset: %s is empty", path)
	}
	return FromRecords(records[0], records[1:]), nil
}

// loadExcel reads the first sheet of an Excel workbook. The first row is the
// header row.
func loadExcel(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("dataset: %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("dataset: read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("dataset: sheet %q is empty", sheets[0])
	}
	return FromRecords(rows[0], rows[1:]), nil
}
