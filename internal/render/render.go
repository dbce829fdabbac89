// Package render produces output from an assembled dashboard report.
package render

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/plotline-ai/plotline/internal/pipeline"
)

// RenderJSON produces a pretty-printed JSON representation of the report.
// The output round-trips through json.Unmarshal back to an equal Report.
func RenderJSON(report *pipeline.Report) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("render: nil report")
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// RenderMarkdown produces a Markdown summary of the report: KPI values, the
// chart inventory with per-chart status, and forecast coverage. Suitable for
// terminal output.
func RenderMarkdown(report *pipeline.Report) string {
	if report == nil {
		return ""
	}
	var sb strings.Builder

	kpis, charts, types := report.Plan.Summary()
	sb.WriteString("## Dashboard\n\n")
	fmt.Fprintf(&sb, "**KPIs:** %d | **Charts:** %d (%s)\n\n", kpis, charts, strings.Join(types, ", "))

	if len(report.KPIs) > 0 {
		sb.WriteString("## KPIs\n\n")
		sb.WriteString("| Name | Value |\n")
		sb.WriteString("|---|---|\n")
		for _, k := range report.KPIs {
			val := "n/a"
			if k.Value != nil {
				val = fmt.Sprintf("%g", *k.Value)
			} else if k.Error != "" {
				val = mdEscape(k.Error)
			}
			fmt.Fprintf(&sb, "| %s | %s |\n", mdEscape(k.Name), val)
		}
		sb.WriteString("\n")
	}

	if len(report.Plan.Charts) > 0 {
		sb.WriteString("## Charts\n\n")
		sb.WriteString("| ID | Type | Title | Status |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, c := range report.Plan.Charts {
			status := "ok"
			if r, ok := report.Charts[c.ID]; ok && r.Error != "" {
				status = mdEscape(r.Error)
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", c.ID, c.Type, mdEscape(c.Title), status)
		}
		sb.WriteString("\n")
	}

	if len(report.Forecasts) > 0 {
		sb.WriteString("## Forecasts\n\n")
		for _, f := range report.Forecasts {
			fmt.Fprintf(&sb, "- `%s`: %s over %s (%d periods observed, %d projected)\n",
				f.ID, mdEscape(f.Column), f.Period, f.BoundaryIndex, len(f.Forecast))
		}
		sb.WriteString("\n")
	}

	if len(report.Notes) > 0 {
		sb.WriteString("## Notes\n\n")
		notes := append([]string(nil), report.Notes...)
		sort.Strings(notes)
		for _, n := range notes {
			fmt.Fprintf(&sb, "- %s\n", mdEscape(n))
		}
	}

	return sb.String()
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
