// Package pipeline runs the full dashboard flow for one request: plan the
// analysis, validate and repair the plan, aggregate every chart, and attach
// forecasts. Each stage isolates its failures; a request only fails outright
// when the dataset itself is unusable.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/plotline-ai/plotline/internal/aggregate"
	"github.com/plotline-ai/plotline/internal/colschema"
	"github.com/plotline-ai/plotline/internal/dataset"
	"github.com/plotline-ai/plotline/internal/forecast"
	"github.com/plotline-ai/plotline/internal/llm"
	"github.com/plotline-ai/plotline/internal/plan"
	"github.com/plotline-ai/plotline/internal/repair"
	"github.com/plotline-ai/plotline/internal/session"
)

// Report is the complete dashboard output for one request.
type Report struct {
	Plan      plan.Plan                   `json:"plan"`
	KPIs      []aggregate.KPIValue        `json:"kpis"`
	Charts    map[string]aggregate.Result `json:"charts"`
	Forecasts []forecast.Result           `json:"forecasts,omitempty"`
	Schema    colschema.Schema            `json:"schema"`
	Notes     []string                    `json:"notes,omitempty"`
}

// Options configures one pipeline run.
type Options struct {
	LLM llm.Options
	// PlanJSON, when set, bypasses the reasoning service and parses the given
	// plan text directly. Used by the CLI for offline runs and by tests.
	PlanJSON string
	// SkipForecast disables trend projection entirely.
	SkipForecast bool
}

// Prepare loads, cleans, profiles, and classifies a dataset file. This is the
// one stage that can fail the whole request.
func Prepare(path string) (*dataset.Dataset, colschema.Schema, []colschema.ColumnProfile, error) {
	ds, err := dataset.Load(path)
	if err != nil {
		return nil, colschema.Schema{}, nil, fmt.Errorf("pipeline: load dataset: %w", err)
	}
	profiles := colschema.Profile(ds)
	s := colschema.Classify(ds)
	colschema.HardenIdentifiers(&s, profiles)
	colschema.Enrich(ds, &s)
	return ds, s, profiles, nil
}

// RefineSchema asks the reasoning service to reclassify ambiguous columns
// and merges the answer into the session schema. Failures are logged and
// ignored; the heuristic classification stands on its own.
func RefineSchema(ctx context.Context, sess *session.Session, opts llm.Options) {
	hints, err := llm.ClassifyColumns(ctx, sess.Profiles, opts)
	if err != nil {
		log.Printf("pipeline: column classification skipped: %v", err)
		return
	}
	sess.Schema.ApplyHints(hints.Categorical, hints.Numeric, hints.Datetime, hints.Identifiers)
}

// Run executes the dashboard flow against a prepared session. The returned
// report always has KPIs and charts; planner failures degrade to a fully
// synthesized plan rather than an error.
func Run(ctx context.Context, sess *session.Session, prompt string, opts Options) (*Report, error) {
	if sess.Dataset == nil || sess.Dataset.NumRows() == 0 {
		return nil, fmt.Errorf("pipeline: session has no usable dataset")
	}
	if sess.Schema.Empty() {
		return nil, fmt.Errorf("pipeline: no analyzable columns in dataset")
	}

	report := &Report{Schema: sess.Schema}

	p, note := requestPlan(ctx, sess, prompt, opts)
	if note != "" {
		log.Printf("pipeline: %s", note)
		report.Notes = append(report.Notes, note)
	}
	p = repair.Repair(p, sess.Schema)
	report.Plan = p

	kpis, charts, types := p.Summary()
	log.Printf("pipeline: plan has %d kpis, %d charts (%s)", kpis, charts, strings.Join(types, ", "))

	out := aggregate.Run(sess.Dataset, p, sess.Schema)
	report.KPIs = out.KPIs
	report.Charts = out.Results
	for id, r := range out.Results {
		if r.Error != "" {
			log.Printf("pipeline: chart %s degraded: %s", id, r.Error)
		}
	}

	if !opts.SkipForecast {
		report.Forecasts = forecast.Run(sess.Dataset, sess.Schema, prompt)
	}
	return report, nil
}

// requestPlan obtains a plan from the configured source. An empty plan with
// a note means the repair engine will synthesize everything.
func requestPlan(ctx context.Context, sess *session.Session, prompt string, opts Options) (plan.Plan, string) {
	if opts.PlanJSON != "" {
		p, err := plan.Parse(opts.PlanJSON)
		if err != nil {
			return plan.Plan{}, fmt.Sprintf("provided plan unusable (%v); synthesizing", err)
		}
		return p, ""
	}

	var history []string
	for _, m := range sess.History {
		history = append(history, m.Role+": "+m.Content)
	}
	p, err := llm.RequestPlan(ctx, prompt, sess.Schema, sess.Profiles, history, opts.LLM)
	if err != nil {
		return plan.Plan{}, fmt.Sprintf("planner unavailable (%v); synthesizing", err)
	}
	return p, ""
}
