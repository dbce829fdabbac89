package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/plotline-ai/plotline/internal/session"
)

func writeFixtureCSV(t *testing.T) string {
	t.Helper()
	var rows string
	for i := 0; i < 12; i++ {
		rows += fmt.Sprintf("ord-%03d,%s,2024-%02d-15,%d,%d\n",
			i, []string{"north", "south", "east"}[i%3], i+1, 100+i*10, 40+i*5)
	}
	path := filepath.Join(t.TempDir(), "orders.csv")
	content := "order_id,region,order_date,revenue,cost\n" + rows
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func prepareSession(t *testing.T) *session.Session {
	t.Helper()
	path := writeFixtureCSV(t)
	ds, schema, profiles, err := Prepare(path)
	if err != nil {
		t.Fatalf("Prepare error: %v", err)
	}
	store := session.NewStore()
	id := store.Create(path, ds, schema, profiles)
	sess, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	return sess
}

func TestPrepare(t *testing.T) {
	sess := prepareSession(t)

	if sess.Dataset.NumRows() != 12 {
		t.Errorf("rows = %d, want 12", sess.Dataset.NumRows())
	}
	if !sess.Schema.IsIdentifier("order_id") {
		t.Errorf("order_id not an identifier: %+v", sess.Schema)
	}
	if !sess.Schema.IsNumeric("revenue") || !sess.Schema.IsDatetime("order_date") {
		t.Errorf("schema misclassified: %+v", sess.Schema)
	}
}

func TestRunOffline(t *testing.T) {
	sess := prepareSession(t)

	planJSON := `{"kpis": [{"name": "Total Revenue", "metric": {"column": "revenue", "aggregation": "sum"}}],
		"charts": [{"id": "c1", "type": "bar", "x": "region", "y": {"column": "revenue", "aggregation": "sum"}, "title": "Revenue by Region"}]}`
	report, err := Run(context.Background(), sess, "forecast revenue", Options{PlanJSON: planJSON})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if len(report.Plan.KPIs) < 2 {
		t.Errorf("got %d KPIs after repair, want at least 2", len(report.Plan.KPIs))
	}
	if len(report.Plan.Charts) < 5 {
		t.Errorf("got %d charts after repair, want at least 5", len(report.Plan.Charts))
	}
	for _, c := range report.Plan.Charts {
		if _, ok := report.Charts[c.ID]; !ok {
			t.Errorf("no result computed for chart %s", c.ID)
		}
	}
	if len(report.Forecasts) == 0 {
		t.Errorf("no forecasts for a year of monthly data with forecast intent")
	}
	if len(report.Notes) != 0 {
		t.Errorf("unexpected degradation notes: %v", report.Notes)
	}
}

func TestRunDegradesBadPlan(t *testing.T) {
	sess := prepareSession(t)

	report, err := Run(context.Background(), sess, "overview", Options{
		PlanJSON:     "this is not a plan",
		SkipForecast: true,
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(report.Notes) == 0 {
		t.Errorf("expected a degradation note for the unusable plan")
	}
	// A fully synthesized dashboard still comes back.
	if len(report.Plan.Charts) < 5 || len(report.Plan.KPIs) < 2 {
		t.Errorf("synthesized dashboard too small: %d charts, %d KPIs",
			len(report.Plan.Charts), len(report.Plan.KPIs))
	}
	if len(report.Forecasts) != 0 {
		t.Errorf("forecasts produced despite SkipForecast")
	}
}

func TestRunRejectsEmptyDataset(t *testing.T) {
	sess := &session.Session{}
	if _, err := Run(context.Background(), sess, "overview", Options{}); err == nil {
		t.Fatal("expected error for session without a dataset")
	}
}
