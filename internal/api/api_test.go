package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/plotline-ai/plotline/internal/llm"
	"github.com/plotline-ai/plotline/internal/pipeline"
	"github.com/plotline-ai/plotline/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// blockProviders keeps tests offline regardless of the environment.
func blockProviders(t *testing.T) {
	t.Helper()
	orig := llm.NewProvider
	llm.NewProvider = func(providerName, model string) (llm.Provider, error) {
		return nil, errors.New("no provider in tests")
	}
	t.Cleanup(func() { llm.NewProvider = orig })
}

func testServer(t *testing.T) *Server {
	t.Helper()
	blockProviders(t)
	return NewServer(session.NewStore(), pipeline.Options{})
}

func fixtureCSV(t *testing.T) string {
	t.Helper()
	content := "region,revenue\nnorth,10\nnorth,20\nsouth,30\nsouth,40\neast,50\n"
	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := doJSON(t, testServer(t), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestDatasetAndDashboard(t *testing.T) {
	srv := testServer(t)
	path := fixtureCSV(t)

	w := doJSON(t, srv, http.MethodPost, "/datasets", map[string]string{"path": path})
	if w.Code != http.StatusCreated {
		t.Fatalf("create dataset status = %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		SessionID string `json:"session_id"`
		Rows      int    `json:"rows"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.SessionID == "" || created.Rows != 5 {
		t.Fatalf("created = %+v", created)
	}

	w = doJSON(t, srv, http.MethodPost, "/dashboard", map[string]string{
		"session_id": created.SessionID,
		"prompt":     "revenue by region",
		"plan":       `{"kpis": [], "charts": [{"id": "c1", "type": "bar", "x": "region", "y": {"column": "revenue", "aggregation": "sum"}}]}`,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, body %s", w.Code, w.Body.String())
	}
	var dash struct {
		Report  pipeline.Report `json:"report"`
		Summary string          `json:"summary"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if len(dash.Report.Plan.Charts) < 5 {
		t.Errorf("got %d charts, want the repaired minimum", len(dash.Report.Plan.Charts))
	}
	if dash.Summary == "" {
		t.Error("empty summary")
	}

	// The turn was recorded: the session list still has it and a second
	// request succeeds.
	w = doJSON(t, srv, http.MethodGet, "/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sessions status = %d", w.Code)
	}
	var listed struct {
		Sessions []string `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(listed.Sessions) != 1 {
		t.Errorf("sessions = %v, want one", listed.Sessions)
	}
}

func TestDashboardUnknownSession(t *testing.T) {
	w := doJSON(t, testServer(t), http.MethodPost, "/dashboard", map[string]string{
		"session_id": "ghost",
		"prompt":     "anything",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDatasetBadPath(t *testing.T) {
	w := doJSON(t, testServer(t), http.MethodPost, "/datasets", map[string]string{"path": "/nonexistent/file.csv"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	srv := testServer(t)
	path := fixtureCSV(t)

	w := doJSON(t, srv, http.MethodPost, "/datasets", map[string]string{"path": path})
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = doJSON(t, srv, http.MethodDelete, "/sessions/"+created.SessionID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", w.Code)
	}
	w = doJSON(t, srv, http.MethodPost, "/dashboard", map[string]string{
		"session_id": created.SessionID, "prompt": "x",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", w.Code)
	}
}
