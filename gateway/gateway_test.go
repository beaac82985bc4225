package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"cardroom/core"
)

func newTestServer(t *testing.T) (*Server, *core.Node) {
	t.Helper()
	node := core.NewNode(core.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	return NewServer(node, slog.New(slog.NewTextHandler(io.Discard, nil))), node
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	s, _ := newTestServer(t)
	handler := s.Handler()

	if rec := get(t, handler, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	rec := get(t, handler, "/readyz")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d: %s", rec.Code, rec.Body.String())
	}
	var status map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if status["status"] != "ready" {
		t.Fatalf("status = %q, want ready", status["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("metrics body empty")
	}
}

func TestInvariantsEndpoint(t *testing.T) {
	s, node := newTestServer(t)
	if _, err := node.InitializePlayer("plr_a", 1000); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	rec := get(t, s.Handler(), "/invariants")
	if rec.Code != http.StatusOK {
		t.Fatalf("invariants = %d: %s", rec.Code, rec.Body.String())
	}
	var reports []core.InvariantReport
	if err := json.Unmarshal(rec.Body.Bytes(), &reports); err != nil {
		t.Fatalf("decode reports: %v", err)
	}
	if len(reports) == 0 {
		t.Fatalf("no invariant reports")
	}
	for _, report := range reports {
		if !report.Valid {
			t.Fatalf("invariant %s failed: %s", report.Invariant, report.Details)
		}
	}
}
