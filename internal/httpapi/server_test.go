package httpapi

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"climate-api/internal/config"

	_ "github.com/mattn/go-sqlite3"
)

func newTestServer(t *testing.T) (*httptest.Server, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	metrics := NewMetrics()
	mux := NewMux(db, metrics)
	mux.HandleFunc("GET /api/v1.0/{start}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	srv := NewServer(config.Config{HTTPAddr: ":0"}, mux, metrics)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts, db
}

func mustGetRaw(t *testing.T, client *http.Client, url string) (*http.Response, string) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(b)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := mustGetRaw(t, ts.Client(), ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}

	var got map[string]string
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if got["status"] != "ok" {
		t.Fatalf("body.status=%q want=%q", got["status"], "ok")
	}
}

func TestHealthz_DatabaseClosed(t *testing.T) {
	ts, db := newTestServer(t)
	_ = db.Close()

	resp, _ := mustGetRaw(t, ts.Client(), ts.URL+"/healthz")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestHealthz_MethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	ts, _ := newTestServer(t)

	mustGetRaw(t, ts.Client(), ts.URL+"/api/v1.0/2017-01-01")
	mustGetRaw(t, ts.Client(), ts.URL+"/api/v1.0/2016-01-01")
	mustGetRaw(t, ts.Client(), ts.URL+"/nope")

	resp, body := mustGetRaw(t, ts.Client(), ts.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want=%d", resp.StatusCode, http.StatusOK)
	}

	wants := []string{
		`climate_http_requests_total{method="GET",route="GET /api/v1.0/{start}",status="418"} 2`,
		`climate_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
		`climate_http_request_duration_seconds_count{method="GET",route="GET /api/v1.0/{start}"} 2`,
	}
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\n%s", want, body)
		}
	}
	if strings.Contains(body, "2017-01-01") {
		t.Error("metrics output leaks raw path parameters")
	}
}
