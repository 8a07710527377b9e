package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	phaseenergy "github.com/flight-assurance/phase-energy"
	"github.com/flight-assurance/phase-energy/internal/archive"
	"github.com/flight-assurance/phase-energy/internal/config"
	"github.com/flight-assurance/phase-energy/ulog/ulogtest"
)

func hoverFlight() []byte {
	var motion []ulogtest.MotionRow
	var battery []ulogtest.BatteryRow
	for i := 0; i < 11; i++ {
		ts := uint64(i) * 1_000_000
		motion = append(motion, ulogtest.MotionRow{Timestamp: ts, Z: -10})
		battery = append(battery, ulogtest.BatteryRow{Timestamp: ts, VoltageV: 16, CurrentA: 10})
	}
	return ulogtest.FlightLog(motion, battery)
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	store := archive.Open(filepath.Join(dir, "reports.db"))
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default().Server
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.RateLimit = 0

	ts := httptest.NewServer(New(cfg, phaseenergy.DefaultConfig(), store).Handler())
	t.Cleanup(ts.Close)
	return ts, cfg.UploadDir
}

func uploadRequest(t *testing.T, url, field, filename string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(body); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	} else if err := mw.WriteField("note", "no file here"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url+"/upload", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestUploadRejections(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name     string
		field    string
		filename string
		body     []byte
		status   int
		message  string
	}{
		{name: "missing file", status: http.StatusBadRequest, message: "No file uploaded"},
		{name: "wrong extension", field: "file", filename: "flight.csv", body: hoverFlight(), status: http.StatusBadRequest, message: "Invalid file format"},
		{name: "not a ulog", field: "file", filename: "flight.ulg", body: []byte("definitely not a log file"), status: http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, tc.field, tc.filename, tc.body))
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			msg := decodeError(t, resp)
			if tc.message != "" && msg != tc.message {
				t.Fatalf("error = %q, want %q", msg, tc.message)
			}
			if msg == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}

func TestUploadAnalysesAndArchives(t *testing.T) {
	ts, uploadDir := newTestServer(t)

	resp, err := http.DefaultClient.Do(uploadRequest(t, ts.URL, "file", "hover.ulg", hoverFlight()))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var report phaseenergy.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	summary, ok := report.Summary()
	if !ok {
		t.Fatalf("report missing summary: %+v", report)
	}
	if summary.TotalTime != 10 {
		t.Fatalf("unexpected flight time %v", summary.TotalTime)
	}
	hover, ok := report.Phase("Hovering")
	if !ok || hover.PctTime == nil || *hover.PctTime != 100 {
		t.Fatalf("unexpected hover record %+v", hover)
	}

	id := resp.Header.Get("X-Report-ID")
	if id == "" {
		t.Fatal("expected X-Report-ID header")
	}

	saved, err := os.ReadDir(uploadDir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(saved) != 1 || !strings.HasSuffix(saved[0].Name(), "_hover.ulg") {
		t.Fatalf("unexpected saved uploads: %v", saved)
	}

	got, err := http.Get(ts.URL + "/reports/" + id)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	defer got.Body.Close()
	if got.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", got.StatusCode)
	}
	var archived phaseenergy.Report
	if err := json.NewDecoder(got.Body).Decode(&archived); err != nil {
		t.Fatalf("decode archived report: %v", err)
	}
	if len(archived) != len(report) {
		t.Fatalf("archived report has %d records, want %d", len(archived), len(report))
	}
}

func TestGetUnknownReport(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/reports/does-not-exist")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
	}
}

func TestCORSAllowsLocalhostPorts(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, tc := range []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:3000", true},
		{"http://localhost:5173", true},
		{"http://evil.example", false},
	} {
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/upload", nil)
		req.Header.Set("Origin", tc.origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("preflight: %v", err)
		}
		resp.Body.Close()

		got := resp.Header.Get("Access-Control-Allow-Origin")
		if tc.allowed && got != tc.origin {
			t.Fatalf("origin %s not allowed, header %q", tc.origin, got)
		}
		if !tc.allowed && got != "" {
			t.Fatalf("origin %s unexpectedly allowed", tc.origin)
		}
	}
}
