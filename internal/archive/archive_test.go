package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	phaseenergy "github.com/flight-assurance/phase-energy"
)

func sampleReport() phaseenergy.Report {
	rate := 2.5
	return phaseenergy.Report{
		{Phase: "Hovering", TotalTime: 10, TotalDraw: 25, AvgDrawRate: &rate},
		{Phase: phaseenergy.SummaryLabel, TotalTime: 10, TotalDraw: 25},
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	store := Open(filepath.Join(t.TempDir(), "reports.db"))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	id, err := store.Save(ctx, Entry{SourceName: "flight.ulg", SourceSHA256: "abc", Report: sampleReport()})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.SourceName != "flight.ulg" || got.SourceSHA256 != "abc" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at not stored")
	}
	if len(got.Report) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got.Report))
	}
	hover, ok := got.Report.Phase("Hovering")
	if !ok || hover.AvgDrawRate == nil || *hover.AvgDrawRate != 2.5 {
		t.Fatalf("hover record lost: %+v", hover)
	}
	summary, ok := got.Report.Summary()
	if !ok || summary.AvgDrawRate != nil {
		t.Fatalf("null rate must survive storage: %+v", summary)
	}
}

func TestGetUnknownID(t *testing.T) {
	store := Open(filepath.Join(t.TempDir(), "reports.db"))
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := Open(filepath.Join(t.TempDir(), "reports.db"))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.ulg", "b.ulg", "c.ulg"} {
		if _, err := store.Save(ctx, Entry{
			SourceName: name,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			Report:     sampleReport(),
		}); err != nil {
			t.Fatalf("Save(%s) error: %v", name, err)
		}
	}

	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(entries))
	}
	if entries[0].SourceName != "c.ulg" || entries[1].SourceName != "b.ulg" {
		t.Fatalf("unexpected order: %s, %s", entries[0].SourceName, entries[1].SourceName)
	}
}

func TestSaveRejectsDuplicateID(t *testing.T) {
	store := Open(filepath.Join(t.TempDir(), "reports.db"))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	if _, err := store.Save(ctx, Entry{ID: "fixed", SourceName: "a.ulg"}); err != nil {
		t.Fatalf("first Save error: %v", err)
	}
	if _, err := store.Save(ctx, Entry{ID: "fixed", SourceName: "b.ulg"}); err == nil {
		t.Fatal("expected primary key violation")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}
