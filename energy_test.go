package phaseenergy

import (
	"math"
	"strings"
	"testing"
)

func TestAggregateSkipsNonFiniteDraws(t *testing.T) {
	rows := rowsAtOneHertz(4)
	for i := range rows {
		rows[i].CurrentA = 3.6
		rows[i].ChargeDraw = 1
	}
	rows[2].ChargeDraw = math.NaN()
	labels := []Phase{PhaseHovering, PhaseHovering, PhaseHovering, PhaseHovering}
	segments, err := Consolidate(rows, labels, 1)
	if err != nil {
		t.Fatalf("Consolidate error: %v", err)
	}

	e := Aggregate(rows, labels, segments)
	if e.SkippedDraws != 1 {
		t.Fatalf("expected 1 skipped draw, got %d", e.SkippedDraws)
	}
	if e.TotalDraw != 3 {
		t.Fatalf("expected NaN draw to contribute 0, got total %v", e.TotalDraw)
	}
	if e.TotalTime != 4 {
		t.Fatalf("unexpected total time %v", e.TotalTime)
	}
	if e.Phases[0].AvgRate == nil || math.Abs(*e.Phases[0].AvgRate-0.75) > tolerance {
		t.Fatalf("unexpected average rate %v", e.Phases[0].AvgRate)
	}
}

func TestAggregateMeansAreSegmentWeighted(t *testing.T) {
	rows := rowsAtOneHertz(6)
	labels := []Phase{PhaseClimbing, PhaseHovering, PhaseHovering, PhaseHovering, PhaseHovering, PhaseClimbing}
	draws := []float64{4, 1, 1, 1, 1, 2}
	for i := range rows {
		rows[i].ChargeDraw = draws[i]
	}
	segments, err := Consolidate(rows, labels, 1)
	if err != nil {
		t.Fatalf("Consolidate error: %v", err)
	}

	e := Aggregate(rows, labels, segments)
	var climb *PhaseAggregate
	for i := range e.Phases {
		if e.Phases[i].Phase == PhaseClimbing {
			climb = &e.Phases[i]
		}
	}
	if climb == nil {
		t.Fatalf("missing climbing aggregate: %+v", e.Phases)
	}
	if climb.Segments != 2 || climb.TotalTime != 2 || climb.TotalDraw != 6 {
		t.Fatalf("unexpected climbing sums: %+v", climb)
	}
	// rates 4 and 2 average to 3 regardless of segment length
	if climb.AvgRate == nil || *climb.AvgRate != 3 {
		t.Fatalf("unexpected segment mean rate %v", climb.AvgRate)
	}
	// baseline = 10 mAh / 6 s
	if climb.DiffOfAvg == nil || math.Abs(*climb.DiffOfAvg-180) > 1e-9 {
		t.Fatalf("unexpected relative draw %v", climb.DiffOfAvg)
	}
	if climb.PctTime == 0 || math.Abs(climb.PctTime-100.0/3) > 1e-9 {
		t.Fatalf("unexpected pct time %v", climb.PctTime)
	}
}

func TestRatioUnavailable(t *testing.T) {
	if ratio(1, 0) != nil {
		t.Fatal("division by zero must be unavailable")
	}
	if ratio(math.Inf(1), 1) != nil {
		t.Fatal("infinite result must be unavailable")
	}
	if v := ratio(1, 4); v == nil || *v != 0.25 {
		t.Fatalf("unexpected ratio %v", v)
	}
}

func TestBuildPhaseNotesRendersTable(t *testing.T) {
	a, err := Analyze(climbThenCruise(), constantBattery(11, 10), DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	a.FilePath = "flight.ulg"
	notes := BuildPhaseNotes(a)

	for _, want := range []string{
		"Flight: flight.ulg",
		"| Total Flight Summary |",
		"166.67",
		"Non-ground baseline 2.778 mAh/s",
	} {
		if !strings.Contains(notes, want) {
			t.Fatalf("notes missing %q:\n%s", want, notes)
		}
	}
	if BuildPhaseNotes(nil) != "" {
		t.Fatal("nil analysis should render nothing")
	}
}
