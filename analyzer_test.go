package phaseenergy

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/flight-assurance/phase-energy/ulog/ulogtest"
)

const tolerance = 1e-9

func secondsToTicks(s float64) uint64 {
	return uint64(s * 1_000_000)
}

func constantBattery(n int, current float64) []BatterySample {
	out := make([]BatterySample, n)
	for i := range out {
		out[i] = BatterySample{Timestamp: secondsToTicks(float64(i)), VoltageV: 16, CurrentA: current}
	}
	return out
}

// climbThenCruise is 11 motion rows at 1 Hz: rows 1-5 climb, rows 6-10 cruise.
// Row 0 only anchors the clock.
func climbThenCruise() []MotionSample {
	out := make([]MotionSample, 0, 11)
	for i := 0; i <= 10; i++ {
		s := MotionSample{Timestamp: secondsToTicks(float64(i))}
		if i <= 5 {
			s.VZ = -1
			s.Z = -float64(i) * 2
		} else {
			s.VX = 5
			s.Z = -10
		}
		out = append(out, s)
	}
	return out
}

func TestAnalyzeAllGroundFlight(t *testing.T) {
	motion := make([]MotionSample, 10)
	for i := range motion {
		motion[i] = MotionSample{Timestamp: secondsToTicks(float64(i))}
	}

	a, err := Analyze(motion, constantBattery(10, 5), DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	phases := a.Report.Phases()
	if len(phases) != 1 || phases[0].Phase != "On the Ground" {
		t.Fatalf("expected a single ground phase, got %+v", phases)
	}
	if phases[0].PctTime == nil || math.Abs(*phases[0].PctTime-100) > tolerance {
		t.Fatalf("expected 100%% time share, got %v", phases[0].PctTime)
	}
	if phases[0].DiffOfAvg != nil {
		t.Fatalf("relative draw must be unavailable without non-ground time, got %v", *phases[0].DiffOfAvg)
	}
	if a.Energy.BaselineRate != nil {
		t.Fatalf("baseline must be unavailable, got %v", *a.Energy.BaselineRate)
	}
	for _, rec := range a.Report {
		for _, v := range []*float64{rec.AvgDrawRate, rec.DiffOfAvg, rec.PctTime, rec.DrawPerMinute} {
			if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
				t.Fatalf("non-finite value leaked into report: %+v", rec)
			}
		}
	}
}

func TestAnalyzeClimbThenCruise(t *testing.T) {
	a, err := Analyze(climbThenCruise(), constantBattery(11, 10), DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	wantDraw := 10 * 5 / 3.6
	for _, name := range []string{"Climbing", "Cruising"} {
		rec, ok := a.Report.Phase(name)
		if !ok {
			t.Fatalf("missing %s phase in %+v", name, a.Report)
		}
		if math.Abs(rec.TotalTime-5) > tolerance {
			t.Fatalf("%s duration = %v, want 5", name, rec.TotalTime)
		}
		if math.Abs(rec.TotalDraw-wantDraw) > 1e-6 {
			t.Fatalf("%s draw = %v, want %v", name, rec.TotalDraw, wantDraw)
		}
		if rec.DiffOfAvg == nil || math.Abs(*rec.DiffOfAvg-100) > 1e-6 {
			t.Fatalf("%s should draw at the baseline, got %v", name, rec.DiffOfAvg)
		}
	}
	if len(a.Report) != 3 {
		t.Fatalf("expected 2 phases plus summary, got %d records", len(a.Report))
	}
	if a.Report[0].Phase != "Climbing" || a.Report[1].Phase != "Cruising" {
		t.Fatalf("phases must be ordered by name: %q, %q", a.Report[0].Phase, a.Report[1].Phase)
	}

	summary, ok := a.Report.Summary()
	if !ok {
		t.Fatal("missing summary record")
	}
	if summary.Phase != SummaryLabel {
		t.Fatalf("unexpected summary label %q", summary.Phase)
	}
	if math.Abs(summary.TotalTime-10) > tolerance {
		t.Fatalf("summary duration = %v, want 10", summary.TotalTime)
	}
	if math.Abs(summary.TotalDraw-2*wantDraw) > 1e-6 {
		t.Fatalf("summary draw = %v, want %v", summary.TotalDraw, 2*wantDraw)
	}
	if summary.DrawPerMinute == nil || *summary.DrawPerMinute != 166.67 {
		t.Fatalf("unexpected draw per minute: %v", summary.DrawPerMinute)
	}
}

func TestAnalyzeStrayRowLeavesGap(t *testing.T) {
	motion := make([]MotionSample, 0, 12)
	for i := 0; i <= 11; i++ {
		s := MotionSample{Timestamp: secondsToTicks(float64(i)), Z: -20}
		if i == 6 {
			// one noisy descending reading, half a second after the previous sample
			s.Timestamp = secondsToTicks(5.5)
			s.VZ = 0.5
		}
		motion = append(motion, s)
	}
	battery := constantBattery(12, 6)

	a, err := Analyze(motion, battery, DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if _, ok := a.Report.Phase("Descending"); ok {
		t.Fatalf("stray descending row must not become a phase: %+v", a.Report)
	}
	hover, ok := a.Report.Phase("Hovering")
	if !ok {
		t.Fatalf("missing hovering phase: %+v", a.Report)
	}
	if math.Abs(hover.TotalTime-10.5) > tolerance {
		t.Fatalf("hover duration = %v, want 10.5 (stray half second excluded)", hover.TotalTime)
	}
	if len(a.Energy.Segments) != 2 {
		t.Fatalf("expected the stray row to split hovering into 2 segments, got %d", len(a.Energy.Segments))
	}
	if math.Abs(a.Energy.UncoveredTime-0.5) > tolerance {
		t.Fatalf("uncovered time = %v, want 0.5", a.Energy.UncoveredTime)
	}
}

func TestAnalyzeConservesEnergy(t *testing.T) {
	motion := climbThenCruise()
	motion[3].VZ = 0.4
	battery := []BatterySample{
		{Timestamp: 0, CurrentA: 3},
		{Timestamp: 2_300_000, CurrentA: 12},
		{Timestamp: 4_100_000, CurrentA: 18},
		{Timestamp: 7_700_000, CurrentA: 9},
	}

	a, err := Analyze(motion, battery, DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	var rowSum float64
	for _, r := range a.Rows {
		rowSum += r.ChargeDraw
	}
	if math.Abs(rowSum-a.Energy.TotalDraw) > 1e-9 {
		t.Fatalf("row draws %v != flight total %v", rowSum, a.Energy.TotalDraw)
	}

	var phaseSum float64
	for _, p := range a.Energy.Phases {
		phaseSum += p.TotalDraw
	}
	if math.Abs(phaseSum+a.Energy.UncoveredDraw-a.Energy.TotalDraw) > 1e-9 {
		t.Fatalf("phase draws %v + uncovered %v != total %v", phaseSum, a.Energy.UncoveredDraw, a.Energy.TotalDraw)
	}
}

func TestAnalyzeSortsOutOfOrderSamples(t *testing.T) {
	motion := climbThenCruise()
	motion[2], motion[3] = motion[3], motion[2]

	a, err := Analyze(motion, constantBattery(11, 10), DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if a.SurvivingRows != 10 {
		t.Fatalf("expected 10 surviving rows after sorting, got %d", a.SurvivingRows)
	}
	if len(a.Warnings) == 0 || !strings.Contains(a.Warnings[0], "out of order") {
		t.Fatalf("expected reorder warning, got %v", a.Warnings)
	}
}

func TestAnalyzePreconditions(t *testing.T) {
	if _, err := Analyze(nil, constantBattery(2, 1), DefaultConfig()); !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries for empty motion, got %v", err)
	}
	if _, err := Analyze(climbThenCruise(), nil, DefaultConfig()); !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries for empty battery, got %v", err)
	}
	single := []MotionSample{{Timestamp: 1}}
	if _, err := Analyze(single, constantBattery(2, 1), DefaultConfig()); !errors.Is(err, ErrNoIntervals) {
		t.Fatalf("expected ErrNoIntervals, got %v", err)
	}
	bad := DefaultConfig()
	bad.MinSegmentDuration = -1
	if _, err := Analyze(climbThenCruise(), constantBattery(2, 1), bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestAnalyzeZeroConfigUsesDefaults(t *testing.T) {
	a, err := Analyze(climbThenCruise(), constantBattery(11, 10), Config{})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if a.Thresholds != DefaultThresholds() || a.MinSegmentDuration != DefaultMinSegmentDuration {
		t.Fatalf("zero config should fall back to defaults, got %+v / %v", a.Thresholds, a.MinSegmentDuration)
	}
}

func TestReportJSONUsesOriginalFieldNames(t *testing.T) {
	a, err := Analyze(climbThenCruise(), constantBattery(11, 10), DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	data, err := json.Marshal(a.Report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	keys := []string{"Phase", "TotalTime(s)", "Total Draw(mAh)", "AvgDr(mAh/s)", "DiffofAvg(%)", "PctTime of Flight(%)", "Total Draw per Minute(mAh)"}
	for _, rec := range decoded {
		for _, k := range keys {
			if _, ok := rec[k]; !ok {
				t.Fatalf("record %v missing key %q", rec, k)
			}
		}
	}
	last := decoded[len(decoded)-1]
	if last["Phase"] != SummaryLabel || last["AvgDr(mAh/s)"] != nil {
		t.Fatalf("unexpected summary record: %v", last)
	}
}

func TestAnalyzeFileReadsULog(t *testing.T) {
	var motion []ulogtest.MotionRow
	for _, s := range climbThenCruise() {
		motion = append(motion, ulogtest.MotionRow{
			Timestamp: s.Timestamp + 50_000_000,
			VX:        float32(s.VX),
			VZ:        float32(s.VZ),
			Z:         float32(s.Z),
		})
	}
	var battery []ulogtest.BatteryRow
	for _, s := range constantBattery(11, 10) {
		battery = append(battery, ulogtest.BatteryRow{Timestamp: s.Timestamp + 50_200_000, VoltageV: 16, CurrentA: 10})
	}

	path := filepath.Join(t.TempDir(), "flight.ulg")
	if err := os.WriteFile(path, ulogtest.FlightLog(motion, battery), 0o644); err != nil {
		t.Fatalf("write ulog: %v", err)
	}

	a, err := AnalyzeFile(path, DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeFile error: %v", err)
	}
	if a.FilePath != path {
		t.Fatalf("unexpected file path %q", a.FilePath)
	}
	if _, ok := a.Report.Phase("Cruising"); !ok {
		t.Fatalf("expected cruising phase, got %+v", a.Report)
	}
	if !strings.Contains(a.Notes, "Detailed Discharge Analysis by Flight Phase") {
		t.Fatalf("notes missing phase table:\n%s", a.Notes)
	}
}

func TestAnalyzeLogMissingField(t *testing.T) {
	data := ulogtest.NewBuilder(0).
		Format("vehicle_local_position:uint64_t timestamp;float vx;float vy;float z;").
		Format(ulogtest.BatteryStatusFormat).
		AddLogged(0, 0, "vehicle_local_position").
		AddLogged(0, 1, "battery_status").
		Bytes()

	_, err := AnalyzeBytes(data, "broken.ulg", DefaultConfig())
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}
