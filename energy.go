package phaseenergy

import (
	"math"
	"sort"
)

// Energy is the charge attribution for one flight.
type Energy struct {
	TotalTime float64  `json:"total_time_s"`
	TotalDraw float64  `json:"total_draw_mah"`
	AvgRate   *float64 `json:"avg_rate_mah_per_s"`

	NonGroundTime float64  `json:"non_ground_time_s"`
	NonGroundDraw float64  `json:"non_ground_draw_mah"`
	BaselineRate  *float64 `json:"baseline_rate_mah_per_s"`

	Segments []SegmentEnergy  `json:"segments"`
	Phases   []PhaseAggregate `json:"phases"`

	// UncoveredTime and UncoveredDraw belong to rows whose run was too short
	// to become a segment.
	UncoveredTime float64 `json:"uncovered_time_s"`
	UncoveredDraw float64 `json:"uncovered_draw_mah"`

	SkippedDraws int `json:"skipped_draws"`
}

// SegmentEnergy is one segment with its draw figures.
type SegmentEnergy struct {
	PhaseSegment
	Draw      float64  `json:"draw_mah"`
	AvgRate   *float64 `json:"avg_rate_mah_per_s"`
	DiffOfAvg *float64 `json:"diff_of_avg_pct"`
	PctTime   *float64 `json:"pct_time"`
}

// PhaseAggregate sums durations and draws across all segments of one phase
// and averages the per-segment rates (each segment weighs the same).
type PhaseAggregate struct {
	Phase     Phase    `json:"phase"`
	Segments  int      `json:"segments"`
	TotalTime float64  `json:"total_time_s"`
	TotalDraw float64  `json:"total_draw_mah"`
	AvgRate   *float64 `json:"avg_rate_mah_per_s"`
	DiffOfAvg *float64 `json:"diff_of_avg_pct"`
	PctTime   float64  `json:"pct_time"`
}

// Aggregate attributes charge draw to segments and phases. rows and labels
// are the consolidated rows; segments index into them.
func Aggregate(rows []AlignedRow, labels []Phase, segments []PhaseSegment) Energy {
	var e Energy
	covered := make([]bool, len(rows))

	for i, r := range rows {
		draw, ok := finiteDraw(r)
		if !ok {
			e.SkippedDraws++
		}
		e.TotalTime += r.TimeDelta
		e.TotalDraw += draw
		if i < len(labels) && labels[i] != PhaseGround {
			e.NonGroundTime += r.TimeDelta
			e.NonGroundDraw += draw
		}
	}
	e.AvgRate = ratio(e.TotalDraw, e.TotalTime)
	e.BaselineRate = ratio(e.NonGroundDraw, e.NonGroundTime)

	e.Segments = make([]SegmentEnergy, 0, len(segments))
	for _, seg := range segments {
		se := SegmentEnergy{PhaseSegment: seg}
		for i := seg.FirstRow; i < seg.EndRow && i < len(rows); i++ {
			draw, _ := finiteDraw(rows[i])
			se.Draw += draw
			covered[i] = true
		}
		se.AvgRate = ratio(se.Draw, seg.Duration)
		if se.AvgRate != nil && e.BaselineRate != nil {
			se.DiffOfAvg = ratio(*se.AvgRate*100, *e.BaselineRate)
		}
		se.PctTime = ratio(seg.Duration*100, e.TotalTime)
		e.Segments = append(e.Segments, se)
	}

	for i, r := range rows {
		if covered[i] {
			continue
		}
		draw, _ := finiteDraw(r)
		e.UncoveredTime += r.TimeDelta
		e.UncoveredDraw += draw
	}

	e.Phases = aggregatePhases(e.Segments)
	return e
}

func aggregatePhases(segments []SegmentEnergy) []PhaseAggregate {
	byPhase := make(map[Phase]*PhaseAggregate)
	rates := make(map[Phase][]float64)
	diffs := make(map[Phase][]float64)
	var order []Phase

	for _, s := range segments {
		agg, ok := byPhase[s.Phase]
		if !ok {
			agg = &PhaseAggregate{Phase: s.Phase}
			byPhase[s.Phase] = agg
			order = append(order, s.Phase)
		}
		agg.Segments++
		agg.TotalTime += s.Duration
		agg.TotalDraw += s.Draw
		if s.PctTime != nil {
			agg.PctTime += *s.PctTime
		}
		if s.AvgRate != nil {
			rates[s.Phase] = append(rates[s.Phase], *s.AvgRate)
		}
		if s.DiffOfAvg != nil {
			diffs[s.Phase] = append(diffs[s.Phase], *s.DiffOfAvg)
		}
	}

	// grouped output is keyed by display name
	sort.Slice(order, func(i, j int) bool { return order[i].String() < order[j].String() })

	out := make([]PhaseAggregate, 0, len(order))
	for _, p := range order {
		agg := byPhase[p]
		agg.AvgRate = mean(rates[p])
		agg.DiffOfAvg = mean(diffs[p])
		out = append(out, *agg)
	}
	return out
}

func finiteDraw(r AlignedRow) (float64, bool) {
	if math.IsNaN(r.ChargeDraw) || math.IsInf(r.ChargeDraw, 0) {
		return 0, false
	}
	return r.ChargeDraw, true
}

// ratio returns num/den, or nil when the result would not be a finite number.
func ratio(num, den float64) *float64 {
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return nil
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return floatPtr(sum / float64(len(values)))
}

func floatPtr(v float64) *float64 {
	return &v
}
