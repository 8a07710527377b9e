package phaseenergy

import "math"

// SummaryLabel is the Phase value of the closing flight summary record.
const SummaryLabel = "Total Flight Summary"

const secondsPerMinute = 60.0

// ReportRecord is one row of the phase report. Phase rows leave
// DrawPerMinute nil; the summary row leaves the rate and share columns nil.
type ReportRecord struct {
	Phase         string   `json:"Phase" yaml:"phase"`
	TotalTime     float64  `json:"TotalTime(s)" yaml:"total_time_s"`
	TotalDraw     float64  `json:"Total Draw(mAh)" yaml:"total_draw_mah"`
	AvgDrawRate   *float64 `json:"AvgDr(mAh/s)" yaml:"avg_draw_rate_mah_per_s"`
	DiffOfAvg     *float64 `json:"DiffofAvg(%)" yaml:"diff_of_avg_pct"`
	PctTime       *float64 `json:"PctTime of Flight(%)" yaml:"pct_time_of_flight"`
	DrawPerMinute *float64 `json:"Total Draw per Minute(mAh)" yaml:"total_draw_per_minute_mah"`
}

// Report is the ordered phase records followed by exactly one summary record.
type Report []ReportRecord

// AssembleReport flattens aggregated energy into report records.
func AssembleReport(e Energy) Report {
	out := make(Report, 0, len(e.Phases)+1)
	for _, p := range e.Phases {
		out = append(out, ReportRecord{
			Phase:       p.Phase.String(),
			TotalTime:   p.TotalTime,
			TotalDraw:   p.TotalDraw,
			AvgDrawRate: p.AvgRate,
			DiffOfAvg:   p.DiffOfAvg,
			PctTime:     floatPtr(p.PctTime),
		})
	}

	summary := ReportRecord{
		Phase:     SummaryLabel,
		TotalTime: e.TotalTime,
		TotalDraw: e.TotalDraw,
	}
	if perMinute := ratio(e.TotalDraw, e.TotalTime/secondsPerMinute); perMinute != nil {
		summary.DrawPerMinute = floatPtr(round2(*perMinute))
	}
	return append(out, summary)
}

// Phases returns the per-phase records.
func (r Report) Phases() []ReportRecord {
	if len(r) == 0 {
		return nil
	}
	return r[:len(r)-1]
}

// Summary returns the closing flight summary record.
func (r Report) Summary() (ReportRecord, bool) {
	if len(r) == 0 || r[len(r)-1].Phase != SummaryLabel {
		return ReportRecord{}, false
	}
	return r[len(r)-1], true
}

// Phase looks up a phase record by display name.
func (r Report) Phase(name string) (ReportRecord, bool) {
	for _, rec := range r.Phases() {
		if rec.Phase == name {
			return rec, true
		}
	}
	return ReportRecord{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
