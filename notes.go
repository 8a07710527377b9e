package phaseenergy

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

var noteColumns = []string{
	"Phase",
	"TotalTime(s)",
	"Total Draw(mAh)",
	"AvgDr(mAh/s)",
	"DiffofAvg(%)",
	"PctTime of Flight(%)",
	"Total Draw per Minute(mAh)",
}

// BuildPhaseNotes renders the analysis as a terminal summary with the report table.
func BuildPhaseNotes(a *Analysis) string {
	if a == nil {
		return ""
	}

	var b strings.Builder

	if a.FilePath != "" {
		fmt.Fprintf(&b, "Flight: %s\n", a.FilePath)
	}
	fmt.Fprintf(
		&b,
		"Samples %s motion / %s battery | %s intervals analysed | Duration %s\n",
		humanize.Comma(int64(a.MotionSamples)),
		humanize.Comma(int64(a.BatterySamples)),
		humanize.Comma(int64(a.SurvivingRows)),
		formatDuration(a.Energy.TotalTime),
	)
	t := a.Thresholds
	fmt.Fprintf(
		&b,
		"Thresholds ground_vel %.2f | cruise_vel %.2f | altitude_min %.1f | climb_vz %.2f | descend_vz %.2f | min segment %.1fs\n",
		t.GroundVel, t.CruiseVel, t.AltitudeMin, t.ClimbVZ, t.DescendVZ, a.MinSegmentDuration,
	)
	if a.Energy.BaselineRate != nil {
		fmt.Fprintf(&b, "Non-ground baseline %.3f mAh/s over %s\n", *a.Energy.BaselineRate, formatDuration(a.Energy.NonGroundTime))
	} else {
		b.WriteString("Non-ground baseline unavailable (no airborne intervals)\n")
	}

	b.WriteString("\nDetailed Discharge Analysis by Flight Phase:\n")
	b.WriteString(renderTable(a.Report))

	if a.Energy.UncoveredTime > 0 {
		fmt.Fprintf(
			&b,
			"\n%s of short label flicker (%s mAh) fell outside every segment.\n",
			formatDuration(a.Energy.UncoveredTime),
			humanize.FormatFloat("#,###.##", a.Energy.UncoveredDraw),
		)
	}

	if len(a.Warnings) > 0 {
		b.WriteString("\nWarnings\n")
		for _, w := range a.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	if line := heaviestPhase(a.Report); line != "" {
		b.WriteString("\nAssessment\n- ")
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return strings.TrimSpace(b.String())
}

func renderTable(r Report) string {
	rows := make([][]string, 0, len(r))
	for _, rec := range r {
		rows = append(rows, []string{
			rec.Phase,
			formatCell(&rec.TotalTime),
			formatCell(&rec.TotalDraw),
			formatCell(rec.AvgDrawRate),
			formatCell(rec.DiffOfAvg),
			formatCell(rec.PctTime),
			formatCell(rec.DrawPerMinute),
		})
	}

	widths := make([]int, len(noteColumns))
	for i, h := range noteColumns {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	border := func() {
		b.WriteByte('+')
		for _, w := range widths {
			b.WriteString(strings.Repeat("-", w+2))
			b.WriteByte('+')
		}
		b.WriteByte('\n')
	}
	line := func(cells []string) {
		b.WriteByte('|')
		for i, cell := range cells {
			fmt.Fprintf(&b, " %*s |", widths[i], cell)
		}
		b.WriteByte('\n')
	}

	border()
	line(noteColumns)
	border()
	for _, row := range rows {
		line(row)
	}
	border()
	return b.String()
}

func formatCell(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func heaviestPhase(r Report) string {
	var best *ReportRecord
	phases := r.Phases()
	for i := range phases {
		if phases[i].DiffOfAvg == nil {
			continue
		}
		if best == nil || *phases[i].DiffOfAvg > *best.DiffOfAvg {
			best = &phases[i]
		}
	}
	if best == nil {
		return ""
	}
	return fmt.Sprintf("%s drew hardest at %.0f%% of the non-ground baseline.", best.Phase, *best.DiffOfAvg)
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	s := int(math.Round(seconds))
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
