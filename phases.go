package phaseenergy

import (
	"fmt"
	"math"
)

// Phase is a raw per-row flight phase label.
type Phase uint8

const (
	PhaseUnknown Phase = iota
	PhaseGround
	PhaseCruising
	PhaseDescending
	PhaseClimbing
	PhaseHovering
)

var phaseNames = map[Phase]string{
	PhaseUnknown:    "Unknown",
	PhaseGround:     "On the Ground",
	PhaseCruising:   "Cruising",
	PhaseDescending: "Descending",
	PhaseClimbing:   "Climbing",
	PhaseHovering:   "Hovering",
}

// String returns the report display name.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// MarshalText renders the display name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Thresholds are the classifier cut-offs. Velocities are m/s in NED, altitude in m.
type Thresholds struct {
	GroundVel   float64 `json:"ground_vel" yaml:"ground_vel"`
	CruiseVel   float64 `json:"cruise_vel" yaml:"cruise_vel"`
	AltitudeMin float64 `json:"altitude_min" yaml:"altitude_min"`
	ClimbVZ     float64 `json:"climb_vz" yaml:"climb_vz"`
	DescendVZ   float64 `json:"descend_vz" yaml:"descend_vz"`
}

// DefaultThresholds returns the stock classifier cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GroundVel:   0.1,
		CruiseVel:   2.0,
		AltitudeMin: 5.0,
		ClimbVZ:     -0.1,
		DescendVZ:   0.1,
	}
}

type phaseRule struct {
	phase Phase
	match func(vz, hv, alt float64) bool
}

// Classifier labels rows by testing rules in a fixed order; the first match wins.
type Classifier struct {
	thresholds Thresholds
	rules      []phaseRule
}

// NewClassifier builds the ordered rule list. The ranges overlap, so order matters:
// a stationary vehicle below the altitude floor is Ground even if another rule matches.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{
		thresholds: t,
		rules: []phaseRule{
			{PhaseGround, func(vz, hv, alt float64) bool {
				return math.Abs(vz) < t.GroundVel && math.Abs(hv) < t.GroundVel && alt < t.AltitudeMin
			}},
			{PhaseCruising, func(vz, hv, alt float64) bool {
				return hv > t.CruiseVel && alt >= t.AltitudeMin
			}},
			{PhaseDescending, func(vz, hv, alt float64) bool {
				return vz > t.DescendVZ
			}},
			{PhaseClimbing, func(vz, hv, alt float64) bool {
				return vz < t.ClimbVZ
			}},
			{PhaseHovering, func(vz, hv, alt float64) bool {
				return math.Abs(vz) < t.GroundVel && alt >= t.AltitudeMin
			}},
		},
	}
}

// Thresholds returns the cut-offs the classifier was built with.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify labels one set of derived values.
func (c *Classifier) Classify(vz, horizontalVelocity, altitude float64) Phase {
	for _, r := range c.rules {
		if r.match(vz, horizontalVelocity, altitude) {
			return r.phase
		}
	}
	return PhaseUnknown
}

// ClassifyRows labels every row.
func (c *Classifier) ClassifyRows(rows []AlignedRow) []Phase {
	labels := make([]Phase, len(rows))
	for i, r := range rows {
		labels[i] = c.Classify(r.VZ, r.HorizontalVelocity, r.Altitude)
	}
	return labels
}

// PhaseSegment is a run of consecutive same-label rows that lasted at least
// the minimum duration. FirstRow and EndRow index the consolidated rows
// (EndRow exclusive).
type PhaseSegment struct {
	Phase     Phase   `json:"phase"`
	StartTime float64 `json:"start_time_s"`
	EndTime   float64 `json:"end_time_s"`
	Duration  float64 `json:"duration_s"`
	FirstRow  int     `json:"first_row"`
	EndRow    int     `json:"end_row"`
}

// Consolidate debounces raw labels into segments. A run whose accumulated
// time delta is below minDuration is dropped, and its rows belong to no
// segment.
func Consolidate(rows []AlignedRow, labels []Phase, minDuration float64) ([]PhaseSegment, error) {
	if len(rows) == 0 {
		return nil, ErrNoIntervals
	}
	if len(labels) != len(rows) {
		return nil, fmt.Errorf("consolidate: %d labels for %d rows", len(labels), len(rows))
	}

	var segments []PhaseSegment
	current := labels[0]
	start := 0
	accumulated := rows[0].TimeDelta

	for i := 1; i < len(rows); i++ {
		if labels[i] == current {
			accumulated += rows[i].TimeDelta
			continue
		}
		if accumulated >= minDuration {
			segments = append(segments, PhaseSegment{
				Phase:     current,
				StartTime: rows[start].Time,
				EndTime:   rows[i].Time,
				Duration:  accumulated,
				FirstRow:  start,
				EndRow:    i,
			})
		}
		current = labels[i]
		start = i
		accumulated = rows[i].TimeDelta
	}

	last := len(rows) - 1
	if accumulated >= minDuration {
		segments = append(segments, PhaseSegment{
			Phase:     current,
			StartTime: rows[start].Time,
			EndTime:   rows[last].Time,
			Duration:  accumulated,
			FirstRow:  start,
			EndRow:    len(rows),
		})
	}
	return segments, nil
}
