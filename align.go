package phaseenergy

import (
	"fmt"
	"math"
	"sort"
)

// mAhPerAmpSecond converts A*s to mAh (1000 / 3600).
const mAhPerAmpSecond = 1 / 3.6

// AlignedRow is one motion sample paired with its nearest battery sample,
// plus the features derived from the pair.
type AlignedRow struct {
	Index        int     `json:"index"`
	Time         float64 `json:"time_s"`
	Timestamp    uint64  `json:"timestamp"`
	VX           float64 `json:"vx"`
	VY           float64 `json:"vy"`
	VZ           float64 `json:"vz"`
	Z            float64 `json:"z"`
	BatteryIndex int     `json:"battery_index"`
	BatteryTime  float64 `json:"battery_time_s"`
	VoltageV     float64 `json:"voltage_v"`
	CurrentA     float64 `json:"current_a"`

	HorizontalVelocity float64 `json:"horizontal_velocity"`
	Altitude           float64 `json:"altitude"`
	TimeDelta          float64 `json:"time_delta_s"`
	ChargeDraw         float64 `json:"charge_draw_mah"`
}

// Align pairs every motion sample with the battery sample nearest in
// normalized time. Both time slices must be ascending. On an exact tie the
// earlier battery sample wins.
func Align(motion []MotionSample, motionTimes []float64, battery []BatterySample, batteryTimes []float64) ([]AlignedRow, error) {
	if len(motion) == 0 {
		return nil, fmt.Errorf("motion series: %w", ErrEmptySeries)
	}
	if len(battery) == 0 {
		return nil, fmt.Errorf("battery series: %w", ErrEmptySeries)
	}
	if len(motion) != len(motionTimes) || len(battery) != len(batteryTimes) {
		return nil, fmt.Errorf("align: sample/time length mismatch (motion %d/%d, battery %d/%d)",
			len(motion), len(motionTimes), len(battery), len(batteryTimes))
	}

	rows := make([]AlignedRow, len(motion))
	for i, m := range motion {
		j := nearestIndex(batteryTimes, motionTimes[i])
		b := battery[j]
		rows[i] = AlignedRow{
			Index:        i,
			Time:         motionTimes[i],
			Timestamp:    m.Timestamp,
			VX:           m.VX,
			VY:           m.VY,
			VZ:           m.VZ,
			Z:            m.Z,
			BatteryIndex: j,
			BatteryTime:  batteryTimes[j],
			VoltageV:     b.VoltageV,
			CurrentA:     b.CurrentA,
		}
	}
	return rows, nil
}

func nearestIndex(times []float64, t float64) int {
	i := sort.SearchFloat64s(times, t)
	if i == 0 {
		return 0
	}
	if i == len(times) {
		return len(times) - 1
	}
	if t-times[i-1] <= times[i]-t {
		return i - 1
	}
	return i
}

// DeriveFeatures returns a copy of rows with horizontal velocity, altitude,
// time delta and charge draw (mAh) filled in. The first row has a zero delta.
func DeriveFeatures(rows []AlignedRow) []AlignedRow {
	out := make([]AlignedRow, len(rows))
	for i, r := range rows {
		r.HorizontalVelocity = math.Hypot(r.VX, r.VY)
		r.Altitude = -r.Z
		r.TimeDelta = 0
		if i > 0 {
			r.TimeDelta = r.Time - rows[i-1].Time
		}
		r.ChargeDraw = r.CurrentA * r.TimeDelta * mAhPerAmpSecond
		out[i] = r
	}
	return out
}

// SurvivingRows drops rows whose time delta is not positive. A zero-length
// interval carries no draw-rate information.
func SurvivingRows(rows []AlignedRow) []AlignedRow {
	out := make([]AlignedRow, 0, len(rows))
	for _, r := range rows {
		if r.TimeDelta > 0 {
			out = append(out, r)
		}
	}
	return out
}
