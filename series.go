package phaseenergy

import (
	"fmt"
	"sort"

	"github.com/flight-assurance/phase-energy/ulog"
)

const (
	// MotionDataset is the topic carrying NED velocity and position.
	MotionDataset = "vehicle_local_position"
	// BatteryDataset is the topic carrying pack voltage and current.
	BatteryDataset = "battery_status"

	ticksPerSecond = float64(ulog.TicksPerSecond)
)

// MotionSample is one position/velocity reading. Z is positive downward.
type MotionSample struct {
	Timestamp uint64  `json:"timestamp"`
	VX        float64 `json:"vx"`
	VY        float64 `json:"vy"`
	VZ        float64 `json:"vz"`
	Z         float64 `json:"z"`
}

// BatterySample is one battery telemetry reading.
type BatterySample struct {
	Timestamp uint64  `json:"timestamp"`
	VoltageV  float64 `json:"voltage_v"`
	CurrentA  float64 `json:"current_a"`
}

// LoadSeries pulls the motion and battery series out of a decoded log.
func LoadSeries(log *ulog.Log) ([]MotionSample, []BatterySample, error) {
	if log == nil {
		return nil, nil, fmt.Errorf("decoded log is required")
	}
	pos, err := log.Dataset(MotionDataset, 0)
	if err != nil {
		return nil, nil, err
	}
	bat, err := log.Dataset(BatteryDataset, 0)
	if err != nil {
		return nil, nil, err
	}
	motion, err := MotionFromDataset(pos)
	if err != nil {
		return nil, nil, err
	}
	battery, err := BatteryFromDataset(bat)
	if err != nil {
		return nil, nil, err
	}
	return motion, battery, nil
}

// MotionFromDataset converts vehicle_local_position columns into samples.
func MotionFromDataset(ds *ulog.Dataset) ([]MotionSample, error) {
	cols, err := requireColumns(ds, "vx", "vy", "vz", "z")
	if err != nil {
		return nil, err
	}
	out := make([]MotionSample, ds.Len())
	for i, ts := range ds.Timestamps {
		out[i] = MotionSample{
			Timestamp: ts,
			VX:        cols[0][i],
			VY:        cols[1][i],
			VZ:        cols[2][i],
			Z:         cols[3][i],
		}
	}
	return out, nil
}

// BatteryFromDataset converts battery_status columns into samples.
func BatteryFromDataset(ds *ulog.Dataset) ([]BatterySample, error) {
	cols, err := requireColumns(ds, "voltage_v", "current_a")
	if err != nil {
		return nil, err
	}
	out := make([]BatterySample, ds.Len())
	for i, ts := range ds.Timestamps {
		out[i] = BatterySample{
			Timestamp: ts,
			VoltageV:  cols[0][i],
			CurrentA:  cols[1][i],
		}
	}
	return out, nil
}

func requireColumns(ds *ulog.Dataset, names ...string) ([][]float64, error) {
	if ds == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	cols := make([][]float64, len(names))
	for i, name := range names {
		col, ok := ds.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingField, ds.Name, name)
		}
		if len(col) != ds.Len() {
			return nil, fmt.Errorf("%s.%s has %d values for %d timestamps", ds.Name, name, len(col), ds.Len())
		}
		cols[i] = col
	}
	return cols, nil
}

// NormalizeTimes rebases raw clock ticks to seconds since the first sample.
func NormalizeTimes(timestamps []uint64) ([]float64, error) {
	if len(timestamps) == 0 {
		return nil, ErrEmptySeries
	}
	t0 := timestamps[0]
	out := make([]float64, len(timestamps))
	for i, ts := range timestamps {
		// signed difference keeps an out-of-order sample negative instead of wrapping
		out[i] = float64(int64(ts-t0)) / ticksPerSecond
	}
	return out, nil
}

func sortMotion(samples []MotionSample) ([]MotionSample, bool) {
	if sort.SliceIsSorted(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp }) {
		return samples, false
	}
	out := append([]MotionSample(nil), samples...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, true
}

func sortBattery(samples []BatterySample) ([]BatterySample, bool) {
	if sort.SliceIsSorted(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp }) {
		return samples, false
	}
	out := append([]BatterySample(nil), samples...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, true
}

func motionTimestamps(samples []MotionSample) []uint64 {
	out := make([]uint64, len(samples))
	for i, s := range samples {
		out[i] = s.Timestamp
	}
	return out
}

func batteryTimestamps(samples []BatterySample) []uint64 {
	out := make([]uint64, len(samples))
	for i, s := range samples {
		out[i] = s.Timestamp
	}
	return out
}
