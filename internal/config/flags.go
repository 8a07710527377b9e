package config

import "flag"

// AnalysisFlags binds threshold flags whose explicit values override a
// loaded configuration.
type AnalysisFlags struct {
	fs     *flag.FlagSet
	values AnalysisConfig
}

// BindAnalysisFlags registers -ground-vel, -cruise-vel, -altitude-min,
// -climb-vz, -descend-vz and -min-segment on fs.
func BindAnalysisFlags(fs *flag.FlagSet) *AnalysisFlags {
	f := &AnalysisFlags{fs: fs}
	d := Default().Analysis
	fs.Float64Var(&f.values.GroundVel, "ground-vel", d.GroundVel, "Ground speed ceiling in m/s")
	fs.Float64Var(&f.values.CruiseVel, "cruise-vel", d.CruiseVel, "Horizontal speed above which a flight is cruising, m/s")
	fs.Float64Var(&f.values.AltitudeMin, "altitude-min", d.AltitudeMin, "Altitude floor for airborne phases in m")
	fs.Float64Var(&f.values.ClimbVZ, "climb-vz", d.ClimbVZ, "Vertical velocity below which the vehicle climbs (NED, m/s)")
	fs.Float64Var(&f.values.DescendVZ, "descend-vz", d.DescendVZ, "Vertical velocity above which the vehicle descends (NED, m/s)")
	fs.Float64Var(&f.values.MinSegmentDuration, "min-segment", d.MinSegmentDuration, "Minimum phase segment duration in seconds")
	return f
}

// Apply copies flags that were set on the command line into dst.
// Call after the flag set has been parsed.
func (f *AnalysisFlags) Apply(dst *AnalysisConfig) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "ground-vel":
			dst.GroundVel = f.values.GroundVel
		case "cruise-vel":
			dst.CruiseVel = f.values.CruiseVel
		case "altitude-min":
			dst.AltitudeMin = f.values.AltitudeMin
		case "climb-vz":
			dst.ClimbVZ = f.values.ClimbVZ
		case "descend-vz":
			dst.DescendVZ = f.values.DescendVZ
		case "min-segment":
			dst.MinSegmentDuration = f.values.MinSegmentDuration
		}
	})
}
