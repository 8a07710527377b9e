//go:build !js

package pipeline

import (
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	phaseenergy "github.com/flight-assurance/phase-energy"
)

type alignedParquetRow struct {
	Index              int64   `parquet:"name=index, type=INT64"`
	TimeS              float64 `parquet:"name=time_s, type=DOUBLE"`
	TimestampUS        int64   `parquet:"name=timestamp_us, type=INT64"`
	VX                 float64 `parquet:"name=vx, type=DOUBLE"`
	VY                 float64 `parquet:"name=vy, type=DOUBLE"`
	VZ                 float64 `parquet:"name=vz, type=DOUBLE"`
	Z                  float64 `parquet:"name=z, type=DOUBLE"`
	BatteryIndex       int64   `parquet:"name=battery_index, type=INT64"`
	BatteryTimeS       float64 `parquet:"name=battery_time_s, type=DOUBLE"`
	VoltageV           float64 `parquet:"name=voltage_v, type=DOUBLE"`
	CurrentA           float64 `parquet:"name=current_a, type=DOUBLE"`
	HorizontalVelocity float64 `parquet:"name=horizontal_velocity, type=DOUBLE"`
	Altitude           float64 `parquet:"name=altitude, type=DOUBLE"`
	TimeDeltaS         float64 `parquet:"name=time_delta_s, type=DOUBLE"`
	ChargeDrawMAh      float64 `parquet:"name=charge_draw_mah, type=DOUBLE"`
	Phase              string  `parquet:"name=phase, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Segment            int64   `parquet:"name=segment, type=INT64"`
}

func marshalAlignedParquet(a *phaseenergy.Analysis) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(alignedParquetRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	segmentOf := rowSegments(a)
	for i, r := range a.Rows {
		row := alignedParquetRow{
			Index:              int64(r.Index),
			TimeS:              r.Time,
			TimestampUS:        int64(r.Timestamp),
			VX:                 r.VX,
			VY:                 r.VY,
			VZ:                 r.VZ,
			Z:                  r.Z,
			BatteryIndex:       int64(r.BatteryIndex),
			BatteryTimeS:       r.BatteryTime,
			VoltageV:           r.VoltageV,
			CurrentA:           r.CurrentA,
			HorizontalVelocity: r.HorizontalVelocity,
			Altitude:           r.Altitude,
			TimeDeltaS:         r.TimeDelta,
			ChargeDrawMAh:      r.ChargeDraw,
			Phase:              rowLabel(a, i),
			Segment:            int64(segmentOf[i]),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}
