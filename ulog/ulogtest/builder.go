// Package ulogtest builds small synthetic ULog files for tests.
package ulogtest

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
)

const (
	LocalPositionFormat = "vehicle_local_position:uint64_t timestamp;float x;float y;float z;float vx;float vy;float vz;bool xy_valid;uint8_t[3] _padding0;"
	BatteryStatusFormat = "battery_status:uint64_t timestamp;float voltage_v;float current_a;float remaining;uint8_t cell_count;uint8_t[3] _padding0;"
)

// Builder appends ULog messages to an in-memory file.
type Builder struct {
	buf bytes.Buffer
}

// NewBuilder writes the file header.
func NewBuilder(startTimestamp uint64) *Builder {
	b := &Builder{}
	b.buf.Write([]byte{0x55, 0x4c, 0x6f, 0x67, 0x01, 0x12, 0x35})
	b.buf.WriteByte(1)
	_ = binary.Write(&b.buf, binary.LittleEndian, startTimestamp)
	return b
}

// Message appends one raw message.
func (b *Builder) Message(kind byte, payload []byte) *Builder {
	_ = binary.Write(&b.buf, binary.LittleEndian, uint16(len(payload)))
	b.buf.WriteByte(kind)
	b.buf.Write(payload)
	return b
}

// Flags appends a flag bits message with empty compat/incompat sets.
func (b *Builder) Flags() *Builder {
	return b.Message('B', make([]byte, 8+8+3*8))
}

// Format appends a format definition such as "name:uint64_t timestamp;float x;".
func (b *Builder) Format(def string) *Builder {
	return b.Message('F', []byte(def))
}

// InfoString appends an info message with a char[] value.
func (b *Builder) InfoString(name, value string) *Builder {
	key := "char[" + strconv.Itoa(len(value)) + "] " + name
	payload := append([]byte{byte(len(key))}, key...)
	payload = append(payload, value...)
	return b.Message('I', payload)
}

// ParamFloat appends a float parameter.
func (b *Builder) ParamFloat(name string, v float32) *Builder {
	key := "float " + name
	payload := append([]byte{byte(len(key))}, key...)
	payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(v))
	return b.Message('P', payload)
}

// AddLogged subscribes msgID to a previously defined format.
func (b *Builder) AddLogged(multiID uint8, msgID uint16, name string) *Builder {
	payload := []byte{multiID}
	payload = binary.LittleEndian.AppendUint16(payload, msgID)
	payload = append(payload, name...)
	return b.Message('A', payload)
}

// Data appends a data message; body starts with the timestamp field.
func (b *Builder) Data(msgID uint16, body []byte) *Builder {
	payload := binary.LittleEndian.AppendUint16(nil, msgID)
	payload = append(payload, body...)
	return b.Message('D', payload)
}

// Log appends a plain logged string.
func (b *Builder) Log(level uint8, ts uint64, msg string) *Builder {
	payload := []byte{level}
	payload = binary.LittleEndian.AppendUint64(payload, ts)
	payload = append(payload, msg...)
	return b.Message('L', payload)
}

// Dropout appends a dropout marker.
func (b *Builder) Dropout(ms uint16) *Builder {
	return b.Message('O', binary.LittleEndian.AppendUint16(nil, ms))
}

// Bytes returns the file contents.
func (b *Builder) Bytes() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// MotionRow is one vehicle_local_position sample.
type MotionRow struct {
	Timestamp  uint64
	VX, VY, VZ float32
	Z          float32
}

// BatteryRow is one battery_status sample.
type BatteryRow struct {
	Timestamp uint64
	VoltageV  float32
	CurrentA  float32
}

// FlightLog encodes a minimal recording holding the two datasets the analysis reads.
func FlightLog(motion []MotionRow, battery []BatteryRow) []byte {
	b := NewBuilder(0).
		Flags().
		InfoString("sys_name", "PX4").
		Format(LocalPositionFormat).
		Format(BatteryStatusFormat).
		ParamFloat("BAT1_CAPACITY", 5000).
		AddLogged(0, 0, "vehicle_local_position").
		AddLogged(0, 1, "battery_status")

	// interleave by timestamp like a real logger
	i, j := 0, 0
	for i < len(motion) || j < len(battery) {
		if j >= len(battery) || (i < len(motion) && motion[i].Timestamp <= battery[j].Timestamp) {
			b.Data(0, EncodeMotion(motion[i]))
			i++
			continue
		}
		b.Data(1, EncodeBattery(battery[j]))
		j++
	}
	return b.Bytes()
}

// EncodeMotion lays out a MotionRow per LocalPositionFormat, dropping the trailing padding.
func EncodeMotion(r MotionRow) []byte {
	out := binary.LittleEndian.AppendUint64(nil, r.Timestamp)
	for _, v := range []float32{0, 0, r.Z, r.VX, r.VY, r.VZ} {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return append(out, 1)
}

// EncodeBattery lays out a BatteryRow per BatteryStatusFormat, dropping the trailing padding.
func EncodeBattery(r BatteryRow) []byte {
	out := binary.LittleEndian.AppendUint64(nil, r.Timestamp)
	for _, v := range []float32{r.VoltageV, r.CurrentA, 0.5} {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return append(out, 4)
}
