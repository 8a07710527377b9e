package ulog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	headerSize       = 16
	msgHeaderSize    = 3
	maxNestingDepth  = 8
	appendedDataFlag = 0x01
)

var fileMagic = []byte{0x55, 0x4c, 0x6f, 0x67, 0x01, 0x12, 0x35}

const (
	msgFlagBits        = 'B'
	msgFormat          = 'F'
	msgInfo            = 'I'
	msgInfoMultiple    = 'M'
	msgParameter       = 'P'
	msgParameterDef    = 'Q'
	msgAddLogged       = 'A'
	msgRemoveLogged    = 'R'
	msgData            = 'D'
	msgLogging         = 'L'
	msgLoggingTagged   = 'C'
	msgSync            = 'S'
	msgDropout         = 'O'
	timestampFieldName = "timestamp"
)

type typeSpec struct {
	name     string
	size     int
	signed   bool
	floating bool
	text     bool
}

var typeSpecs = map[string]typeSpec{
	"int8_t":   {name: "int8_t", size: 1, signed: true},
	"uint8_t":  {name: "uint8_t", size: 1},
	"int16_t":  {name: "int16_t", size: 2, signed: true},
	"uint16_t": {name: "uint16_t", size: 2},
	"int32_t":  {name: "int32_t", size: 4, signed: true},
	"uint32_t": {name: "uint32_t", size: 4},
	"int64_t":  {name: "int64_t", size: 8, signed: true},
	"uint64_t": {name: "uint64_t", size: 8},
	"float":    {name: "float", size: 4, signed: true, floating: true},
	"double":   {name: "double", size: 8, signed: true, floating: true},
	"bool":     {name: "bool", size: 1},
	"char":     {name: "char", size: 1, text: true},
}

type formatField struct {
	typeName string
	name     string
	arrayLen int
}

type flatField struct {
	name   string
	spec   typeSpec
	offset int
}

type subscription struct {
	dataset   *Dataset
	fields    []flatField
	tsOffset  int
	hasTS     bool
	totalSize int
}

type parseState struct {
	data          []byte
	offset        int
	formats       map[string][]formatField
	subscriptions map[uint16]*subscription
	datasetIndex  map[string]*Dataset
	log           *Log
}

func parseULogBytes(data []byte) (*Log, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", ErrInvalidHeader, len(data))
	}
	if !bytes.Equal(data[:len(fileMagic)], fileMagic) {
		return nil, fmt.Errorf("%w: bad magic % x", ErrInvalidHeader, data[:len(fileMagic)])
	}

	ps := &parseState{
		data:          data,
		offset:        headerSize,
		formats:       make(map[string][]formatField),
		subscriptions: make(map[uint16]*subscription),
		datasetIndex:  make(map[string]*Dataset),
		log: &Log{
			Header: Header{
				Version:        data[7],
				StartTimestamp: binary.LittleEndian.Uint64(data[8:16]),
			},
			Info:   make(map[string]string),
			Params: make(map[string]float64),
		},
	}
	if err := ps.parseMessages(); err != nil {
		return nil, err
	}
	return ps.log, nil
}

func (ps *parseState) parseMessages() error {
	for ps.offset < len(ps.data) {
		if len(ps.data)-ps.offset < msgHeaderSize {
			ps.warnf("truncated message header at offset %d", ps.offset)
			return nil
		}
		size := int(binary.LittleEndian.Uint16(ps.data[ps.offset : ps.offset+2]))
		kind := ps.data[ps.offset+2]
		start := ps.offset + msgHeaderSize
		end := start + size
		if end > len(ps.data) {
			ps.warnf("truncated %q message at offset %d: need %d bytes, have %d", kind, ps.offset, size, len(ps.data)-start)
			return nil
		}
		payload := ps.data[start:end]

		if err := ps.handleMessage(kind, payload); err != nil {
			return fmt.Errorf("message %q at offset %d: %w", kind, ps.offset, err)
		}
		ps.offset = end
	}
	return nil
}

func (ps *parseState) handleMessage(kind byte, payload []byte) error {
	switch kind {
	case msgFlagBits:
		ps.parseFlags(payload)
	case msgFormat:
		return ps.parseFormat(payload)
	case msgInfo:
		key, value, ok := splitKeyValue(payload)
		if ok {
			ps.log.Info[key.name] = value
		}
	case msgInfoMultiple:
		if len(payload) < 1 {
			return nil
		}
		key, value, ok := splitKeyValue(payload[1:])
		if !ok {
			return nil
		}
		if payload[0] != 0 {
			ps.log.Info[key.name] += value
		} else {
			ps.log.Info[key.name] = value
		}
	case msgParameter:
		ps.parseParameter(payload)
	case msgParameterDef:
		if len(payload) > 1 {
			ps.parseParameter(payload[1:])
		}
	case msgAddLogged:
		return ps.parseAddLogged(payload)
	case msgRemoveLogged:
		if len(payload) >= 2 {
			delete(ps.subscriptions, binary.LittleEndian.Uint16(payload[:2]))
		}
	case msgData:
		ps.parseData(payload)
	case msgLogging:
		if len(payload) < 9 {
			ps.warnf("short logging message at offset %d", ps.offset)
			return nil
		}
		ps.log.Messages = append(ps.log.Messages, LogMessage{
			Level:     payload[0],
			Timestamp: binary.LittleEndian.Uint64(payload[1:9]),
			Message:   cString(payload[9:]),
		})
	case msgLoggingTagged:
		if len(payload) < 11 {
			ps.warnf("short tagged logging message at offset %d", ps.offset)
			return nil
		}
		ps.log.Messages = append(ps.log.Messages, LogMessage{
			Level:     payload[0],
			Tag:       binary.LittleEndian.Uint16(payload[1:3]),
			Timestamp: binary.LittleEndian.Uint64(payload[3:11]),
			Message:   cString(payload[11:]),
		})
	case msgDropout:
		if len(payload) >= 2 {
			ms := binary.LittleEndian.Uint16(payload[:2])
			ps.log.Dropouts = append(ps.log.Dropouts, Dropout{
				Offset:     int64(ps.offset),
				DurationMS: ms,
				Duration:   time.Duration(ms) * time.Millisecond,
			})
		}
	case msgSync:
		// sync markers carry no data
	default:
		ps.warnf("unknown message type 0x%02X at offset %d", kind, ps.offset)
	}
	return nil
}

func (ps *parseState) parseFlags(payload []byte) {
	if len(payload) < 16 {
		ps.warnf("short flag bits message at offset %d", ps.offset)
		return
	}
	flags := Flags{
		Present:  true,
		Compat:   append([]byte(nil), payload[0:8]...),
		Incompat: append([]byte(nil), payload[8:16]...),
	}
	flags.HasAppendedData = flags.Incompat[0]&appendedDataFlag != 0
	if flags.Incompat[0]&^appendedDataFlag != 0 || !allZero(flags.Incompat[1:]) {
		ps.warnf("unknown incompatible flag bits % x", flags.Incompat)
	}
	ps.log.Flags = flags
}

func (ps *parseState) parseFormat(payload []byte) error {
	text := cString(payload)
	name, body, ok := strings.Cut(text, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("malformed format definition %q", text)
	}
	fields := make([]formatField, 0, 16)
	for _, raw := range strings.Split(body, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		f, err := parseFormatField(raw)
		if err != nil {
			return fmt.Errorf("format %s: %w", name, err)
		}
		fields = append(fields, f)
	}
	ps.formats[name] = fields
	return nil
}

func parseFormatField(raw string) (formatField, error) {
	typePart, name, ok := strings.Cut(raw, " ")
	if !ok {
		return formatField{}, fmt.Errorf("malformed field %q", raw)
	}
	f := formatField{typeName: typePart, name: strings.TrimSpace(name)}
	if open := strings.IndexByte(typePart, '['); open >= 0 {
		end := strings.IndexByte(typePart, ']')
		if end < open {
			return formatField{}, fmt.Errorf("malformed array type %q", typePart)
		}
		n, err := strconv.Atoi(typePart[open+1 : end])
		if err != nil || n < 0 {
			return formatField{}, fmt.Errorf("malformed array length in %q", typePart)
		}
		f.typeName = typePart[:open]
		f.arrayLen = n
	}
	return f, nil
}

func (ps *parseState) parseAddLogged(payload []byte) error {
	if len(payload) < 3 {
		return fmt.Errorf("short add_logged message")
	}
	multiID := payload[0]
	msgID := binary.LittleEndian.Uint16(payload[1:3])
	name := cString(payload[3:])

	fields, size, err := ps.flatten(name, "", 0, 0)
	if err != nil {
		ps.warnf("skip subscription %s (msg_id %d): %v", name, msgID, err)
		return nil
	}
	sub := &subscription{fields: fields, totalSize: size}
	for _, f := range fields {
		if f.name == timestampFieldName {
			sub.tsOffset = f.offset
			sub.hasTS = true
			break
		}
	}
	if !sub.hasTS {
		ps.warnf("dataset %s has no timestamp field", name)
	}

	key := datasetKey(name, multiID)
	ds, ok := ps.datasetIndex[key]
	if !ok {
		ds = &Dataset{
			Name:    name,
			MultiID: multiID,
			Columns: make(map[string][]float64, len(fields)),
		}
		for _, f := range fields {
			if f.name == timestampFieldName {
				continue
			}
			ds.Fields = append(ds.Fields, f.name)
			ds.Columns[f.name] = nil
		}
		ps.datasetIndex[key] = ds
		ps.log.datasets = append(ps.log.datasets, ds)
	}
	sub.dataset = ds
	ps.subscriptions[msgID] = sub
	return nil
}

// flatten expands a format into primitive fields with byte offsets, recursing
// into nested formats and arrays.
func (ps *parseState) flatten(format, prefix string, offset, depth int) ([]flatField, int, error) {
	if depth > maxNestingDepth {
		return nil, 0, fmt.Errorf("format %s nested too deeply", format)
	}
	defs, ok := ps.formats[format]
	if !ok {
		return nil, 0, fmt.Errorf("no format definition for %q", format)
	}

	out := make([]flatField, 0, len(defs))
	start := offset
	for _, def := range defs {
		count := def.arrayLen
		isArray := count > 0
		if !isArray {
			count = 1
		}
		name := prefix + def.name
		skip := strings.HasPrefix(def.name, "_padding")

		if spec, ok := typeSpecs[def.typeName]; ok {
			if skip || spec.text {
				offset += spec.size * count
				continue
			}
			for i := 0; i < count; i++ {
				fieldName := name
				if isArray {
					fieldName = fmt.Sprintf("%s[%d]", name, i)
				}
				out = append(out, flatField{name: fieldName, spec: spec, offset: offset})
				offset += spec.size
			}
			continue
		}

		for i := 0; i < count; i++ {
			nestedPrefix := name + "."
			if isArray {
				nestedPrefix = fmt.Sprintf("%s[%d].", name, i)
			}
			nested, size, err := ps.flatten(def.typeName, nestedPrefix, offset, depth+1)
			if err != nil {
				return nil, 0, err
			}
			if !skip {
				out = append(out, nested...)
			}
			offset += size
		}
	}
	return out, offset - start, nil
}

func (ps *parseState) parseData(payload []byte) {
	if len(payload) < 2 {
		ps.warnf("short data message at offset %d", ps.offset)
		return
	}
	msgID := binary.LittleEndian.Uint16(payload[:2])
	sub, ok := ps.subscriptions[msgID]
	if !ok {
		return
	}
	body := payload[2:]
	if !sub.hasTS || sub.tsOffset+8 > len(body) {
		return
	}

	ds := sub.dataset
	ds.Timestamps = append(ds.Timestamps, binary.LittleEndian.Uint64(body[sub.tsOffset:sub.tsOffset+8]))
	for _, f := range sub.fields {
		if f.name == timestampFieldName {
			continue
		}
		v := math.NaN()
		if f.offset+f.spec.size <= len(body) {
			v = decodeNumeric(f.spec, body[f.offset:f.offset+f.spec.size])
		}
		ds.Columns[f.name] = append(ds.Columns[f.name], v)
	}
}

func (ps *parseState) parseParameter(payload []byte) {
	key, raw, ok := splitKeyRaw(payload)
	if !ok {
		return
	}
	spec, known := typeSpecs[key.typeName]
	if !known || spec.text || len(raw) < spec.size {
		return
	}
	ps.log.Params[key.name] = decodeNumeric(spec, raw[:spec.size])
}

func (ps *parseState) warnf(format string, args ...any) {
	ps.log.Warnings = append(ps.log.Warnings, fmt.Sprintf(format, args...))
}

func decodeNumeric(spec typeSpec, b []byte) float64 {
	switch spec.size {
	case 1:
		if spec.signed {
			return float64(int8(b[0]))
		}
		return float64(b[0])
	case 2:
		v := binary.LittleEndian.Uint16(b)
		if spec.signed {
			return float64(int16(v))
		}
		return float64(v)
	case 4:
		v := binary.LittleEndian.Uint32(b)
		if spec.floating {
			return float64(math.Float32frombits(v))
		}
		if spec.signed {
			return float64(int32(v))
		}
		return float64(v)
	case 8:
		v := binary.LittleEndian.Uint64(b)
		if spec.floating {
			return math.Float64frombits(v)
		}
		if spec.signed {
			return float64(int64(v))
		}
		return float64(v)
	}
	return math.NaN()
}

func splitKeyRaw(payload []byte) (formatField, []byte, bool) {
	if len(payload) < 1 {
		return formatField{}, nil, false
	}
	keyLen := int(payload[0])
	if 1+keyLen > len(payload) {
		return formatField{}, nil, false
	}
	key, err := parseFormatField(string(payload[1 : 1+keyLen]))
	if err != nil {
		return formatField{}, nil, false
	}
	return key, payload[1+keyLen:], true
}

func splitKeyValue(payload []byte) (formatField, string, bool) {
	key, raw, ok := splitKeyRaw(payload)
	if !ok {
		return formatField{}, "", false
	}
	spec, known := typeSpecs[key.typeName]
	switch {
	case known && spec.text:
		return key, cString(raw), true
	case known && key.arrayLen == 0 && len(raw) >= spec.size:
		return key, strconv.FormatFloat(decodeNumeric(spec, raw[:spec.size]), 'f', -1, 64), true
	default:
		return key, fmt.Sprintf("%x", raw), true
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func datasetKey(name string, multiID uint8) string {
	return name + "/" + strconv.Itoa(int(multiID))
}
