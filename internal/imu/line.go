package imu

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Line kinds returned by ClassifyLine.
const (
	LineSample  = "sample"
	LineStatus  = "status"
	LineUnknown = "unknown"
)

// ErrMalformedLine is returned by ParseLine for text that is not a sample.
var ErrMalformedLine = errors.New("imu: malformed sample line")

// csvFields is seq, ts_ns, three angles and three rates.
const csvFields = 8

// ClassifyLine inspects a serial line and returns LineSample, LineStatus or
// LineUnknown. Status lines are the device's '#'-prefixed key=value reports
// and acknowledgements.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return LineUnknown
	case strings.HasPrefix(line, "#"):
		return LineStatus
	case strings.HasPrefix(line, "{"):
		if strings.Contains(line, `"eul"`) {
			return LineSample
		}
		return LineUnknown
	case strings.Count(line, ",") == csvFields-1:
		return LineSample
	default:
		return LineUnknown
	}
}

// ParseLine decodes a sample from either a CSV line
// "seq,ts_ns,ax,ay,az,wx,wy,wz" or a JSON object
// {"seq":..,"ts":..,"eul":[..],"w":[..]}.
func ParseLine(line string) (Sample, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "{") {
		return parseJSONLine(line)
	}
	return parseCSVLine(line)
}

func parseJSONLine(line string) (Sample, error) {
	var raw struct {
		Seq  *uint64   `json:"seq"`
		TS   *int64    `json:"ts"`
		Eul  []float64 `json:"eul"`
		Rate []float64 `json:"w"`
	}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	if len(raw.Eul) != 3 || len(raw.Rate) != 3 {
		return Sample{}, fmt.Errorf("%w: want 3 angles and 3 rates, got %d and %d", ErrMalformedLine, len(raw.Eul), len(raw.Rate))
	}
	var s Sample
	if raw.Seq != nil {
		s.Seq = *raw.Seq
	}
	if raw.TS != nil {
		s.TimestampNanos = *raw.TS
	}
	copy(s.Angle[:], raw.Eul)
	copy(s.Rate[:], raw.Rate)
	return s, nil
}

func parseCSVLine(line string) (Sample, error) {
	fields := strings.Split(line, ",")
	if len(fields) != csvFields {
		return Sample{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedLine, csvFields, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var s Sample
	var err error
	if s.Seq, err = strconv.ParseUint(fields[0], 10, 64); err != nil {
		return Sample{}, fmt.Errorf("%w: seq: %v", ErrMalformedLine, err)
	}
	if s.TimestampNanos, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return Sample{}, fmt.Errorf("%w: ts: %v", ErrMalformedLine, err)
	}
	for i := 0; i < 3; i++ {
		if s.Angle[i], err = strconv.ParseFloat(fields[2+i], 64); err != nil {
			return Sample{}, fmt.Errorf("%w: angle[%d]: %v", ErrMalformedLine, i, err)
		}
		if s.Rate[i], err = strconv.ParseFloat(fields[5+i], 64); err != nil {
			return Sample{}, fmt.Errorf("%w: rate[%d]: %v", ErrMalformedLine, i, err)
		}
	}
	if !s.IsFinite() {
		return Sample{}, fmt.Errorf("%w: seq %d", ErrNonFinite, s.Seq)
	}
	return s, nil
}

// FormatLine encodes s as a CSV sample line without a trailing newline.
func FormatLine(s Sample) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(s.Seq, 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(s.TimestampNanos, 10))
	for _, v := range s.Angle {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	for _, v := range s.Rate {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// ParseStatus splits a status line like "# rate=1000 mode=eul" into its
// key=value pairs. Tokens without '=' are returned with an empty value.
func ParseStatus(line string) map[string]string {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "#"))
	out := make(map[string]string)
	for _, tok := range strings.Fields(line) {
		k, v, _ := strings.Cut(tok, "=")
		out[k] = v
	}
	return out
}
