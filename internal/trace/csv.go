// Package trace reads and writes IMU traces as CSV, replays them through a
// fresh filter and compares or summarises the result.
package trace

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

// ErrMissingColumn is returned when a CSV header lacks a required column.
var ErrMissingColumn = errors.New("trace: missing column")

var (
	sampleHeader = []string{
		"seq", "ts_ns",
		"angle_x", "angle_y", "angle_z",
		"rate_x", "rate_y", "rate_z",
	}
	estimateHeader = []string{
		"seq", "ts_ns",
		"raw_angle_x", "raw_angle_y", "raw_angle_z",
		"raw_rate_x", "raw_rate_y", "raw_rate_z",
		"angle_x", "angle_y", "angle_z",
		"rate_x", "rate_y", "rate_z",
	}
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WriteSamples writes samples with a header row.
func WriteSamples(w io.Writer, samples []imu.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sampleHeader); err != nil {
		return err
	}
	row := make([]string, len(sampleHeader))
	for _, s := range samples {
		row[0] = strconv.FormatUint(s.Seq, 10)
		row[1] = strconv.FormatInt(s.TimestampNanos, 10)
		for a := 0; a < 3; a++ {
			row[2+a] = formatFloat(s.Angle[a])
			row[5+a] = formatFloat(s.Rate[a])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEstimates writes raw inputs and filter outputs with a header row.
func WriteEstimates(w io.Writer, ests []imu.Estimate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(estimateHeader); err != nil {
		return err
	}
	row := make([]string, len(estimateHeader))
	for _, e := range ests {
		row[0] = strconv.FormatUint(e.Seq, 10)
		row[1] = strconv.FormatInt(e.TimestampNanos, 10)
		for a := 0; a < 3; a++ {
			row[2+a] = formatFloat(e.Raw.Angle[a])
			row[5+a] = formatFloat(e.Raw.Rate[a])
			row[8+a] = formatFloat(e.Angle[a])
			row[11+a] = formatFloat(e.Rate[a])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// columns maps header names to indexes.
type columns map[string]int

func readHeader(cr *csv.Reader) (columns, error) {
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty trace", ErrMissingColumn)
	}
	if err != nil {
		return nil, err
	}
	cols := make(columns, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return cols, nil
}

// pick returns the index of the first name present.
func (c columns) pick(names ...string) (int, error) {
	for _, n := range names {
		if i, ok := c[n]; ok {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrMissingColumn, names[0])
}

type rowParser struct {
	line int
	err  error
}

func (p *rowParser) float(rec []string, i int) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	if err != nil {
		p.err = fmt.Errorf("line %d column %d: %w", p.line, i+1, err)
	}
	return v
}

func (p *rowParser) uint(rec []string, i int) uint64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(rec[i]), 10, 64)
	if err != nil {
		p.err = fmt.Errorf("line %d column %d: %w", p.line, i+1, err)
	}
	return v
}

func (p *rowParser) int(rec []string, i int) int64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(rec[i]), 10, 64)
	if err != nil {
		p.err = fmt.Errorf("line %d column %d: %w", p.line, i+1, err)
	}
	return v
}

// rawColumns locates seq, ts and the six raw channels. Estimate traces
// name them raw_*, sample traces use the bare names.
func rawColumns(cols columns) (seq, ts int, angle, rate [3]int, err error) {
	if seq, err = cols.pick("seq"); err != nil {
		return
	}
	if ts, err = cols.pick("ts_ns"); err != nil {
		return
	}
	axes := []string{"x", "y", "z"}
	for a, ax := range axes {
		if angle[a], err = cols.pick("raw_angle_"+ax, "angle_"+ax); err != nil {
			return
		}
		if rate[a], err = cols.pick("raw_rate_"+ax, "rate_"+ax); err != nil {
			return
		}
	}
	return
}

// ReadSamples reads a sample trace. Estimate traces are accepted too, in
// which case the raw columns are used.
func ReadSamples(r io.Reader) ([]imu.Sample, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cols, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	seqCol, tsCol, angleCols, rateCols, err := rawColumns(cols)
	if err != nil {
		return nil, err
	}

	var samples []imu.Sample
	p := rowParser{line: 1}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
		p.line++
		var s imu.Sample
		s.Seq = p.uint(rec, seqCol)
		s.TimestampNanos = p.int(rec, tsCol)
		for a := 0; a < 3; a++ {
			s.Angle[a] = p.float(rec, angleCols[a])
			s.Rate[a] = p.float(rec, rateCols[a])
		}
		if p.err != nil {
			return nil, p.err
		}
		samples = append(samples, s)
	}
}

// ReadEstimates reads a trace written by WriteEstimates.
func ReadEstimates(r io.Reader) ([]imu.Estimate, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cols, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	seqCol, tsCol, rawAngle, rawRate, err := rawColumns(cols)
	if err != nil {
		return nil, err
	}
	var outAngle, outRate [3]int
	for a, ax := range []string{"x", "y", "z"} {
		if _, ok := cols["raw_angle_"+ax]; !ok {
			return nil, fmt.Errorf("%w: raw_angle_%s", ErrMissingColumn, ax)
		}
		if outAngle[a], err = cols.pick("angle_" + ax); err != nil {
			return nil, err
		}
		if outRate[a], err = cols.pick("rate_" + ax); err != nil {
			return nil, err
		}
	}

	var ests []imu.Estimate
	p := rowParser{line: 1}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return ests, nil
		}
		if err != nil {
			return nil, err
		}
		p.line++
		var e imu.Estimate
		e.Seq = p.uint(rec, seqCol)
		e.TimestampNanos = p.int(rec, tsCol)
		e.Raw.Seq = e.Seq
		e.Raw.TimestampNanos = e.TimestampNanos
		for a := 0; a < 3; a++ {
			e.Raw.Angle[a] = p.float(rec, rawAngle[a])
			e.Raw.Rate[a] = p.float(rec, rawRate[a])
			e.Angle[a] = p.float(rec, outAngle[a])
			e.Rate[a] = p.float(rec, outRate[a])
		}
		if p.err != nil {
			return nil, p.err
		}
		ests = append(ests, e)
	}
}
