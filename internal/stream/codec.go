package stream

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

func vec3(v [3]float64) []interface{} {
	return []interface{}{v[0], v[1], v[2]}
}

// EstimateToStruct encodes est as a protobuf Struct. Timestamps are carried
// as decimal strings since Struct numbers are doubles.
func EstimateToStruct(est imu.Estimate) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"seq":   strconv.FormatUint(est.Seq, 10),
		"ts_ns": strconv.FormatInt(est.TimestampNanos, 10),
		"angle": vec3(est.Angle),
		"rate":  vec3(est.Rate),
		"raw": map[string]interface{}{
			"angle": vec3(est.Raw.Angle),
			"rate":  vec3(est.Raw.Rate),
		},
	})
}

func readVec3(fields map[string]*structpb.Value, key string) ([3]float64, error) {
	var out [3]float64
	v, ok := fields[key]
	if !ok {
		return out, fmt.Errorf("stream: missing field %q", key)
	}
	list := v.GetListValue()
	if list == nil || len(list.Values) != 3 {
		return out, fmt.Errorf("stream: field %q is not a 3-vector", key)
	}
	for i, item := range list.Values {
		n, ok := item.Kind.(*structpb.Value_NumberValue)
		if !ok {
			return out, fmt.Errorf("stream: field %q[%d] is not a number", key, i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

func readInt(fields map[string]*structpb.Value, key string, unsigned bool) (uint64, int64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, 0, fmt.Errorf("stream: missing field %q", key)
	}
	s := v.GetStringValue()
	if unsigned {
		u, err := strconv.ParseUint(s, 10, 64)
		return u, 0, err
	}
	i, err := strconv.ParseInt(s, 10, 64)
	return 0, i, err
}

// StructToEstimate decodes a Struct produced by EstimateToStruct.
func StructToEstimate(s *structpb.Struct) (imu.Estimate, error) {
	var est imu.Estimate
	if s == nil {
		return est, fmt.Errorf("stream: nil message")
	}
	f := s.GetFields()

	seq, _, err := readInt(f, "seq", true)
	if err != nil {
		return est, fmt.Errorf("stream: bad seq: %w", err)
	}
	_, ts, err := readInt(f, "ts_ns", false)
	if err != nil {
		return est, fmt.Errorf("stream: bad ts_ns: %w", err)
	}
	est.Seq, est.TimestampNanos = seq, ts
	est.Raw.Seq, est.Raw.TimestampNanos = seq, ts

	if est.Angle, err = readVec3(f, "angle"); err != nil {
		return est, err
	}
	if est.Rate, err = readVec3(f, "rate"); err != nil {
		return est, err
	}

	rawVal, ok := f["raw"]
	if !ok || rawVal.GetStructValue() == nil {
		return est, fmt.Errorf("stream: missing field %q", "raw")
	}
	raw := rawVal.GetStructValue().GetFields()
	if est.Raw.Angle, err = readVec3(raw, "angle"); err != nil {
		return est, err
	}
	if est.Raw.Rate, err = readVec3(raw, "rate"); err != nil {
		return est, err
	}
	return est, nil
}
