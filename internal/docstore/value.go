package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

type sentinel string

// ServerTimestamp asks the store to stamp the field with its own clock at
// insert time.
const ServerTimestamp sentinel = "docstore.serverTimestamp"

// TimestampKey is the JSON key the SQL backends use to mark a time value:
// a time is stored as {"_ts": <unix nanoseconds>} so that it orders
// numerically inside JSON columns.
const TimestampKey = "_ts"

// Normalize converts a field value to its canonical form: integers become
// int64, floats float64, times UTC. Anything else that is not a scalar is
// rejected.
func Normalize(v any) (any, error) {
	switch v := v.(type) {
	case nil, string, bool, int64, float64, sentinel:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		return normalizeUint(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return normalizeUint(v)
	case float32:
		return float64(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("docstore: invalid number %q", v.String())
		}
		return f, nil
	case time.Time:
		return v.UTC(), nil
	default:
		return nil, fmt.Errorf("docstore: unsupported value type %T", v)
	}
}

func normalizeUint(v uint64) (any, error) {
	if v > math.MaxInt64 {
		return nil, fmt.Errorf("docstore: integer %d overflows int64", v)
	}
	return int64(v), nil
}

// ResolveFields validates names, normalizes values and replaces
// ServerTimestamp with now. The input map is not modified.
func ResolveFields(fields Fields, now time.Time) (Fields, error) {
	out := make(Fields, len(fields))
	for name, v := range fields {
		if err := ValidateName(name); err != nil {
			return nil, err
		}
		nv, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("docstore: field %s: %w", name, err)
		}
		if nv == ServerTimestamp {
			nv = now.UTC()
		}
		out[name] = nv
	}
	return out, nil
}

// Equal compares two normalized values the way an equality filter does.
// Numbers compare by value regardless of int/float representation.
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}

// Compare orders two normalized values. Values of different kinds order by
// kind: null < bool < number < string < time.
func Compare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case string:
		return strings.Compare(av, b.(string))
	case time.Time:
		return av.Compare(b.(time.Time))
	default:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2
	case string:
		return 3
	case time.Time:
		return 4
	default:
		return 5
	}
}

func toFloat(v any) float64 {
	switch v := v.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return math.NaN()
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// EncodeJSON serializes resolved fields for the SQL backends.
func EncodeJSON(fields Fields) ([]byte, error) {
	raw := make(map[string]any, len(fields))
	for name, v := range fields {
		raw[name] = EncodeValue(v)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("docstore: encoding fields: %w", err)
	}
	return data, nil
}

// EncodeValue returns the JSON representation of one normalized value.
func EncodeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return map[string]int64{TimestampKey: t.UnixNano()}
	}
	return v
}

// DecodeJSON is the inverse of EncodeJSON.
func DecodeJSON(data []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("docstore: decoding fields: %w", err)
	}

	fields := make(Fields, len(raw))
	for name, v := range raw {
		dv, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("docstore: field %s: %w", name, err)
		}
		fields[name] = dv
	}
	return fields, nil
}

func decodeValue(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		return Normalize(v)
	case map[string]any:
		n, ok := v[TimestampKey].(json.Number)
		if !ok || len(v) != 1 {
			return nil, fmt.Errorf("unsupported nested object")
		}
		nanos, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q", n.String())
		}
		return time.Unix(0, nanos).UTC(), nil
	default:
		return v, nil
	}
}
