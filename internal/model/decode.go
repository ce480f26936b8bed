package model

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/docstore"
)

// decoder reads typed fields out of one document and remembers the first
// failure, so the FromDocument functions read top to bottom:
//
//	d := newDecoder(CollectionMembers, doc)
//	m := Member{Name: d.requiredString(FieldName)}
//	if err := d.err(); err != nil { ... }
type decoder struct {
	collection string
	doc        docstore.Document
	failure    error
}

func newDecoder(collection string, doc docstore.Document) *decoder {
	return &decoder{collection: collection, doc: doc}
}

func (d *decoder) fail(field, reason string) {
	if d.failure == nil {
		d.failure = apperror.MalformedRecord(d.collection, d.doc.ID, field, reason)
	}
}

func (d *decoder) err() error {
	if d.failure == nil && d.doc.ID == "" {
		d.fail("id", "is missing")
	}
	return d.failure
}

func (d *decoder) value(field string, required bool) (any, bool) {
	v, ok := d.doc.Fields[field]
	if !ok || v == nil {
		if required {
			d.fail(field, "is missing")
		}
		return nil, false
	}
	return v, true
}

func (d *decoder) requiredString(field string) string {
	v, ok := d.value(field, true)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(field, "is not a string")
		return ""
	}
	if s == "" {
		d.fail(field, "is empty")
	}
	return s
}

func (d *decoder) optionalString(field string) string {
	v, ok := d.value(field, false)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(field, "is not a string")
	}
	return s
}

// requiredInt accepts every integral representation the backends produce:
// Go integers from the memory store, int64 from the JSON codec, and floats
// with no fractional part.
func (d *decoder) requiredInt(field string) int {
	v, ok := d.value(field, true)
	if !ok {
		return 0
	}
	n, ok := toInt(v)
	if !ok {
		d.fail(field, "is not an integer")
	}
	return n
}

func (d *decoder) optionalInt64(field string) int64 {
	v, ok := d.value(field, false)
	if !ok {
		return 0
	}
	n, ok := toInt(v)
	if !ok {
		d.fail(field, "is not an integer")
	}
	return int64(n)
}

func (d *decoder) requiredTime(field string) time.Time {
	v, ok := d.value(field, true)
	if !ok {
		return time.Time{}
	}
	t, ok := v.(time.Time)
	if !ok {
		d.fail(field, "is not a timestamp")
		return time.Time{}
	}
	return t.UTC()
}

func (d *decoder) optionalTime(field string) time.Time {
	if _, ok := d.value(field, false); !ok {
		return time.Time{}
	}
	return d.requiredTime(field)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int64ToInt(n)
	case float64:
		// NaN fails the first test; the bounds are -2^63 and 2^63 on 64-bit
		if n != math.Trunc(n) || n < float64(math.MinInt) || n >= -float64(math.MinInt) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int64ToInt(i)
	default:
		return 0, false
	}
}

func int64ToInt(n int64) (int, bool) {
	if n < math.MinInt || n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}
