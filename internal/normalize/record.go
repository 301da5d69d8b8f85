package normalize

import (
	"bytes"
	"encoding/json"
	"time"
)

// Field is one top-level key of a normalized record.
type Field struct {
	Key   string
	Value interface{}
}

// Record is a normalized record. Object records keep their fields in emission
// order; any other JSON value is carried unchanged in Raw.
type Record struct {
	Fields []Field
	Raw    interface{}
	// Time is the event time: the parsed server timestamp or the wall clock.
	Time           time.Time
	TimeFromServer bool
	// Err is the enrichment failure that made the record fall back, if any.
	Err error
}

// IsObject reports whether the record was a JSON object.
func (r *Record) IsObject() bool {
	return r.Fields != nil
}

// Get returns the value of a top-level field.
func (r *Record) Get(key string) (interface{}, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the field names in emission order.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON writes object records with their fields in order.
func (r Record) MarshalJSON() ([]byte, error) {
	if !r.IsObject() {
		return marshalValue(r.Raw)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalValue(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := marshalValue(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
