// Package stream turns the stdout of an analysis engine into records.
//
// The engine writes newline-delimited text. Most lines are JSON objects
// carrying at least "game" and "sub_type"; the rest are free-form
// diagnostics. A Framer cuts the byte stream into lines and Classify
// decides, per line, whether it is Structured or Raw.
package stream

import (
	"encoding/json"
	"math"
	"strings"
)

// Kind names the record variant.
type Kind string

const (
	KindStructured Kind = "structured"
	KindRaw        Kind = "raw"
)

// Record is either a Structured or a Raw line.
type Record interface {
	Kind() Kind
}

// Structured is a line that decoded as a JSON object.
type Structured struct {
	Fields map[string]any
	Line   string
}

// Raw is a line that did not decode as a JSON object.
type Raw struct {
	Text string
}

func (Structured) Kind() Kind { return KindStructured }
func (Raw) Kind() Kind        { return KindRaw }

// Classify decodes line as a JSON object. Anything else, including valid
// JSON that is not an object, becomes a Raw record carrying the trimmed text.
func Classify(line string) Record {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Raw{Text: trimmed}
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil || fields == nil {
		return Raw{Text: trimmed}
	}
	return Structured{Fields: fields, Line: trimmed}
}

// Game returns the domain tag, or "" when absent or not a string.
func (s Structured) Game() string {
	return s.String("game")
}

// SubType returns the dispatch sub-type, or "" when absent.
func (s Structured) SubType() string {
	return s.String("sub_type")
}

// String returns the named field if it is a string.
func (s Structured) String(key string) string {
	v, _ := s.Fields[key].(string)
	return v
}

// Value returns the named field and whether it was present and non-null.
func (s Structured) Value(key string) (any, bool) {
	v, ok := s.Fields[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Int64 returns the named field as an integer. JSON numbers are floored;
// numeric strings are accepted since some engines quote their timestamps.
// Values outside the int64 range are rejected.
func (s Structured) Int64(key string) (int64, bool) {
	switch v := s.Fields[key].(type) {
	case float64:
		return floorInt64(v)
	case string:
		var n json.Number = json.Number(strings.TrimSpace(v))
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floorInt64(f)
		}
	}
	return 0, false
}

// floorInt64 floors f, failing for NaN, infinities and anything that does
// not fit in an int64. float64(math.MaxInt64) is 2^63, so the upper bound
// is exclusive.
func floorInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(math.Floor(f)), true
}

// Content returns the "content" field when it carries something, otherwise
// the whole field map. Empty strings, zero and false count as nothing.
func (s Structured) Content() any {
	v, ok := s.Value("content")
	if !ok {
		return s.Fields
	}
	switch c := v.(type) {
	case string:
		if c == "" {
			return s.Fields
		}
	case float64:
		if c == 0 {
			return s.Fields
		}
	case bool:
		if !c {
			return s.Fields
		}
	}
	return v
}
