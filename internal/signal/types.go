package signal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout is the connection timeout used when callers have no
// better value, matching the control-system client's own default.
const DefaultTimeout = 10 * time.Second

// Severity is an ordered validity indicator attached to every reading.
// Higher values are worse; combining readings takes the maximum.
type Severity int

// Severity levels, from healthy to unusable.
const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityMajor
	SeverityInvalid
)

// String returns the lowercase name of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityMinor:
		return "minor"
	case SeverityMajor:
		return "major"
	case SeverityInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity converts a severity name back to its level.
// Unrecognised names map to SeverityInvalid.
func ParseSeverity(name string) Severity {
	switch strings.ToLower(name) {
	case "none", "":
		return SeverityNone
	case "minor":
		return SeverityMinor
	case "major":
		return SeverityMajor
	default:
		return SeverityInvalid
	}
}

// MarshalJSON encodes the severity as its name, keeping wire payloads
// and API responses readable.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*s = ParseSeverity(name)
	return nil
}

// Reading is a control-point value at a single moment, with the metadata
// needed to judge how fresh and trustworthy it is.
type Reading struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
}

// Datatype declares the value type a control point reports and accepts.
// Values crossing the control-point boundary are converted through it,
// so callers always see a consistent Go type regardless of what the
// underlying transport or transform produced.
type Datatype string

// Supported datatypes. The empty Datatype passes values through unchanged.
const (
	DatatypeFloat64 Datatype = "float64"
	DatatypeInt64   Datatype = "int64"
	DatatypeBool    Datatype = "bool"
	DatatypeString  Datatype = "string"
)

// Convert coerces v to the declared datatype.
// Numeric kinds convert across each other; everything else must already
// have the declared type. Returns ErrConversion if v cannot be coerced.
func (d Datatype) Convert(v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrConversion)
	}
	switch d {
	case "":
		return v, nil
	case DatatypeFloat64:
		f, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not numeric", ErrConversion, v)
		}
		return f, nil
	case DatatypeInt64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
		f, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not numeric", ErrConversion, v)
		}
		return int64(f), nil
	case DatatypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a bool", ErrConversion, v)
		}
		return b, nil
	case DatatypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not a string", ErrConversion, v)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown datatype %q", ErrConversion, string(d))
	}
}

// toFloat64 widens any Go numeric kind to float64.
// JSON decoding yields float64, SQLite yields int64, transforms may
// produce plain ints; all of them meet here.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
