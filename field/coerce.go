package field

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
)

// ErrInvalidValue is returned when a raw value cannot be coerced to a kind.
var ErrInvalidValue = errors.New("invalid value")

// TimeOfDayLayout is the canonical representation of time-of-day values.
const TimeOfDayLayout = "15:04:05"

// Coerce converts the raw request value of lookup l into the Go value the
// stores compare against.
//
//	integer, foreign key, many-to-many  int64 (string if not numeric)
//	float, decimal                      float64
//	char, text, json                    string
//	boolean                             bool
//	date, datetime                      time.Time
//	time                                string "15:04:05"
//	duration                            time.Duration
//	uuid                                canonical string
//
// isnull comparisons always coerce to bool.
func (l Lookup) Coerce(raw string) (any, error) {
	if op := l.Comparison(); op != nil && op.Name == "isnull" {
		return coerceBool(raw)
	}
	return Coerce(l.Kind(), raw)
}

// Coerce converts raw into the canonical Go value for kind k.
func Coerce(k Kind, raw string) (any, error) {
	s := strings.TrimSpace(raw)
	switch k {
	case KindChar, KindText, KindJSON:
		return raw, nil
	case KindInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, raw)
		}
		return n, nil
	case KindForeignKey, KindManyToMany:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if s == "" {
			return nil, fmt.Errorf("%w: empty key", ErrInvalidValue)
		}
		return s, nil
	case KindFloat, KindDecimal:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, raw)
		}
		return f, nil
	case KindBoolean:
		return coerceBool(s)
	case KindDate:
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a date: %v", ErrInvalidValue, raw, err)
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case KindDateTime:
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a datetime: %v", ErrInvalidValue, raw, err)
		}
		return t.UTC(), nil
	case KindTime:
		for _, layout := range []string{TimeOfDayLayout, "15:04"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(TimeOfDayLayout), nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not a time of day", ErrInvalidValue, raw)
	case KindDuration:
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a duration", ErrInvalidValue, raw)
		}
		return time.Duration(secs * float64(time.Second)), nil
	case KindUUID:
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a uuid", ErrInvalidValue, raw)
		}
		return id.String(), nil
	}
	return nil, fmt.Errorf("%w: unsupported kind %s", ErrInvalidValue, k)
}

func coerceBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "on", "yes", "t", "y":
		return true, nil
	case "false", "0", "off", "no", "f", "n":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, s)
}
