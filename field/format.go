package field

import (
	"fmt"
	"strconv"
	"time"
)

// Format converts a canonical value of kind k into display text.
func Format(k Kind, v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		if k == KindDate {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.DateTime)
	case time.Duration:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}
