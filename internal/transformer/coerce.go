package transformer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/guregu/null"
)

// CoerceNumber converts one raw stat value into a nullable number.
//
// Numbers and numeric strings (".287", "12", "-.5", "1e3") parse; everything
// else, including placeholders such as "-.--" and "*", booleans and nested
// objects, becomes null. NaN and ±Inf are null as well so the result is always
// storable. CoerceNumber never fails.
func CoerceNumber(raw any) null.Float {
	switch v := raw.(type) {
	case nil:
		return null.Float{}
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return null.FloatFrom(float64(v))
	case int64:
		return null.FloatFrom(float64(v))
	case int32:
		return null.FloatFrom(float64(v))
	case uint32:
		return null.FloatFrom(float64(v))
	case uint64:
		return null.FloatFrom(float64(v))
	case json.Number:
		return parseNumeric(string(v))
	case string:
		return parseNumeric(v)
	case []byte:
		return parseNumeric(string(v))
	case null.Float:
		if !v.Valid {
			return null.Float{}
		}
		return finite(v.Float64)
	default:
		return null.Float{}
	}
}

func parseNumeric(s string) null.Float {
	s = strings.TrimSpace(s)
	if s == "" {
		return null.Float{}
	}
	// ParseFloat accepts "Inf" and "NaN" spellings; finite() drops them.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}
	}
	return finite(f)
}

func finite(f float64) null.Float {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return null.Float{}
	}
	return null.FloatFrom(f)
}
