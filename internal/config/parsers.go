package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashlineldridge/metron/internal/plan"
)

// lookupSetting searches for a value in settings using multiple candidate keys.
// It performs case-insensitive matching by also checking lowercase versions.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		lower := strings.ToLower(key)
		if val, ok := settings[lower]; ok {
			return val, true
		}
	}
	return nil, false
}

// asString converts an interface value to a string.
// Handles nil, string, fmt.Stringer, []byte, and falls back to fmt.Sprint.
func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// asBool converts an interface value to a bool.
// Handles bool and string representations.
func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, err
		}
		return b, nil
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asInt converts an interface value to an int.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, err
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}

// asFloat64 converts an interface value to a float64.
func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported float type %T", value)
	}
}

// asDuration converts an interface value to a time.Duration.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, err
		}
		return d, nil
	case int, int64:
		iv, _ := asInt(v)
		return time.Duration(iv) * time.Second, nil
	case float64:
		iv, _ := asInt(v)
		return time.Duration(iv) * time.Second, nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

// asStringMap converts an interface value to a map[string]string.
func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case map[string]string:
		result := make(map[string]string, len(v))
		for k, val := range v {
			result[k] = val
		}
		return result, nil
	case map[string]interface{}:
		result := make(map[string]string, len(v))
		for k, val := range v {
			str, err := asString(val)
			if err != nil {
				return nil, err
			}
			result[k] = str
		}
		return result, nil
	case map[interface{}]interface{}:
		result := make(map[string]string, len(v))
		for k, val := range v {
			key, err := asString(k)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(key) == "" {
				return nil, fmt.Errorf("header key cannot be empty")
			}
			str, err := asString(val)
			if err != nil {
				return nil, err
			}
			result[key] = str
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported headers type %T", value)
	}
}

// asStringSlice converts an interface value to a []string.
func asStringSlice(value interface{}) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = str
		}
		return result, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
}

// ParseHeaders turns repeated "K:V" header flag values into a map, the way
// --header is specified on the command line.
func ParseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, kv := range raw {
		idx := strings.Index(kv, ":")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid header %q: expected K:V", kv)
		}
		key := strings.TrimSpace(kv[:idx])
		val := strings.TrimSpace(kv[idx+1:])
		if key == "" {
			return nil, fmt.Errorf("invalid header %q: empty key", kv)
		}
		headers[key] = val
	}
	return headers, nil
}

// ParseSegments turns the parallel --rate/--duration argument lists into
// plan.Segments. Each rate element is "n" (fixed) or "n:m" (ramp from n to
// m); each duration element is a Go duration string or "forever" (legal
// only on the last, fixed-rate segment). len(rates) must equal
// len(durations).
func ParseSegments(rates, durations []string) ([]plan.Segment, error) {
	if len(rates) != len(durations) {
		return nil, fmt.Errorf("--rate and --duration must have the same number of segments (%d != %d)", len(rates), len(durations))
	}
	segments := make([]plan.Segment, 0, len(rates))
	for i := range rates {
		seg, err := parseSegment(rates[i], durations[i])
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func parseSegment(rate, duration string) (plan.Segment, error) {
	rate = strings.TrimSpace(rate)
	duration = strings.TrimSpace(duration)

	var seg plan.Segment
	if from, to, ok := strings.Cut(rate, ":"); ok {
		fromRPS, err := strconv.ParseFloat(strings.TrimSpace(from), 64)
		if err != nil {
			return seg, fmt.Errorf("invalid rate %q: %w", rate, err)
		}
		toRPS, err := strconv.ParseFloat(strings.TrimSpace(to), 64)
		if err != nil {
			return seg, fmt.Errorf("invalid rate %q: %w", rate, err)
		}
		seg.Kind = plan.Ramp
		seg.FromRPS = fromRPS
		seg.ToRPS = toRPS
	} else {
		fromRPS, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return seg, fmt.Errorf("invalid rate %q: %w", rate, err)
		}
		seg.Kind = plan.Fixed
		seg.FromRPS = fromRPS
	}

	if strings.EqualFold(duration, "forever") {
		if seg.Kind == plan.Ramp {
			return seg, fmt.Errorf("forever duration is not permitted on a ramp rate %q", rate)
		}
		seg.Forever = true
		return seg, nil
	}

	d, err := time.ParseDuration(duration)
	if err != nil {
		return seg, fmt.Errorf("invalid duration %q: %w", duration, err)
	}
	seg.Duration = d
	return seg, nil
}
