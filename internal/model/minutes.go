package model

import (
	"strconv"
	"strings"
	"time"
)

// Minutes is a duration carried as a whole number of minutes on the wire.
type Minutes time.Duration

// Duration returns the offset as a time.Duration.
func (m Minutes) Duration() time.Duration { return time.Duration(m) }

func (m Minutes) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(time.Duration(m) / time.Minute))), nil
}

// UnmarshalJSON parses leniently: JSON numbers, numeric strings, and
// fractional values are all accepted; anything else decodes as zero.
func (m *Minutes) UnmarshalJSON(data []byte) error {
	*m = Minutes(time.Duration(lenientInt(data, 0)) * time.Minute)
	return nil
}

// lenientInt extracts an integer from a raw JSON value, tolerating
// quoted numbers and fractions. Returns fallback when nothing numeric
// can be recovered.
func lenientInt(data []byte, fallback int) int {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return fallback
}
