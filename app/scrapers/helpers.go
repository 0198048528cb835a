package scrapers

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// parseTimestamp parses a site-reported timestamp leniently; epoch
// seconds and most textual formats are accepted. Unparseable values
// fall back to the crawl time.
func parseTimestamp(value string, fallback time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}

	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0)
	}

	if t, err := dateparse.ParseAny(value); err == nil {
		return t
	}

	return fallback
}

// parseCount extracts the first run of digits from text ("142 points",
// "[23]"). Missing digits yield zero.
func parseCount(text string) int {
	start := -1
	for i, c := range text {
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, _ := strconv.Atoi(text[start:i])
			return n
		}
	}
	if start >= 0 {
		n, _ := strconv.Atoi(text[start:])
		return n
	}
	return 0
}

// flexID normalizes a JSON field that upstream sites report as either
// a string or a number into its string form.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string {
	return string(f)
}

// flexInt normalizes a JSON counter that may arrive as a number or a
// numeric string. Anything else reads as zero.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(n)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(int(n))
	return nil
}

func (f flexInt) Int() int {
	return int(f)
}
