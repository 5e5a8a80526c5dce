package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration accepts a bare integer as milliseconds or any Go duration
// string such as "250ms" or "1.5s". Negative values are rejected.
func ParseDuration(input string) (time.Duration, error) {
	input = strings.TrimSpace(input)
	if ms, err := strconv.Atoi(input); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("duration must not be negative: %s", input)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	duration, err := time.ParseDuration(input)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %q. Valid formats: milliseconds (300) or a duration (300ms, 1s)", input)
	}
	if duration < 0 {
		return 0, fmt.Errorf("duration must not be negative: %s", input)
	}
	return duration, nil
}
