package dto

import (
	"fmt"
	"strings"
	"time"
)

// parseDay accepts a calendar date as YYYY-MM-DD or a full RFC 3339 timestamp.
func parseDay(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

func parseOptionalDay(field string, raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := parseDay(field, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
