package handler

import (
	"strings"
	"time"

	"github.com/sifan077/shortener/internal/app/analytics"
	"github.com/sifan077/shortener/internal/app/apperror"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts RFC 3339 and a few common shorter forms. Times without a zone are UTC.
func parseTime(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperror.Validation("Invalid date format for "+field, field, map[string]any{"value": raw})
}

func optionalTime(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := parseTime(field, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseRange(start, end string) (analytics.Range, error) {
	var r analytics.Range
	var err error
	if r.Start, err = optionalTime("start_date", start); err != nil {
		return r, err
	}
	if r.End, err = optionalTime("end_date", end); err != nil {
		return r, err
	}
	return r, nil
}
