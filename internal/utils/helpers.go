package utils

import (
	"time"
)

// StrOrEmpty dereferences optional text fields.
func StrOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// FormatYMD renders an optional date as YYYY-MM-DD, or "" when absent.
func FormatYMD(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func ParseYMD(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	// strip time to midnight UTC to match DATE semantics
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ParseOptionalYMD returns nil for blank input.
func ParseOptionalYMD(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseYMD(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
