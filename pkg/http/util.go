package http

import (
	"time"

	xutil "VolDesk/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseFloatDefault parses string to float64 or returns default if empty/invalid.
func ParseFloatDefault(s string, def float64) float64 { return xutil.ParseFloatDefault(s, def) }

// ParseTime tries RFC3339, RFC3339Nano, date-only, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }
