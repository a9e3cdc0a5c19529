// Package durfmt renders time.Duration values the way stc's log lines and
// terminal listener want them: short, unit-suffixed, and stable across
// sub-second and multi-hour runs alike.
package durfmt

import (
	"fmt"
	"time"
)

const (
	nanosPerMicrosecond = int64(time.Microsecond)
	nanosPerMillisecond = int64(time.Millisecond)
	nanosPerSecond      = int64(time.Second)
)

// ShortDur formats d using the coarsest unit that keeps at least one
// significant digit. Below a minute it prints nanoseconds as an integer
// and microseconds, milliseconds or seconds with at most one decimal place
// (a trailing ".0" is dropped), e.g. "1.5s". At a minute or more it prints
// whole minutes (or whole hours) followed by the remainder formatted the
// same way, e.g. "2m30s" or "1h0s".
func ShortDur(d time.Duration) string {
	n := d.Nanoseconds()
	switch {
	case n == 0:
		return "0s"
	case n < 0:
		return "-" + ShortDur(-d)
	case n < nanosPerMicrosecond:
		return fmt.Sprintf("%dns", n)
	case n < nanosPerMillisecond:
		return formatDecimalNumber(float64(n)/float64(nanosPerMicrosecond), "us")
	case n < nanosPerSecond:
		return formatDecimalNumber(float64(n)/float64(nanosPerMillisecond), "ms")
	case d < time.Minute:
		return formatDecimalNumber(d.Seconds(), "s")
	case d < time.Hour:
		m := int64(d / time.Minute)
		s := d - time.Duration(m)*time.Minute
		return fmt.Sprintf("%dm%s", m, ShortDur(s))
	default:
		h := int64(d / time.Hour)
		m := d - time.Duration(h)*time.Hour
		return fmt.Sprintf("%dh%s", h, ShortDur(m))
	}
}

func formatDecimalNumber(val float64, unitName string) string {
	s := fmt.Sprintf("%.1f", val)
	if len(s) > 2 && s[len(s)-2:] == ".0" {
		s = s[:len(s)-2]
	}
	return s + unitName
}
