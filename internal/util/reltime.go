// Package util provides small helpers shared by the display paths.
package util

import (
	"strconv"
	"time"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
	secondsPerWeek   = 7 * secondsPerDay
)

// RelativeTime renders the time elapsed from event to now using the coarsest
// unit that fits: "{s}s", "{m}m", "{h}h", "{d}d", then "{w}w" without an upper
// bound. Values are truncated toward zero.
//
// An event after now (clock skew) renders as "0s".
func RelativeTime(event, now time.Time) string {
	secs := int64(now.Sub(event) / time.Second)
	if secs < 0 {
		secs = 0
	}

	switch {
	case secs < secondsPerMinute:
		return strconv.FormatInt(secs, 10) + "s"
	case secs < secondsPerHour:
		return strconv.FormatInt(secs/secondsPerMinute, 10) + "m"
	case secs < secondsPerDay:
		return strconv.FormatInt(secs/secondsPerHour, 10) + "h"
	case secs < secondsPerWeek:
		return strconv.FormatInt(secs/secondsPerDay, 10) + "d"
	default:
		return strconv.FormatInt(secs/secondsPerWeek, 10) + "w"
	}
}
