package xrpl

import "time"

// rippleEpochOffset is the Unix timestamp of the ripple epoch
// (2000-01-01T00:00:00Z). All XRPL time fields count seconds from it.
const rippleEpochOffset int64 = 946684800

// ToRippleTime converts a calendar instant to seconds since the ripple epoch.
func ToRippleTime(t time.Time) uint32 {
	return uint32(t.Unix() - rippleEpochOffset)
}

// FromRippleTime converts seconds since the ripple epoch to a UTC instant.
func FromRippleTime(rt uint32) time.Time {
	return time.Unix(int64(rt)+rippleEpochOffset, 0).UTC()
}
