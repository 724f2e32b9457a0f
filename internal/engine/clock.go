package engine

import "time"

// Clock supplies wall time for created_at, closed_at, issued_at and frame
// timestamps. Tests inject a fixed clock for byte-stable payloads.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
