// ABOUTME: Monotonic client clock used for time synchronization
// ABOUTME: Provides microsecond timestamps immune to wall clock jumps
package sync

import "time"

// processStart anchors the monotonic client clock
var processStart = time.Now()

// ClientMicros returns the client clock in microseconds.
//
// The value is derived from the monotonic clock and counts from process
// start, so wall clock adjustments never show up as drift in the filter.
func ClientMicros() int64 {
	return time.Since(processStart).Microseconds()
}
