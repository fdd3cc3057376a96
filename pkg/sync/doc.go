// ABOUTME: Clock synchronization package
// ABOUTME: Provides a Kalman filter for NTP-style clock sync with Resonate servers
// Package sync provides clock synchronization for precise audio timing.
//
// TimeFilter turns noisy client/time round trips into an offset and drift
// estimate so that client timestamps can be translated into the server's
// time domain and back.
//
// Example:
//
//	filter := sync.NewTimeFilter()
//	filter.Update(measurement, maxError, sync.ClientMicros())
//	if filter.IsSynchronized() {
//		serverNow := filter.ComputeServerTime(sync.ClientMicros())
//	}
package sync
