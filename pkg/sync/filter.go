// ABOUTME: Two-state Kalman filter for NTP-style clock synchronization
// ABOUTME: Tracks offset AND drift between the client and server clocks
package sync

import (
	"math"
	"sync"
)

const (
	// DefaultProcessStdDev is the per-microsecond standard deviation of
	// offset wander injected on every prediction step.
	DefaultProcessStdDev = 0.01

	// DefaultForgetFactor scales covariance when a large residual suggests
	// a network disruption or a server clock jump.
	DefaultForgetFactor = 1.001

	// forgettingCutoff is the fraction of max_error a residual must exceed
	// before adaptive forgetting kicks in.
	forgettingCutoff = 0.75

	// forgettingWarmup is the number of samples collected before adaptive
	// forgetting is enabled.
	forgettingWarmup = 100
)

// TimeAnchor is the offset/drift snapshot used for time translation
// between filter updates.
type TimeAnchor struct {
	LastUpdate int64   // Client time (µs) of the update that produced this anchor
	Offset     float64 // Server - client (µs)
	Drift      float64 // Offset change per client µs
}

// TimeFilter estimates the offset and drift between the client and server
// clocks from round-trip samples. State vector is [offset, drift].
type TimeFilter struct {
	mu sync.RWMutex

	lastUpdate int64
	count      uint32

	offset float64
	drift  float64

	offsetVar      float64
	offsetDriftCov float64
	driftVar       float64

	processVar float64
	forgetVar  float64

	anchor TimeAnchor
}

// NewTimeFilter creates a filter with the default tuning.
func NewTimeFilter() *TimeFilter {
	return NewTimeFilterWith(DefaultProcessStdDev, DefaultForgetFactor)
}

// NewTimeFilterWith creates a filter with explicit process noise and
// forgetting factor.
func NewTimeFilterWith(processStdDev, forgetFactor float64) *TimeFilter {
	f := &TimeFilter{
		processVar: processStdDev * processStdDev,
		forgetVar:  forgetFactor * forgetFactor,
	}
	f.resetLocked()
	return f
}

// Update feeds one round-trip sample into the filter.
//
// measurement is ((T2-T1)+(T3-T4))/2, maxError is ((T4-T1)-(T3-T2))/2 and
// timeAdded is the client time (µs) at which the sample was observed. A
// sample observed at the same client time as the previous one is ignored.
func (f *TimeFilter) Update(measurement, maxError float64, timeAdded int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count > 0 && timeAdded == f.lastUpdate {
		return
	}

	dt := float64(timeAdded - f.lastUpdate)
	f.lastUpdate = timeAdded

	measurementVar := maxError * maxError

	switch f.count {
	case 0:
		f.count++
		f.offset = measurement
		f.offsetVar = measurementVar
		f.drift = 0
		f.storeAnchor()
		return

	case 1:
		f.count++
		f.drift = (measurement - f.offset) / dt
		f.driftVar = (f.offsetVar + measurementVar) / dt
		f.offset = measurement
		f.offsetVar = measurementVar
		f.storeAnchor()
		return
	}

	// Predict: x = F x, P = F P F^T + Q with F = [1 dt; 0 1].
	// Process noise only enters the offset term; drift is taken as stable.
	predicted := f.offset + f.drift*dt
	driftVar := f.driftVar
	offsetDriftCov := f.offsetDriftCov + f.driftVar*dt
	offsetVar := f.offsetVar + 2*f.offsetDriftCov*dt + f.driftVar*dt*dt + dt*f.processVar

	residual := measurement - predicted

	if f.count < forgettingWarmup {
		f.count++
	} else if residual > maxError*forgettingCutoff {
		driftVar *= f.forgetVar
		offsetDriftCov *= f.forgetVar
		offsetVar *= f.forgetVar
	}

	// Update with H = [1 0].
	innovationVar := offsetVar + measurementVar
	var offsetGain, driftGain float64
	if innovationVar > 0 {
		offsetGain = offsetVar / innovationVar
		driftGain = offsetDriftCov / innovationVar
	}

	f.offset = predicted + offsetGain*residual
	f.drift += driftGain * residual

	// P = (I - K H) P
	f.driftVar = driftVar - driftGain*offsetDriftCov
	f.offsetDriftCov = offsetDriftCov - driftGain*offsetVar
	f.offsetVar = offsetVar - offsetGain*offsetVar

	f.storeAnchor()
}

// storeAnchor snapshots the current estimate (must hold f.mu)
func (f *TimeFilter) storeAnchor() {
	f.anchor = TimeAnchor{
		LastUpdate: f.lastUpdate,
		Offset:     f.offset,
		Drift:      f.drift,
	}
}

// ComputeServerTime converts a client timestamp (µs) to server time (µs).
func (f *TimeFilter) ComputeServerTime(clientTime int64) int64 {
	a := f.Anchor()
	dt := float64(clientTime - a.LastUpdate)
	return int64(math.Round(float64(clientTime) + a.Offset + a.Drift*dt))
}

// ComputeClientTime converts a server timestamp (µs) to client time (µs).
//
//	server = client + offset + drift*(client - last)
//	client = (server - offset + drift*last) / (1 + drift)
func (f *TimeFilter) ComputeClientTime(serverTime int64) int64 {
	a := f.Anchor()
	numerator := float64(serverTime) - a.Offset + a.Drift*float64(a.LastUpdate)
	return int64(math.Round(numerator / (1.0 + a.Drift)))
}

// Reset returns the filter to its unsynchronized state.
func (f *TimeFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
}

func (f *TimeFilter) resetLocked() {
	f.lastUpdate = 0
	f.count = 0
	f.offset = 0
	f.drift = 0
	f.offsetVar = math.Inf(1)
	f.offsetDriftCov = 0
	f.driftVar = 0
	f.anchor = TimeAnchor{}
}

// Anchor returns the current time anchor.
func (f *TimeFilter) Anchor() TimeAnchor {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.anchor
}

// Count returns the number of samples accepted (saturates once adaptive
// forgetting is enabled).
func (f *TimeFilter) Count() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// IsSynchronized reports whether at least two samples were accepted and
// the offset variance is finite.
func (f *TimeFilter) IsSynchronized() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count >= 2 && !math.IsInf(f.offsetVar, 0) && !math.IsNaN(f.offsetVar)
}

// Error returns the offset standard deviation estimate in µs (+Inf before
// the first sample).
func (f *TimeFilter) Error() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return math.Round(math.Sqrt(f.offsetVar))
}

// Covariance returns the offset variance estimate in µs².
func (f *TimeFilter) Covariance() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return math.Round(f.offsetVar)
}

// Offset returns the filtered offset in µs.
func (f *TimeFilter) Offset() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.offset
}

// Drift returns the filtered drift (µs per µs).
func (f *TimeFilter) Drift() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.drift
}
