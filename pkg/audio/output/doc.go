// ABOUTME: Audio output package for scheduled playback
// ABOUTME: Provides the Sink interface with malgo, oto and null backends
// Package output provides scheduling audio sinks.
//
// Every backend mixes scheduled buffers on a Timeline whose clock is the
// number of frames the device has consumed. Two hardware strategies are
// offered: Malgo keeps the device running (rendering silence) between
// streams, Oto suspends its context when a stream ends. Null is driven by
// wall time and needs no audio hardware.
//
// Example:
//
//	sink, err := output.New(output.BackendMalgo, logger)
//	err = sink.Open(format)
//	h, err := sink.Schedule(buf, sink.Now()+0.2)
package output
