// ABOUTME: Timestamp-based playback scheduler
// ABOUTME: Decodes frames, reorders them by server time and schedules them on the output
package resonate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-player/pkg/audio"
	"github.com/Resonate-Protocol/resonate-player/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-player/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-player/pkg/protocol"
)

const (
	// DefaultLookahead is the delay between anchoring a stream and its
	// first chunk playing.
	DefaultLookahead = 200 * time.Millisecond

	// DefaultDebounce is the quiet period after the last frame arrival
	// before the pending batch is sorted and scheduled.
	DefaultDebounce = 50 * time.Millisecond
)

// SchedulerStats tracks scheduler metrics
type SchedulerStats struct {
	Received  int64
	Scheduled int64
	Late      int64 // Scheduled, but clamped to the output clock
	Dropped   int64
	Queued    int // Decoded, waiting for the debounce
	Pending   int // Scheduled on the output, not finished
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithLookahead sets the anchor lookahead
func WithLookahead(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lookahead = d }
}

// WithDebounce sets the reorder window
func WithDebounce(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.debounce = d }
}

// WithSchedulerLogger sets the logger
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) SchedulerOption {
	return func(s *Scheduler) { s.recorder = r }
}

// scheduled is a buffer handed to the output
type scheduled struct {
	handle output.Handle
	end    float64 // Output clock time the buffer finishes (s)
}

// Scheduler turns timestamped audio frames into scheduled output buffers
type Scheduler struct {
	state      *State
	sink       output.Sink
	logger     *slog.Logger
	recorder   Recorder
	lookahead  time.Duration
	debounce   time.Duration
	newDecoder func(audio.Format) (decode.Decoder, error)

	mu            sync.Mutex
	decoder       decode.Decoder
	decoderFormat audio.Format
	queue         *BufferQueue
	timer         *time.Timer
	batchStart    time.Time // First arrival of the pending batch
	inFlight      []scheduled
	stats         SchedulerStats
}

// NewScheduler creates a scheduler reading the stream format and anchor
// from state and scheduling onto sink
func NewScheduler(state *State, sink output.Sink, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		state:      state,
		sink:       sink,
		recorder:   nopRecorder{},
		lookahead:  DefaultLookahead,
		debounce:   DefaultDebounce,
		newDecoder: decode.New,
		queue:      NewBufferQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "scheduler")
	}
	return s
}

// Prepare creates the decoder for format and primes the output. An
// unchanged format keeps the running decoder.
func (s *Scheduler) Prepare(format audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.decoder == nil || !s.decoderFormat.Equal(format) {
		s.closeDecoderLocked()

		dec, err := s.newDecoder(format)
		if err != nil {
			return fmt.Errorf("create decoder: %w", err)
		}
		s.decoder = dec
		s.decoderFormat = format
		s.logger.Info("decoder ready", "format", format.String())
	}

	if err := s.sink.Open(format); err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	return nil
}

func (s *Scheduler) closeDecoderLocked() {
	if s.decoder == nil {
		return
	}
	if err := s.decoder.Close(); err != nil {
		s.logger.Warn("decoder close failed", "error", err)
	}
	s.decoder = nil
	s.decoderFormat = audio.Format{}
}

// HandleFrame decodes one binary frame and queues it for scheduling.
// Frames that arrive without an active stream are dropped.
func (s *Scheduler) HandleFrame(data []byte) {
	s.recorder.ChunkReceived()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Received++

	chunk, err := protocol.ParseAudioChunk(data)
	if err != nil {
		s.dropLocked(DropMalformed)
		s.logger.Debug("dropping frame", "error", err)
		return
	}

	format, ok := s.state.Format()
	if !ok || s.decoder == nil {
		s.dropLocked(DropNoFormat)
		return
	}

	samples, err := s.decoder.Decode(chunk.Data)
	if err != nil {
		s.dropLocked(DropDecode)
		s.logger.Warn("decode failed", "timestamp", chunk.Timestamp, "error", err)
		return
	}
	if len(samples) == 0 {
		return
	}

	s.queue.Add(audio.Buffer{
		Timestamp: chunk.Timestamp,
		Samples:   samples,
		Format:    format,
	})

	// Every arrival restarts the window so a burst is sorted as one batch,
	// but a batch never waits longer than maxWait
	now := time.Now()
	if s.timer == nil {
		s.batchStart = now
	} else {
		s.timer.Stop()
	}
	wait := min(s.debounce, max(0, s.maxWait()-now.Sub(s.batchStart)))
	gen := s.state.Generation()
	s.timer = time.AfterFunc(wait, func() { s.commit(gen) })
}

// maxWait bounds how long a pending batch may be held back while frames
// keep arriving. The batch still lands inside the lookahead.
func (s *Scheduler) maxWait() time.Duration {
	return max(s.debounce, s.lookahead-s.debounce)
}

func (s *Scheduler) dropLocked(reason string) {
	s.stats.Dropped++
	s.recorder.ChunkDropped(reason)
}

// commit schedules the pending batch for generation gen
func (s *Scheduler) commit(gen uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.state.Generation() {
		return
	}
	s.timer = nil
	if s.queue.Len() == 0 {
		return
	}

	batch := s.queue.Drain()
	now := s.sink.Now()

	anchor, ok := s.state.EnsureAnchor(gen, batch[0].Timestamp, now+s.lookahead.Seconds())
	if !ok {
		return
	}

	for _, buf := range batch {
		playAt := anchor.StartOutputTime + float64(buf.Timestamp-anchor.StartServerTime)/1_000_000
		late := playAt < now
		if late {
			playAt = now
			s.stats.Late++
		}

		h, err := s.sink.Schedule(buf, playAt)
		if err != nil {
			s.dropLocked(DropOutput)
			s.logger.Warn("schedule failed", "timestamp", buf.Timestamp, "error", err)
			continue
		}

		s.inFlight = append(s.inFlight, scheduled{handle: h, end: playAt + buf.Duration().Seconds()})
		s.stats.Scheduled++
		s.recorder.ChunkScheduled(late)
	}

	s.pruneLocked(now)
}

// pruneLocked forgets handles that finished playing before now
func (s *Scheduler) pruneLocked(now float64) {
	kept := s.inFlight[:0]
	for _, sc := range s.inFlight {
		if sc.end > now {
			kept = append(kept, sc)
		}
	}
	s.inFlight = kept
}

// Flush cancels scheduled audio, drops pending chunks and starts a new
// stream generation. A debounce already in flight becomes a no-op.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Scheduler) flushLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	for _, sc := range s.inFlight {
		s.sink.Cancel(sc.handle)
	}
	s.inFlight = nil

	for range s.queue.Clear() {
		s.dropLocked(DropFlushed)
	}

	s.state.ResetAnchor()
}

// Stop flushes, releases the decoder and stops the output
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()
	s.closeDecoderLocked()
	return s.sink.Stop()
}

// Close stops playback and releases the output
func (s *Scheduler) Close() error {
	err := s.Stop()
	return errors.Join(err, s.sink.Close())
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.sink.Now())
	stats := s.stats
	stats.Queued = s.queue.Len()
	stats.Pending = len(s.inFlight)
	return stats
}
