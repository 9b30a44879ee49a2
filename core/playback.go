package live

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/metrics"
)

// Speaker plays decoded speech audio at requested times. Now is the
// monotonic clock chunks are scheduled against.
//
// onFinish, if not nil, is called once when the chunk played to its end. It
// is not called for chunks stopped through [Playback.Stop]. It may be called
// from any goroutine.
type Speaker interface {
	Clock
	Schedule(chunk audio.Chunk, startAt time.Time, onFinish func()) (Playback, error)
}

// Playback is a handle to a scheduled chunk.
type Playback interface {
	// Stop cancels the chunk, silencing it immediately if it is playing.
	Stop()
}

// ScheduledChunk describes where a chunk was placed on the playback timeline.
type ScheduledChunk struct {
	ID    string
	Seq   uint64
	Start time.Time
	End   time.Time

	playback Playback
}

// playbackScheduler places chunks back to back on the speaker timeline.
//
// It owns the playback cursor, the earliest time the next chunk may start,
// and the set of scheduled chunks that have not finished yet. It is owned by
// the session goroutine and is not safe for concurrent use.
type playbackScheduler struct {
	speaker Speaker
	clock   Clock
	metrics *metrics.Metrics

	// onFinish is handed the chunk ID once the speaker reports completion.
	onFinish func(id string)

	cursor  time.Time
	pending map[string]ScheduledChunk
}

func newPlaybackScheduler(speaker Speaker, m *metrics.Metrics, onFinish func(id string)) *playbackScheduler {
	var clock Clock = systemClock{}
	if speaker != nil {
		clock = speaker
	}
	if onFinish == nil {
		onFinish = func(string) {}
	}

	return &playbackScheduler{
		speaker:  speaker,
		clock:    clock,
		metrics:  m,
		onFinish: onFinish,
		pending:  map[string]ScheduledChunk{},
	}
}

// Enqueue schedules chunk at max(cursor, now) and advances the cursor by the
// chunk duration.
func (s *playbackScheduler) Enqueue(chunk audio.Chunk) (ScheduledChunk, error) {
	if s.speaker == nil {
		return ScheduledChunk{}, fmt.Errorf("speaker %w", ErrNotConfigured)
	}

	now := s.clock.Now()
	startAt := maxTime(s.cursor, now)
	scheduled := ScheduledChunk{
		ID:    uuid.NewString(),
		Seq:   chunk.Seq,
		Start: startAt,
		End:   startAt.Add(chunk.Duration()),
	}

	id := scheduled.ID
	playback, err := s.speaker.Schedule(chunk, startAt, func() { s.onFinish(id) })
	if err != nil {
		return ScheduledChunk{}, fmt.Errorf("failed to schedule chunk %d: %w", chunk.Seq, err)
	}
	scheduled.playback = playback

	s.cursor = scheduled.End
	s.pending[scheduled.ID] = scheduled
	s.metrics.RecordChunkScheduled(startAt.Sub(now))

	return scheduled, nil
}

// Finished removes a chunk that played to its end. Unknown IDs, e.g. chunks
// already cancelled by an interruption, are ignored.
func (s *playbackScheduler) Finished(id string) bool {
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

// Interrupt stops every pending chunk, clears the pending set and pulls the
// cursor back to now. It returns how many chunks were cancelled.
func (s *playbackScheduler) Interrupt() int {
	cancelled := len(s.pending)
	for id, scheduled := range s.pending {
		if scheduled.playback != nil {
			scheduled.playback.Stop()
		}
		delete(s.pending, id)
	}
	s.cursor = s.clock.Now()

	return cancelled
}

func (s *playbackScheduler) Pending() int { return len(s.pending) }

func (s *playbackScheduler) Cursor() time.Time { return s.cursor }
