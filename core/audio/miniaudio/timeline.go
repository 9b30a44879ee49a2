package miniaudio

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
)

// timeline mixes scheduled speech into device buffers and keeps time in
// rendered frames.
type timeline struct {
	rate   int
	epoch  time.Time
	played int64
	queued []*scheduledAudio

	mu sync.Mutex
}

type scheduledAudio struct {
	timeline *timeline
	start    int64
	samples  []int16
	onFinish func()
}

func newTimeline(rate int, epoch time.Time) *timeline {
	return &timeline{rate: rate, epoch: epoch}
}

func (t *timeline) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch.Add(t.duration(t.played))
}

func (t *timeline) duration(frames int64) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(t.rate)
}

// frameAt rounds to the nearest frame. Chunk durations are truncated to
// whole nanoseconds, so a start placed at the previous chunk's end can fall
// just short of its last frame.
func (t *timeline) frameAt(at time.Time) int64 {
	offset := int64(at.Sub(t.epoch))
	if offset < 0 {
		return 0
	}
	return (offset*int64(t.rate) + int64(time.Second)/2) / int64(time.Second)
}

// schedule places chunk at startAt on the timeline. A start in the past
// plays from the next rendered frame.
func (t *timeline) schedule(chunk audio.Chunk, startAt time.Time, onFinish func()) (*scheduledAudio, error) {
	if chunk.Encoding.Format != audio.EncodingLinear16 || chunk.Encoding.SampleRate != t.rate {
		return nil, fmt.Errorf("unsupported chunk encoding %s at %dHz", chunk.Encoding.Format.Name(), chunk.Encoding.SampleRate)
	}

	samples := make([]int16, chunk.SampleCount())
	for i := range samples {
		samples[i] = chunk.Sample(i)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &scheduledAudio{
		timeline: t,
		start:    max(t.frameAt(startAt), t.played),
		samples:  samples,
		onFinish: onFinish,
	}
	t.queued = append(t.queued, entry)
	return entry, nil
}

// Stop removes the entry without firing its finish callback.
func (e *scheduledAudio) Stop() {
	t := e.timeline
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queued = slices.DeleteFunc(t.queued, func(queued *scheduledAudio) bool { return queued == e })
}

func (e *scheduledAudio) end() int64 { return e.start + int64(len(e.samples)) }

func (t *timeline) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queued = nil
}

// render fills frameCount mono linear16 frames of out and advances the
// timeline. Finish callbacks run on their own goroutine so the audio thread
// never blocks on them.
func (t *timeline) render(out []byte, frameCount int) {
	if len(out) < frameCount*2 {
		frameCount = len(out) / 2
	}

	t.mu.Lock()
	from := t.played
	for i := range frameCount {
		position := from + int64(i)
		var mixed int32
		for _, entry := range t.queued {
			if position >= entry.start && position < entry.end() {
				mixed += int32(entry.samples[position-entry.start])
			}
		}
		mixed = min(max(mixed, math.MinInt16), math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(mixed)))
	}
	t.played = from + int64(frameCount)

	var finished []func()
	t.queued = slices.DeleteFunc(t.queued, func(entry *scheduledAudio) bool {
		if entry.end() > t.played {
			return false
		}
		if entry.onFinish != nil {
			finished = append(finished, entry.onFinish)
		}
		return true
	})
	t.mu.Unlock()

	if len(finished) > 0 {
		go func() {
			for _, onFinish := range finished {
				onFinish()
			}
		}()
	}
}
