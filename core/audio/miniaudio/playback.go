package miniaudio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	live "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/audio"
)

// Speaker plays scheduled speech on the default playback device. Its clock
// is the device sample timeline, so Now only advances while audio is being
// rendered.
type Speaker struct {
	device   *malgo.Device
	timeline *timeline

	mu sync.Mutex
}

func (c *Client) NewSpeaker() (*Speaker, error) {
	sampleRate := uint32(audio.PlaybackSampleRate)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = sampleRate / 50 // ~20ms of audio
	config.Periods = 3

	speaker := &Speaker{timeline: newTimeline(audio.PlaybackSampleRate, time.Now())}

	var err error
	if speaker.device, err = malgo.InitDevice(
		c.audioContext.Context,
		config,
		malgo.DeviceCallbacks{Data: func(pOutput, _ []byte, frameCount uint32) {
			speaker.timeline.render(pOutput, int(frameCount))
		}},
	); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize playback device: %w", live.ErrDeviceUnavailable, err)
	}

	if err := speaker.device.Start(); err != nil {
		speaker.device.Uninit()
		return nil, fmt.Errorf("%w: failed to start playback device: %w", live.ErrDeviceUnavailable, err)
	}

	return speaker, nil
}

func (s *Speaker) Now() time.Time {
	return s.timeline.Now()
}

func (s *Speaker) Schedule(chunk audio.Chunk, startAt time.Time, onFinish func()) (live.Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil, fmt.Errorf("%w: speaker closed", live.ErrDeviceUnavailable)
	}

	playback, err := s.timeline.schedule(chunk, startAt, onFinish)
	if err != nil {
		return nil, err
	}
	return playback, nil
}

func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	s.timeline.clear()
}
