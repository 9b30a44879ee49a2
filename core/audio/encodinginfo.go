package audio

import (
	"fmt"
	"time"
)

const (
	// CaptureSampleRate is the rate microphone audio is captured and streamed at.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate synthesized speech is delivered at.
	PlaybackSampleRate = 24000
	// DefaultFrameSamples is the number of samples in one captured frame,
	// roughly 256ms at 16kHz.
	DefaultFrameSamples = 4096
)

func CaptureEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: CaptureSampleRate, Format: EncodingLinear16}
}

func PlaybackEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: PlaybackSampleRate, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// MIMEType returns the wire tag for raw PCM in this encoding, e.g.
// "audio/pcm;rate=16000".
func (e EncodingInfo) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", e.SampleRate)
}

// Duration returns how long byteLen bytes of mono audio play for.
func (e EncodingInfo) Duration(byteLen int) time.Duration {
	if e.SampleRate <= 0 || e.Format.ByteSize() <= 0 {
		return 0
	}
	samples := int64(byteLen / e.Format.ByteSize())
	return time.Duration(samples) * time.Second / time.Duration(e.SampleRate)
}

// Samples returns the number of mono samples that play for duration.
func (e EncodingInfo) Samples(duration time.Duration) int {
	if duration <= 0 || e.SampleRate <= 0 {
		return 0
	}
	return int(int64(duration) * int64(e.SampleRate) / int64(time.Second))
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	if e == EncodingLinear16 {
		return 2
	}
	return -1
}

const EncodingLinear16 encodingFormat = "linear16"
