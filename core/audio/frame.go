package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrMalformedFrame = errors.New("malformed audio frame")

// Frame is one encoded block of captured audio, ready to be streamed.
//
// Frames are immutable once encoded. Data holds little-endian signed 16-bit
// PCM samples.
type Frame struct {
	Seq      uint64
	Data     []byte
	Encoding EncodingInfo
}

func (f Frame) MIMEType() string { return f.Encoding.MIMEType() }

// Base64 returns the frame payload in its wire representation.
func (f Frame) Base64() string { return base64.StdEncoding.EncodeToString(f.Data) }

func (f Frame) Samples() int {
	if size := f.Encoding.Format.ByteSize(); size > 0 {
		return len(f.Data) / size
	}
	return 0
}

func (f Frame) Duration() time.Duration { return f.Encoding.Duration(len(f.Data)) }

// Encoder converts normalised float samples into linear16 frames.
//
// FrameSamples fixes the expected input length; zero accepts any non-empty
// input.
type Encoder struct {
	Encoding     EncodingInfo
	FrameSamples int
}

func NewEncoder(encoding EncodingInfo, frameSamples int) Encoder {
	if encoding.IsZero() {
		encoding = CaptureEncodingInfo()
	}
	return Encoder{Encoding: encoding, FrameSamples: frameSamples}
}

// Encode scales samples in [-1, 1] to 16-bit integers, clamping anything
// outside the representable range, and tags the result with seq.
func (e Encoder) Encode(seq uint64, samples []float32) (Frame, error) {
	if len(samples) == 0 {
		return Frame{}, fmt.Errorf("%w: no samples", ErrMalformedFrame)
	}
	if e.FrameSamples > 0 && len(samples) != e.FrameSamples {
		return Frame{}, fmt.Errorf("%w: expected %d samples, got %d", ErrMalformedFrame, e.FrameSamples, len(samples))
	}

	encoding := e.Encoding
	if encoding.IsZero() {
		encoding = CaptureEncodingInfo()
	}

	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(FloatToInt16(sample)))
	}

	return Frame{Seq: seq, Data: data, Encoding: encoding}, nil
}

// FloatToInt16 applies sample*32768 fixed point scaling clamped to the int16
// range. NaN maps to silence.
func FloatToInt16(sample float32) int16 {
	if math.IsNaN(float64(sample)) {
		return 0
	}
	scaled := float64(sample) * 32768
	if scaled >= math.MaxInt16 {
		return math.MaxInt16
	}
	if scaled <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(scaled)
}
