package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var ErrMalformedAudio = errors.New("malformed audio payload")

// Chunk is a decoded buffer of synthesized speech, waiting to be played.
type Chunk struct {
	Seq      uint64
	Data     []byte
	Encoding EncodingInfo
}

func NewChunk(seq uint64, data []byte, encoding EncodingInfo) Chunk {
	if encoding.IsZero() {
		encoding = PlaybackEncodingInfo()
	}
	return Chunk{Seq: seq, Data: data, Encoding: encoding}
}

// DecodeChunk decodes a base64 linear16 payload received from the remote
// session.
func DecodeChunk(seq uint64, payload string, encoding EncodingInfo) (Chunk, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %w", ErrMalformedAudio, err)
	}

	chunk := NewChunk(seq, data, encoding)
	if size := chunk.Encoding.Format.ByteSize(); size > 1 && len(data)%size != 0 {
		return Chunk{}, fmt.Errorf("%w: %d bytes is not a whole number of samples", ErrMalformedAudio, len(data))
	}

	return chunk, nil
}

func (c Chunk) Duration() time.Duration { return c.Encoding.Duration(len(c.Data)) }

func (c Chunk) SampleCount() int {
	if size := c.Encoding.Format.ByteSize(); size > 0 {
		return len(c.Data) / size
	}
	return 0
}

// Sample returns the i-th linear16 sample. It does not bounds-check against
// other formats.
func (c Chunk) Sample(i int) int16 {
	return int16(binary.LittleEndian.Uint16(c.Data[i*2:]))
}
