package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
)

var ErrInvalidSampleLayout = errors.New("invalid PCM sample layout")

const (
	// SpeechSampleRate and SpeechChannels describe the raw PCM returned by the speech providers.
	SpeechSampleRate = 24000
	SpeechChannels   = 1

	bytesPerSample = 2
	sampleScale    = 32768.0
)

// PCMBuffer holds normalized samples de-interleaved by channel.
type PCMBuffer struct {
	SampleRate int
	Channels   int
	// Samples[c][i] is frame i of channel c, in [-1, 1).
	Samples [][]float32
}

// BytesToPCM interprets data as interleaved signed 16-bit little-endian samples.
// A byte count that does not divide into whole frames is rejected rather than truncated.
func BytesToPCM(data []byte, sampleRate int, channels int) (*PCMBuffer, error) {
	if channels < 1 {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: channels must be >= 1, got %d", ErrInvalidSampleLayout, channels))
	}
	if sampleRate < 1 {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: sample rate must be >= 1, got %d", ErrInvalidSampleLayout, sampleRate))
	}
	frameBytes := bytesPerSample * channels
	if len(data)%frameBytes != 0 {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrInvalidSampleLayout, len(data), frameBytes))
	}

	frames := len(data) / frameBytes
	samples := make([][]float32, channels)
	for c := range samples {
		samples[c] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			offset := (i*channels + c) * bytesPerSample
			value := int16(binary.LittleEndian.Uint16(data[offset : offset+bytesPerSample]))
			samples[c][i] = float32(value) / sampleScale
		}
	}

	return &PCMBuffer{
		SampleRate: sampleRate,
		Channels:   channels,
		Samples:    samples,
	}, nil
}

func (b *PCMBuffer) FrameCount() int {
	if b == nil || len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

func (b *PCMBuffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.FrameCount()) * time.Second / time.Duration(b.SampleRate)
}

// Int16Frames re-interleaves the buffer back to signed 16-bit samples.
func (b *PCMBuffer) Int16Frames() []int16 {
	frames := b.FrameCount()
	out := make([]int16, 0, frames*b.Channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < b.Channels; c++ {
			out = append(out, toInt16(b.Samples[c][i]))
		}
	}
	return out
}

func toInt16(sample float32) int16 {
	scaled := float64(sample) * sampleScale
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}
