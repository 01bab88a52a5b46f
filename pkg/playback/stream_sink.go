package playback

import (
	"context"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/codec"
)

const DefaultFrameDuration = 20 * time.Millisecond

// FrameWriter receives interleaved PCM frames in real time.
type FrameWriter interface {
	WriteFrame(sampleRate int, channels int, frame []int16) error
}

// StreamSink paces audio to a FrameWriter one frame per tick, the same way a
// sound card would drain it.
type StreamSink struct {
	writer        FrameWriter
	frameDuration time.Duration
}

func NewStreamSink(writer FrameWriter, frameDuration time.Duration) *StreamSink {
	if frameDuration <= 0 {
		frameDuration = DefaultFrameDuration
	}
	return &StreamSink{writer: writer, frameDuration: frameDuration}
}

func (s *StreamSink) Open(sampleRate int, channels int) (Output, error) {
	return &streamOutput{sink: s, sampleRate: sampleRate, channels: channels}, nil
}

type streamOutput struct {
	sink       *StreamSink
	sampleRate int
	channels   int
}

func (o *streamOutput) Play(ctx context.Context, buffer *codec.PCMBuffer) error {
	samples := buffer.Int16Frames()
	perFrame := int(int64(o.sampleRate)*int64(o.sink.frameDuration)/int64(time.Second)) * o.channels
	if perFrame < o.channels {
		perFrame = o.channels
	}

	ticker := time.NewTicker(o.sink.frameDuration)
	defer ticker.Stop()

	for start := 0; start < len(samples); start += perFrame {
		end := min(start+perFrame, len(samples))
		if err := o.sink.writer.WriteFrame(o.sampleRate, o.channels, samples[start:end]); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return ctx.Err()
}

func (o *streamOutput) Close() error {
	return nil
}
