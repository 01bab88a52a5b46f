package playback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/codec"
)

// WAVSink writes every playback to its own WAV file under Dir. With Realtime set,
// Play also waits out the clip's duration so stop and completion behave like a speaker.
type WAVSink struct {
	Dir      string
	Realtime bool

	mu    sync.Mutex
	seq   int
	paths []string
}

func NewWAVSink(dir string, realtime bool) *WAVSink {
	return &WAVSink{Dir: dir, Realtime: realtime}
}

func (s *WAVSink) Open(sampleRate int, channels int) (Output, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	s.mu.Lock()
	s.seq++
	name := fmt.Sprintf("speech-%s-%03d.wav", time.Now().UTC().Format("20060102T150405"), s.seq)
	path := filepath.Join(s.Dir, name)
	s.paths = append(s.paths, path)
	s.mu.Unlock()

	return &wavOutput{path: path, realtime: s.Realtime}, nil
}

// Paths lists the files written so far, oldest first.
func (s *WAVSink) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

type wavOutput struct {
	path     string
	realtime bool
}

func (o *wavOutput) Play(ctx context.Context, buffer *codec.PCMBuffer) error {
	data, err := codec.EncodeWAV(buffer)
	if err != nil {
		return err
	}
	if err := os.WriteFile(o.path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", o.path, err)
	}
	if !o.realtime {
		return ctx.Err()
	}

	timer := time.NewTimer(buffer.Duration())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *wavOutput) Close() error {
	return nil
}
