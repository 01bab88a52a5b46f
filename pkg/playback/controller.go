package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/codec"
	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
)

var ErrPlaybackInit = errors.New("failed to initialise audio playback")

// Sink opens an audio output for one playback.
type Sink interface {
	Open(sampleRate int, channels int) (Output, error)
}

// Output plays one buffer. Play blocks until the buffer is fully played or ctx is
// cancelled, in which case it returns ctx.Err().
type Output interface {
	Play(ctx context.Context, buffer *codec.PCMBuffer) error
	Close() error
}

// Controller turns transport-encoded speech into a running playback. It keeps no
// state between calls; callers decide how many handles may be active.
type Controller struct {
	sink       Sink
	sampleRate int
	channels   int
}

type ControllerOption func(*Controller)

func WithSampleFormat(sampleRate int, channels int) ControllerOption {
	return func(c *Controller) {
		c.sampleRate = sampleRate
		c.channels = channels
	}
}

func NewController(sink Sink, opts ...ControllerOption) *Controller {
	c := &Controller{
		sink:       sink,
		sampleRate: codec.SpeechSampleRate,
		channels:   codec.SpeechChannels,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Play decodes the transport string and starts playback immediately. Any decode or
// output failure is reported as ErrPlaybackInit and nothing is played.
func (c *Controller) Play(ctx context.Context, transport string) (*Handle, error) {
	log := logging.NewLogger(ctx)

	raw, err := codec.DecodeFromTransport(transport)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(errors.Join(ErrPlaybackInit, err))
	}

	buffer, err := codec.BytesToPCM(raw, c.sampleRate, c.channels)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(errors.Join(ErrPlaybackInit, err))
	}

	if c.sink == nil {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: no audio sink configured", ErrPlaybackInit))
	}
	output, err := c.sink.Open(c.sampleRate, c.channels)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, utils.WrapIfNotNil(errors.Join(ErrPlaybackInit, err))
	}

	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &Handle{
		cancel:   cancel,
		done:     make(chan struct{}),
		duration: buffer.Duration(),
	}

	log.Debugf("starting playback of %d frames (%s)", buffer.FrameCount(), handle.duration)
	go handle.run(playCtx, output, buffer, log)

	return handle, nil
}

// Handle controls one running playback.
type Handle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	duration time.Duration

	mu      sync.Mutex
	stopped bool
	ended   bool
	err     error
}

func (h *Handle) run(ctx context.Context, output Output, buffer *codec.PCMBuffer, log logging.Logger) {
	defer close(h.done)
	defer utils.RecoverGoroutine("playback", log)
	defer func() {
		if err := output.Close(); err != nil {
			log.Warnf("closing audio output: %v", err)
		}
	}()

	err := output.Play(ctx, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case err == nil && !h.stopped:
		h.ended = true
	case err != nil && !errors.Is(err, context.Canceled):
		h.err = err
		log.Errorf("playback failed: %v", err)
	}
}

// Stop halts playback and waits for the output to release. Calling it more than
// once, or after playback ended, is a no-op.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		h.cancel()
	})
	<-h.done
}

// Done is closed when playback finishes for any reason.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Ended reports whether playback ran to completion without being stopped.
func (h *Handle) Ended() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ended
}

func (h *Handle) IsActive() bool {
	select {
	case <-h.done:
		return false
	default:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.stopped
}

// Err returns the output failure, if playback ended with one.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) Duration() time.Duration {
	return h.duration
}
