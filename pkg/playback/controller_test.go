package playback

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/codec"
	"github.com/stretchr/testify/suite"
)

type ControllerSuite struct {
	suite.Suite
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

// blockingSink plays until release is closed or the context is cancelled.
type blockingSink struct {
	openErr error
	release chan struct{}

	mu     sync.Mutex
	opened int
	played []*codec.PCMBuffer
	closed int
}

func newBlockingSink() *blockingSink {
	return &blockingSink{release: make(chan struct{})}
}

func (s *blockingSink) Open(sampleRate int, channels int) (Output, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return &blockingOutput{sink: s}, nil
}

type blockingOutput struct {
	sink *blockingSink
}

func (o *blockingOutput) Play(ctx context.Context, buffer *codec.PCMBuffer) error {
	o.sink.mu.Lock()
	o.sink.played = append(o.sink.played, buffer)
	o.sink.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.sink.release:
		return nil
	}
}

func (o *blockingOutput) Close() error {
	o.sink.mu.Lock()
	o.sink.closed++
	o.sink.mu.Unlock()
	return nil
}

func pcmTransport(samples int) string {
	return codec.EncodeToTransport(make([]byte, samples*2))
}

func (s *ControllerSuite) TestPlayThenNaturalEnd() {
	sink := newBlockingSink()
	controller := NewController(sink)

	handle, err := controller.Play(context.Background(), pcmTransport(2400))
	s.Require().NoError(err)
	s.True(handle.IsActive())
	s.Equal(100*time.Millisecond, handle.Duration())

	close(sink.release)
	<-handle.Done()

	s.False(handle.IsActive())
	s.True(handle.Ended())
	s.NoError(handle.Err())
	s.Equal(1, sink.closed)
}

func (s *ControllerSuite) TestStopIsIdempotent() {
	sink := newBlockingSink()
	controller := NewController(sink)

	handle, err := controller.Play(context.Background(), pcmTransport(10))
	s.Require().NoError(err)

	handle.Stop()
	handle.Stop()

	s.False(handle.IsActive())
	s.False(handle.Ended())
	s.NoError(handle.Err())

	select {
	case <-handle.Done():
	default:
		s.Fail("done should be closed after stop")
	}
}

func (s *ControllerSuite) TestStopAfterEndKeepsEnded() {
	sink := newBlockingSink()
	close(sink.release)
	handle, err := NewController(sink).Play(context.Background(), pcmTransport(10))
	s.Require().NoError(err)

	<-handle.Done()
	handle.Stop()
	s.True(handle.Ended())
	s.False(handle.IsActive())
}

func (s *ControllerSuite) TestRequestContextDoesNotStopPlayback() {
	sink := newBlockingSink()
	ctx, cancel := context.WithCancel(context.Background())
	handle, err := NewController(sink).Play(ctx, pcmTransport(10))
	s.Require().NoError(err)

	cancel()
	s.Never(func() bool { return !handle.IsActive() }, 50*time.Millisecond, 10*time.Millisecond)
	handle.Stop()
}

func (s *ControllerSuite) TestPlayRejectsBadTransport() {
	sink := newBlockingSink()
	_, err := NewController(sink).Play(context.Background(), "not base64!")
	s.ErrorIs(err, ErrPlaybackInit)
	s.ErrorIs(err, codec.ErrMalformedEncoding)
	s.Equal(0, sink.opened)
}

func (s *ControllerSuite) TestPlayRejectsOddByteCount() {
	sink := newBlockingSink()
	_, err := NewController(sink).Play(context.Background(), codec.EncodeToTransport([]byte{1, 2, 3}))
	s.ErrorIs(err, ErrPlaybackInit)
	s.ErrorIs(err, codec.ErrInvalidSampleLayout)
	s.Equal(0, sink.opened)
}

func (s *ControllerSuite) TestPlayReportsSinkFailure() {
	sink := newBlockingSink()
	sink.openErr = errors.New("device busy")
	_, err := NewController(sink).Play(context.Background(), pcmTransport(10))
	s.ErrorIs(err, ErrPlaybackInit)
	s.Contains(err.Error(), "device busy")
}

func (s *ControllerSuite) TestPlayWithoutSink() {
	_, err := NewController(nil).Play(context.Background(), pcmTransport(10))
	s.ErrorIs(err, ErrPlaybackInit)
}

func (s *ControllerSuite) TestSampleFormatOption() {
	sink := newBlockingSink()
	close(sink.release)
	handle, err := NewController(sink, WithSampleFormat(48000, 2)).Play(context.Background(), pcmTransport(96000))
	s.Require().NoError(err)
	<-handle.Done()
	s.Equal(time.Second, handle.Duration())
	s.Require().Len(sink.played, 1)
	s.Equal(2, sink.played[0].Channels)
}

func (s *ControllerSuite) TestWAVSinkWritesFile() {
	dir := s.T().TempDir()
	sink := NewWAVSink(dir, false)

	handle, err := NewController(sink).Play(context.Background(), pcmTransport(240))
	s.Require().NoError(err)
	<-handle.Done()
	s.True(handle.Ended())

	paths := sink.Paths()
	s.Require().Len(paths, 1)
	info, err := os.Stat(paths[0])
	s.Require().NoError(err)
	s.Equal(int64(44+480), info.Size())
}

func (s *ControllerSuite) TestWAVSinkRealtimeStop() {
	sink := NewWAVSink(s.T().TempDir(), true)
	handle, err := NewController(sink).Play(context.Background(), pcmTransport(24000*10))
	s.Require().NoError(err)
	s.True(handle.IsActive())
	handle.Stop()
	s.False(handle.Ended())
}

type recordingWriter struct {
	mu     sync.Mutex
	frames [][]int16
}

func (w *recordingWriter) WriteFrame(sampleRate int, channels int, frame []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, append([]int16(nil), frame...))
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

func (s *ControllerSuite) TestStreamSinkFramesAudio() {
	writer := &recordingWriter{}
	sink := NewStreamSink(writer, 5*time.Millisecond)

	// 24 kHz * 5 ms = 120 samples per frame; 300 samples -> 3 frames
	handle, err := NewController(sink).Play(context.Background(), pcmTransport(300))
	s.Require().NoError(err)
	<-handle.Done()

	s.True(handle.Ended())
	s.Require().Equal(3, writer.count())
	s.Len(writer.frames[0], 120)
	s.Len(writer.frames[2], 60)
}

func (s *ControllerSuite) TestStreamSinkStopsEarly() {
	writer := &recordingWriter{}
	sink := NewStreamSink(writer, DefaultFrameDuration)

	handle, err := NewController(sink).Play(context.Background(), pcmTransport(24000*5))
	s.Require().NoError(err)
	s.Eventually(func() bool { return writer.count() > 0 }, time.Second, 5*time.Millisecond)
	handle.Stop()

	written := writer.count()
	s.Less(written, 250)
	s.Never(func() bool { return writer.count() != written }, 60*time.Millisecond, 10*time.Millisecond)
}
