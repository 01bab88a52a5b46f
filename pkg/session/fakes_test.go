package session

import (
	"context"
	"errors"
	"sync"

	"github.com/Nephrolytics-ai/radiosafe/pkg/codec"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/playback"
	"github.com/Nephrolytics-ai/radiosafe/pkg/providers"
)

var errProviderDown = errors.New("provider unavailable")

type fakeAnalysis struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	results []model.AnalysisResult
	err     error
	panics  bool
}

func (f *fakeAnalysis) Analyze(ctx context.Context, _ model.AudioPayload) (model.AnalysisResult, model.GenerationMetadata, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	release := f.release
	panics := f.panics
	f.mu.Unlock()

	if panics {
		panic("chat backend exploded")
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return model.AnalysisResult{}, nil, ctx.Err()
		}
	}
	if f.err != nil {
		return model.AnalysisResult{}, model.GenerationMetadata{}, f.err
	}
	return f.results[call%len(f.results)], model.GenerationMetadata{}, nil
}

type fakeChat struct {
	mu      sync.Mutex
	release chan struct{}
	reply   string
	err     error
	panics  bool
	history [][]model.ChatMessage
}

func (f *fakeChat) SendMessage(ctx context.Context, history []model.ChatMessage, _ string) (string, model.GenerationMetadata, error) {
	f.mu.Lock()
	f.history = append(f.history, history)
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
	return f.reply, model.GenerationMetadata{}, f.err
}

type fakeSpeech struct {
	mu    sync.Mutex
	texts []string
	audio *model.SpeechAudio
	err   error
}

func (f *fakeSpeech) Synthesize(_ context.Context, text string) (*model.SpeechAudio, model.GenerationMetadata, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return f.audio, model.GenerationMetadata{}, f.err
}

func (f *fakeSpeech) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func speechClip(samples int) *model.SpeechAudio {
	return &model.SpeechAudio{
		Audio:    codec.EncodeToTransport(make([]byte, samples*2)),
		MIMEType: "audio/pcm;rate=24000",
	}
}

// heldSink keeps every playback running until release is closed.
type heldSink struct {
	release chan struct{}

	mu     sync.Mutex
	opened int
}

func (h *heldSink) Open(int, int) (playback.Output, error) {
	h.mu.Lock()
	h.opened++
	h.mu.Unlock()
	return &heldOutput{release: h.release}, nil
}

func (h *heldSink) openCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened
}

type heldOutput struct {
	release chan struct{}
}

func (o *heldOutput) Play(ctx context.Context, _ *codec.PCMBuffer) error {
	select {
	case <-o.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *heldOutput) Close() error { return nil }

type fixture struct {
	analysis *fakeAnalysis
	chat     *fakeChat
	speech   *fakeSpeech
	sink     *heldSink
	opts     Options
}

func newFixture() *fixture {
	f := &fixture{
		analysis: &fakeAnalysis{results: []model.AnalysisResult{explicitResult()}},
		chat:     &fakeChat{reply: "The FCC safe harbor starts at 10pm."},
		speech:   &fakeSpeech{audio: speechClip(2400)},
		sink:     &heldSink{release: make(chan struct{})},
	}
	f.opts = Options{
		Providers: &providers.Set{
			Analysis: f.analysis,
			Chat:     f.chat,
			Speech:   f.speech,
			Names:    providers.Names{Analysis: "fake", Chat: "fake", Speech: "fake"},
		},
		NewPlayer: func(*Session) *playback.Controller {
			return playback.NewController(f.sink)
		},
	}
	return f
}

func explicitResult() model.AnalysisResult {
	return model.AnalysisResult{
		Rating:     model.RatingExplicit,
		Summary:    "Strong language in the chorus",
		Confidence: 93,
		Lyrics: []model.LyricWord{
			{Text: "hello"},
			{Text: "darn", IsExplicit: true, Reason: "Profanity"},
		},
	}
}

func cleanResult() model.AnalysisResult {
	return model.AnalysisResult{Rating: model.RatingClean, Summary: "Radio friendly", Confidence: 99}
}

func mp3Payload() model.AudioPayload {
	return model.AudioPayload{Data: []byte{0x49, 0x44, 0x33}, MIMEType: "audio/mpeg"}
}
