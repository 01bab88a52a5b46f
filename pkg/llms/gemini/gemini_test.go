package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/stretchr/testify/suite"
)

type capturedRequest struct {
	Path string
	Body string
}

type requestBody struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
}

type fakeGemini struct {
	server *httptest.Server

	mu       sync.Mutex
	status   int
	response string
	requests []capturedRequest
}

func newFakeGemini() *fakeGemini {
	f := &fakeGemini{status: http.StatusOK}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, capturedRequest{Path: r.URL.Path, Body: string(body)})
		status, response := f.status, f.response
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	return f
}

func (f *fakeGemini) respondText(text string) {
	encoded, _ := json.Marshal(text)
	f.respond(http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":`+string(encoded)+`}]}}],"usageMetadata":{"promptTokenCount":11,"candidatesTokenCount":7,"totalTokenCount":18},"responseId":"resp-1"}`)
}

func (f *fakeGemini) respond(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.response = body
}

func (f *fakeGemini) lastRequest() capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return capturedRequest{}
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeGemini) options(extra ...model.GeneratorOption) []model.GeneratorOption {
	return append([]model.GeneratorOption{model.WithURL(f.server.URL), model.WithAuthToken("test-key")}, extra...)
}

type GeminiProviderSuite struct {
	suite.Suite
	fake *fakeGemini
	ctx  context.Context
}

func TestGeminiProviderSuite(t *testing.T) {
	suite.Run(t, new(GeminiProviderSuite))
}

func (s *GeminiProviderSuite) SetupTest() {
	s.fake = newFakeGemini()
	s.ctx = context.Background()
}

func (s *GeminiProviderSuite) TearDownTest() {
	s.fake.server.Close()
}

func (s *GeminiProviderSuite) TestResolveModelNameUsesDefault() {
	s.Equal(defaultAnalysisModelName, resolveModelName(model.GeneratorConfig{}, defaultAnalysisModelName))
	blank := "  "
	s.Equal(defaultChatModelName, resolveModelName(model.GeneratorConfig{Model: &blank}, defaultChatModelName))
	custom := "gemini-2.5-pro"
	s.Equal(custom, resolveModelName(model.GeneratorConfig{Model: &custom}, defaultChatModelName))
}

func (s *GeminiProviderSuite) TestAnalyzeSendsAudioAndSchema() {
	s.fake.respondText(`{"rating":"Risky","summary":"Suggestive lines.","confidence":72,"lyrics":[{"text":"hold","isExplicit":false},{"text":"me close","isExplicit":true,"reason":"Innuendo"}]}`)
	provider, err := NewAnalysisProvider(s.fake.options()...)
	s.Require().NoError(err)

	audio := model.AudioPayload{Data: []byte("fake-mp3-bytes"), MIMEType: "audio/mpeg"}
	result, meta, err := provider.Analyze(s.ctx, audio)
	s.Require().NoError(err)

	s.Equal(model.RatingRisky, result.Rating)
	s.Equal(72, result.Confidence)
	s.Equal(1, result.FlaggedCount())
	s.Equal("Innuendo", result.Lyrics[1].Reason)

	s.Equal(providerName, meta[model.MetadataKeyProvider])
	s.Equal(defaultAnalysisModelName, meta[model.MetadataKeyModel])
	s.Equal("18", meta[model.MetadataKeyTotalTokens])
	s.Equal("resp-1", meta[model.MetadataKeyResponseID])
	s.Contains(meta, model.MetadataKeyLatencyMs)

	req := s.fake.lastRequest()
	s.True(strings.HasSuffix(req.Path, "models/"+defaultAnalysisModelName+":generateContent"), req.Path)
	s.Contains(req.Body, `"responseMimeType":"application/json"`)
	s.Contains(req.Body, `"responseJsonSchema"`)
	s.Contains(req.Body, "professional content moderator")

	var body requestBody
	s.Require().NoError(json.Unmarshal([]byte(req.Body), &body))
	s.Require().Len(body.Contents, 1)
	s.Require().NotEmpty(body.Contents[0].Parts)
	inline := body.Contents[0].Parts[0].InlineData
	s.Require().NotNil(inline)
	s.Equal("audio/mpeg", inline.MIMEType)
	s.Equal(base64.StdEncoding.EncodeToString(audio.Data), inline.Data)
}

func (s *GeminiProviderSuite) TestAnalyzeEmptyResponse() {
	s.fake.respond(http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[]}}]}`)
	provider, err := NewAnalysisProvider(s.fake.options()...)
	s.Require().NoError(err)

	_, _, err = provider.Analyze(s.ctx, model.AudioPayload{Data: []byte{1}, MIMEType: "audio/wav"})
	s.ErrorIs(err, model.ErrEmptyResponse)
}

func (s *GeminiProviderSuite) TestAnalyzeSchemaViolation() {
	s.fake.respondText(`{"rating":"Unknown","summary":"?","confidence":5,"lyrics":[]}`)
	provider, err := NewAnalysisProvider(s.fake.options()...)
	s.Require().NoError(err)

	_, _, err = provider.Analyze(s.ctx, model.AudioPayload{Data: []byte{1}, MIMEType: "audio/wav"})
	s.ErrorIs(err, model.ErrSchemaViolation)
}

func (s *GeminiProviderSuite) TestAnalyzeTransportFailure() {
	s.fake.respond(http.StatusUnauthorized, `{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`)
	provider, err := NewAnalysisProvider(s.fake.options()...)
	s.Require().NoError(err)

	_, _, err = provider.Analyze(s.ctx, model.AudioPayload{Data: []byte{1}, MIMEType: "audio/wav"})
	s.ErrorIs(err, model.ErrTransport)
}

func (s *GeminiProviderSuite) TestAnalyzeRejectsNonAudio() {
	provider, err := NewAnalysisProvider(s.fake.options()...)
	s.Require().NoError(err)

	_, _, err = provider.Analyze(s.ctx, model.AudioPayload{Data: []byte{1}, MIMEType: "text/plain"})
	s.ErrorIs(err, model.ErrUnsupportedMedia)
	s.Empty(s.fake.lastRequest().Path)
}

func (s *GeminiProviderSuite) TestChatSendsHistoryAndInstruction() {
	s.fake.respondText("  The FCC safe harbor runs from 10pm to 6am.  ")
	provider, err := NewChatProvider(s.fake.options()...)
	s.Require().NoError(err)

	history := []model.ChatMessage{
		{Role: model.RoleModel, Text: "Hi! I'm your Radio AI Assistant.", Timestamp: time.Now()},
		{Role: model.RoleUser, Text: "Is this clean?"},
		{Role: model.RoleModel, Text: "It is rated Risky."},
	}
	reply, meta, err := provider.SendMessage(s.ctx, history, "When is safe harbor?")
	s.Require().NoError(err)
	s.Equal("The FCC safe harbor runs from 10pm to 6am.", reply)
	s.Equal(defaultChatModelName, meta[model.MetadataKeyModel])
	s.Equal("3", meta[model.MetadataKeyHistoryTurns])

	req := s.fake.lastRequest()
	s.Contains(req.Body, "helpful assistant for a Radio DJ software")

	var body requestBody
	s.Require().NoError(json.Unmarshal([]byte(req.Body), &body))
	s.Require().Len(body.Contents, 4)
	s.Equal("model", body.Contents[0].Role)
	s.Equal("user", body.Contents[1].Role)
	s.Equal("model", body.Contents[2].Role)
	s.Equal("user", body.Contents[3].Role)
	s.Equal("When is safe harbor?", body.Contents[3].Parts[0].Text)
}

func (s *GeminiProviderSuite) TestChatEmptyReply() {
	s.fake.respondText("   ")
	provider, err := NewChatProvider(s.fake.options()...)
	s.Require().NoError(err)

	_, _, err = provider.SendMessage(s.ctx, nil, "hello")
	s.ErrorIs(err, model.ErrEmptyResponse)
}

func (s *GeminiProviderSuite) TestChatRequiresText() {
	provider, err := NewChatProvider(s.fake.options()...)
	s.Require().NoError(err)

	_, _, err = provider.SendMessage(s.ctx, nil, "  ")
	s.Error(err)
}

func (s *GeminiProviderSuite) TestChatCustomInstruction() {
	s.fake.respondText("ok")
	provider, err := NewChatProvider(s.fake.options(model.WithSystemInstruction("Answer in French."))...)
	s.Require().NoError(err)

	_, _, err = provider.SendMessage(s.ctx, nil, "hello")
	s.Require().NoError(err)
	s.Contains(s.fake.lastRequest().Body, "Answer in French.")
}

func (s *GeminiProviderSuite) TestSpeechReturnsInlineAudio() {
	pcm := []byte{0x01, 0x00, 0x02, 0x00}
	s.fake.respond(http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":"`+base64.StdEncoding.EncodeToString(pcm)+`"}}]}}]}`)
	provider, err := NewSpeechProvider(s.fake.options()...)
	s.Require().NoError(err)

	audio, meta, err := provider.Synthesize(s.ctx, "Analysis complete. This track is rated Clean. Fine.")
	s.Require().NoError(err)
	s.Require().NotNil(audio)
	s.Equal("AQACAA==", audio.Audio)
	s.Equal("audio/L16;codec=pcm;rate=24000", audio.MIMEType)
	s.Equal(defaultVoiceName, meta[model.MetadataKeyVoice])
	s.Equal("4", meta[model.MetadataKeyAudioBytes])

	req := s.fake.lastRequest()
	s.True(strings.HasSuffix(req.Path, defaultSpeechModelName+":generateContent"), req.Path)
	s.Contains(req.Body, `"voiceName":"Puck"`)
	s.Contains(req.Body, `"AUDIO"`)
}

func (s *GeminiProviderSuite) TestSpeechWithoutAudioIsNotAnError() {
	s.fake.respondText("I cannot speak right now")
	provider, err := NewSpeechProvider(s.fake.options(model.WithVoice("Kore"))...)
	s.Require().NoError(err)

	audio, meta, err := provider.Synthesize(s.ctx, "hello")
	s.Require().NoError(err)
	s.Nil(audio)
	s.Equal("Kore", meta[model.MetadataKeyVoice])
}

func (s *GeminiProviderSuite) TestSpeechIgnoresAudioAfterFirstPart() {
	s.fake.respond(http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Here you go"},{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":"AQACAA=="}}]}}]}`)
	provider, err := NewSpeechProvider(s.fake.options()...)
	s.Require().NoError(err)

	audio, _, err := provider.Synthesize(s.ctx, "hello")
	s.Require().NoError(err)
	s.Nil(audio)
}

func (s *GeminiProviderSuite) TestSpeechTransportFailure() {
	s.fake.respond(http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	provider, err := NewSpeechProvider(s.fake.options()...)
	s.Require().NoError(err)

	_, _, err = provider.Synthesize(s.ctx, "hello")
	s.ErrorIs(err, model.ErrTransport)
}
