package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/stretchr/testify/suite"
)

type OllamaChatSuite struct {
	suite.Suite
}

func TestOllamaChatSuite(t *testing.T) {
	suite.Run(t, new(OllamaChatSuite))
}

type recordedRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (s *OllamaChatSuite) TestBuildMessagesMapsRoles() {
	messages := buildMessages("be brief", []model.ChatMessage{
		{Role: model.RoleModel, Text: "Hi!"},
		{Role: model.RoleUser, Text: "  "},
		{Role: model.RoleUser, Text: "Question"},
	}, "Next")

	s.Require().Len(messages, 4)
	s.Equal("system", messages[0].Role)
	s.Equal("be brief", messages[0].Content)
	s.Equal("assistant", messages[1].Role)
	s.Equal("user", messages[2].Role)
	s.Equal("Next", messages[3].Content)
}

func (s *OllamaChatSuite) TestSendMessage() {
	var got recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/api/chat", r.URL.Path)
		s.NoError(json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":" A minor key. "},"done":true,"prompt_eval_count":9,"eval_count":3}`))
	}))
	defer server.Close()

	provider, err := NewChatProvider(model.WithURL(server.URL))
	s.Require().NoError(err)

	reply, meta, err := provider.SendMessage(context.Background(), []model.ChatMessage{{Role: model.RoleModel, Text: "Hi!"}}, "What key is this?")
	s.Require().NoError(err)
	s.Equal("A minor key.", reply)
	s.Equal("12", meta[model.MetadataKeyTotalTokens])
	s.Equal("1", meta[model.MetadataKeyHistoryTurns])
	s.Equal(providerName, meta[model.MetadataKeyProvider])

	s.Equal(defaultChatModelName, got.Model)
	s.False(got.Stream)
	s.Require().Len(got.Messages, 3)
	s.Equal(model.DefaultChatInstruction, got.Messages[0].Content)
}

func (s *OllamaChatSuite) TestSendMessageServerError() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'llama3.1' not found"}`))
	}))
	defer server.Close()

	provider, err := NewChatProvider(model.WithURL(server.URL))
	s.Require().NoError(err)

	_, _, err = provider.SendMessage(context.Background(), nil, "hello")
	s.ErrorIs(err, model.ErrTransport)
	s.Contains(err.Error(), "not found")
}

func (s *OllamaChatSuite) TestSendMessageEmptyReply() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":""},"done":true}`))
	}))
	defer server.Close()

	provider, err := NewChatProvider(model.WithURL(server.URL))
	s.Require().NoError(err)

	_, _, err = provider.SendMessage(context.Background(), nil, "hello")
	s.ErrorIs(err, model.ErrEmptyResponse)
}
