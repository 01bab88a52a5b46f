package providers

import (
	"testing"

	"github.com/Nephrolytics-ai/radiosafe/pkg/config"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/stretchr/testify/suite"
)

type ProvidersSuite struct {
	suite.Suite
}

func TestProvidersSuite(t *testing.T) {
	suite.Run(t, new(ProvidersSuite))
}

func (s *ProvidersSuite) TestDefaultsToGemini() {
	set, err := New(config.Default())
	s.Require().NoError(err)
	s.NotNil(set.Analysis)
	s.NotNil(set.Chat)
	s.NotNil(set.Speech)
	s.Equal(Names{Analysis: "gemini", Chat: "gemini", Speech: "gemini"}, set.Names)
}

func (s *ProvidersSuite) TestMixedBackends() {
	cfg := config.Default()
	cfg.ChatProvider = config.ProviderBedrock
	cfg.SpeechProvider = config.ProviderOpenAI

	set, err := New(cfg)
	s.Require().NoError(err)
	s.Equal("bedrock", set.Names.Chat)
	s.Equal("openai", set.Names.Speech)
}

func (s *ProvidersSuite) TestUnsupportedCapabilities() {
	cfg := config.Default()
	cfg.AnalysisProvider = config.ProviderOllama
	_, err := New(cfg)
	s.ErrorIs(err, ErrUnsupportedProvider)

	cfg = config.Default()
	cfg.SpeechProvider = config.ProviderBedrock
	_, err = New(cfg)
	s.ErrorIs(err, ErrUnsupportedProvider)

	_, err = New(nil)
	s.Error(err)
}

func (s *ProvidersSuite) TestOptionsCarryCredentials() {
	cfg := config.Default()
	cfg.GeminiAPIKey = "g-key"
	cfg.OpenAIBaseURL = "http://localhost:9999/v1/"

	resolved := model.ResolveGeneratorOpts(options(cfg, config.ProviderGemini, "gemini-2.5-pro")...)
	s.Equal("g-key", resolved.AuthToken)
	s.Require().NotNil(resolved.Model)
	s.Equal("gemini-2.5-pro", *resolved.Model)

	resolved = model.ResolveGeneratorOpts(options(cfg, config.ProviderOpenAI, "")...)
	s.Equal("http://localhost:9999/v1/", resolved.URL)
	s.Nil(resolved.Model)
}
