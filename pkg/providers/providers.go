package providers

import (
	"errors"
	"fmt"

	"github.com/Nephrolytics-ai/radiosafe/pkg/config"
	"github.com/Nephrolytics-ai/radiosafe/pkg/llms/bedrock"
	"github.com/Nephrolytics-ai/radiosafe/pkg/llms/gemini"
	"github.com/Nephrolytics-ai/radiosafe/pkg/llms/ollama"
	"github.com/Nephrolytics-ai/radiosafe/pkg/llms/openai"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
)

var ErrUnsupportedProvider = errors.New("provider does not support this capability")

var (
	analysisFactories = map[string]model.NewAnalysisProviderFunc{
		config.ProviderGemini: gemini.NewAnalysisProvider,
	}
	chatFactories = map[string]model.NewChatProviderFunc{
		config.ProviderGemini:  gemini.NewChatProvider,
		config.ProviderOpenAI:  openai.NewChatProvider,
		config.ProviderOllama:  ollama.NewChatProvider,
		config.ProviderBedrock: bedrock.NewChatProvider,
	}
	speechFactories = map[string]model.NewSpeechProviderFunc{
		config.ProviderGemini: gemini.NewSpeechProvider,
		config.ProviderOpenAI: openai.NewSpeechProvider,
	}
)

// Set is the trio of remote capabilities a session works against.
type Set struct {
	Analysis model.AnalysisProvider
	Chat     model.ChatProvider
	Speech   model.SpeechProvider

	Names Names
}

// Names records which backend serves each capability, for metrics labels.
type Names struct {
	Analysis string
	Chat     string
	Speech   string
}

// New builds the providers selected by cfg.
func New(cfg *config.Config) (*Set, error) {
	if cfg == nil {
		return nil, utils.WrapIfNotNil(errors.New("config is required"))
	}

	analysisFactory, ok := analysisFactories[cfg.AnalysisProvider]
	if !ok {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: analysis via %q", ErrUnsupportedProvider, cfg.AnalysisProvider))
	}
	chatFactory, ok := chatFactories[cfg.ChatProvider]
	if !ok {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: chat via %q", ErrUnsupportedProvider, cfg.ChatProvider))
	}
	speechFactory, ok := speechFactories[cfg.SpeechProvider]
	if !ok {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: speech via %q", ErrUnsupportedProvider, cfg.SpeechProvider))
	}

	analysis, err := analysisFactory(options(cfg, cfg.AnalysisProvider, cfg.AnalysisModel)...)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	chatOpts := append(options(cfg, cfg.ChatProvider, cfg.ChatModel), model.WithSystemInstruction(model.DefaultChatInstruction))
	chat, err := chatFactory(chatOpts...)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	speechOpts := options(cfg, cfg.SpeechProvider, cfg.SpeechModel)
	if cfg.SpeechVoice != "" {
		speechOpts = append(speechOpts, model.WithVoice(cfg.SpeechVoice))
	}
	speech, err := speechFactory(speechOpts...)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	return &Set{
		Analysis: analysis,
		Chat:     chat,
		Speech:   speech,
		Names: Names{
			Analysis: cfg.AnalysisProvider,
			Chat:     cfg.ChatProvider,
			Speech:   cfg.SpeechProvider,
		},
	}, nil
}

func options(cfg *config.Config, provider, modelName string) []model.GeneratorOption {
	opts := make([]model.GeneratorOption, 0, 3)
	if modelName != "" {
		opts = append(opts, model.WithModel(modelName))
	}

	switch provider {
	case config.ProviderGemini:
		if cfg.GeminiAPIKey != "" {
			opts = append(opts, model.WithAuthToken(cfg.GeminiAPIKey))
		}
		if cfg.GeminiBaseURL != "" {
			opts = append(opts, model.WithURL(cfg.GeminiBaseURL))
		}
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey != "" {
			opts = append(opts, model.WithAuthToken(cfg.OpenAIAPIKey))
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, model.WithURL(cfg.OpenAIBaseURL))
		}
	case config.ProviderOllama:
		if cfg.OllamaBaseURL != "" {
			opts = append(opts, model.WithURL(cfg.OllamaBaseURL))
		}
	}
	return opts
}
