package openai

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	providerName           = "openai"
	defaultChatModelName   = "gpt-5-mini"
	defaultSpeechModelName = openai.SpeechModelGPT4oMiniTTS
	defaultVoiceName       = openai.AudioSpeechNewParamsVoiceAlloy
)

type client struct {
	apiClient openai.Client
}

func newClient(cfg model.GeneratorConfig) *client {
	requestOpts := []option.RequestOption{
		// one request per user action; failures go straight back to the caller
		option.WithMaxRetries(0),
	}
	if cfg.URL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(cfg.URL))
	}
	if cfg.AuthToken != "" {
		requestOpts = append(requestOpts, option.WithAPIKey(cfg.AuthToken))
	}

	return &client{apiClient: openai.NewClient(requestOpts...)}
}

func transportError(err error) error {
	return fmt.Errorf("%w: %w", model.ErrTransport, err)
}

func initMetadata(modelName string) model.GenerationMetadata {
	if strings.TrimSpace(modelName) == "" {
		modelName = "unknown"
	}

	return model.GenerationMetadata{
		model.MetadataKeyProvider: providerName,
		model.MetadataKeyModel:    modelName,
	}
}

func setLatencyMetadata(meta model.GenerationMetadata, start time.Time) {
	if meta == nil {
		return
	}
	meta[model.MetadataKeyLatencyMs] = strconv.FormatInt(time.Since(start).Milliseconds(), 10)
}

func resolveModelName(cfg model.GeneratorConfig, fallback string) string {
	if cfg.Model != nil {
		name := strings.TrimSpace(*cfg.Model)
		if name != "" {
			return name
		}
	}
	return fallback
}
