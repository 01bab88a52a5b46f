package model

import (
	"context"
)

// These are factory methods each llm provider should implement for the capabilities it supports.

// NewAnalysisProviderFunc builds a provider that transcribes and moderates an audio track.
type NewAnalysisProviderFunc func(opts ...GeneratorOption) (AnalysisProvider, error)

// NewChatProviderFunc builds a provider for the studio assistant conversation.
type NewChatProviderFunc func(opts ...GeneratorOption) (ChatProvider, error)

// NewSpeechProviderFunc builds a text-to-speech provider.
type NewSpeechProviderFunc func(opts ...GeneratorOption) (SpeechProvider, error)

type AnalysisProvider interface {
	Analyze(ctx context.Context, audio AudioPayload) (AnalysisResult, GenerationMetadata, error)
}

// ChatProvider is stateless per call: the full prior history is passed each time and
// text is appended as the final user turn.
type ChatProvider interface {
	SendMessage(ctx context.Context, history []ChatMessage, text string) (string, GenerationMetadata, error)
}

// SpeechProvider returns nil audio (and no error) when the response carried nothing to play.
type SpeechProvider interface {
	Synthesize(ctx context.Context, text string) (*SpeechAudio, GenerationMetadata, error)
}

type GenerationMetadata map[string]string

const (
	MetadataKeyProvider     = "provider"
	MetadataKeyModel        = "model"
	MetadataKeyLatencyMs    = "latency_ms"
	MetadataKeyInputTokens  = "input_tokens"
	MetadataKeyOutputTokens = "output_tokens"
	MetadataKeyTotalTokens  = "total_tokens"
	MetadataKeyResponseID   = "response_id"
	MetadataKeyVoice        = "voice"
	MetadataKeyAudioBytes   = "audio_bytes"
	MetadataKeyHistoryTurns = "history_turns"
	MetadataKeyStopReason   = "stop_reason"
)

type GeneratorOption interface {
	apply(*GeneratorConfig)
}

type generatorOptionFunc func(*GeneratorConfig)

func (f generatorOptionFunc) apply(cfg *GeneratorConfig) {
	f(cfg)
}

type GeneratorConfig struct {
	IgnoreInvalidGeneratorOptions bool
	URL                           string
	AuthToken                     string
	Temperature                   *float64
	MaxTokens                     *int
	Model                         *string
	Voice                         *string
	// SystemInstruction overrides the provider's default instruction for chat.
	SystemInstruction *string
	// Prompt overrides the default moderation prompt for analysis.
	Prompt *string
}

func ResolveGeneratorOpts(opts ...GeneratorOption) GeneratorConfig {
	cfg := GeneratorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	return cfg
}

func WithIgnoreInvalidGeneratorOptions(value bool) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.IgnoreInvalidGeneratorOptions = value
	})
}

func WithURL(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.URL = value
	})
}

func WithAuthToken(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.AuthToken = value
	})
}

func WithTemperature(value float64) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.Temperature = &value
	})
}

func WithMaxTokens(value int) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.MaxTokens = &value
	})
}

func WithModel(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.Model = &value
	})
}

func WithVoice(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.Voice = &value
	})
}

func WithSystemInstruction(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.SystemInstruction = &value
	})
}

func WithPrompt(value string) GeneratorOption {
	return generatorOptionFunc(func(cfg *GeneratorConfig) {
		cfg.Prompt = &value
	})
}

const (
	// DefaultChatInstruction is the fixed persona of the studio assistant.
	DefaultChatInstruction = "You are a helpful assistant for a Radio DJ software. You answer questions about music theory, artist history, or broadcasting regulations."
)
