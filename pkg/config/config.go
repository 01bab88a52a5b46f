package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderBedrock = "bedrock"
)

// Config holds the server and provider configuration.
type Config struct {
	Port            int
	AllowedOrigins  []string
	MaxUploadBytes  int64
	MaxSessions     int
	SessionTimeout  time.Duration
	AnalysisTimeout time.Duration
	RedisURL        string
	RedisPassword   string
	WatchDir        string
	OutputDir       string
	LogLevel        string
	LogFormat       string

	GeminiAPIKey  string
	GeminiBaseURL string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaBaseURL string

	AnalysisProvider string
	ChatProvider     string
	SpeechProvider   string
	AnalysisModel    string
	ChatModel        string
	SpeechModel      string
	SpeechVoice      string
}

// Default returns the configuration used when no environment overrides are set.
func Default() *Config {
	return &Config{
		Port:             8080,
		AllowedOrigins:   []string{"*"},
		MaxUploadBytes:   25 << 20,
		MaxSessions:      100,
		SessionTimeout:   30 * time.Minute,
		AnalysisTimeout:  2 * time.Minute,
		OutputDir:        "speech",
		LogLevel:         "info",
		LogFormat:        "text",
		AnalysisProvider: ProviderGemini,
		ChatProvider:     ProviderGemini,
		SpeechProvider:   ProviderGemini,
	}
}

// Load reads a .env file if present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables over Default.
func FromEnv() (*Config, error) {
	cfg := Default()

	cfg.GeminiAPIKey = firstEnv("GEMINI_KEY", "GEMINI_API_KEY", "API_KEY")
	cfg.GeminiBaseURL = strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	cfg.OllamaBaseURL = strings.TrimSpace(os.Getenv("OLLAMA_BASE_URL"))

	var err error
	if cfg.AnalysisProvider, err = providerEnv("ANALYSIS_PROVIDER", cfg.AnalysisProvider); err != nil {
		return nil, err
	}
	if cfg.ChatProvider, err = providerEnv("CHAT_PROVIDER", cfg.ChatProvider); err != nil {
		return nil, err
	}
	if cfg.SpeechProvider, err = providerEnv("SPEECH_PROVIDER", cfg.SpeechProvider); err != nil {
		return nil, err
	}

	cfg.AnalysisModel = strings.TrimSpace(os.Getenv("ANALYSIS_MODEL"))
	cfg.ChatModel = strings.TrimSpace(os.Getenv("CHAT_MODEL"))
	cfg.SpeechModel = strings.TrimSpace(os.Getenv("SPEECH_MODEL"))
	cfg.SpeechVoice = strings.TrimSpace(os.Getenv("SPEECH_VOICE"))

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p < 1 || p > 65535 {
			return nil, fmt.Errorf("invalid PORT: %q", port)
		}
		cfg.Port = p
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = cfg.AllowedOrigins[:0]
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if maxUpload := os.Getenv("MAX_UPLOAD_BYTES"); maxUpload != "" {
		b, err := strconv.ParseInt(maxUpload, 10, 64)
		if err != nil || b < 1 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %q", maxUpload)
		}
		cfg.MaxUploadBytes = b
	}

	if maxSessions := os.Getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil || m < 1 {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %q", maxSessions)
		}
		cfg.MaxSessions = m
	}

	// SESSION_TIMEOUT is in minutes
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil || t < 1 {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %q", timeout)
		}
		cfg.SessionTimeout = time.Duration(t) * time.Minute
	}

	// ANALYSIS_TIMEOUT is in seconds
	if timeout := os.Getenv("ANALYSIS_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil || t < 1 {
			return nil, fmt.Errorf("invalid ANALYSIS_TIMEOUT: %q", timeout)
		}
		cfg.AnalysisTimeout = time.Duration(t) * time.Second
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.WatchDir = strings.TrimSpace(os.Getenv("WATCH_DIR"))
	if outputDir := strings.TrimSpace(os.Getenv("OUTPUT_DIR")); outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		cfg.LogFormat = format
	}

	return cfg, nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func providerEnv(key, fallback string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return fallback, nil
	}
	switch value {
	case ProviderGemini, ProviderOpenAI, ProviderOllama, ProviderBedrock:
		return value, nil
	default:
		return "", fmt.Errorf("invalid %s: %q", key, value)
	}
}
