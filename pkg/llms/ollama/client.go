package ollama

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	"github.com/bytedance/sonic"
	ollamasdk "github.com/rozoomcool/go-ollama-sdk"
)

const (
	providerName         = "ollama"
	defaultChatModelName = "llama3.1"
	defaultBaseURL       = "http://localhost:11434"
	requestTimeout       = 180 * time.Second
)

type client struct {
	httpClient *http.Client
	baseURL    string
}

func newClient(cfg model.GeneratorConfig) *client {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("OLLAMA_BASE_URL"))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
	}
}

type chatRequest struct {
	Model    string                  `json:"model"`
	Messages []ollamasdk.ChatMessage `json:"messages"`
	Stream   bool                    `json:"stream"`
	Options  *chatOptions            `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int64  `json:"prompt_eval_count,omitempty"`
	EvalCount       int64  `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *client) chat(ctx context.Context, request chatRequest) (*chatResponse, error) {
	body, err := sonic.Marshal(request)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	httpRequest, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		strings.TrimRight(c.baseURL, "/")+"/api/chat",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: %w", model.ErrTransport, err))
	}
	defer httpResponse.Body.Close()

	rawBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: %w", model.ErrTransport, err))
	}

	if httpResponse.StatusCode < http.StatusOK || httpResponse.StatusCode >= http.StatusMultipleChoices {
		var apiError errorResponse
		if unmarshalErr := sonic.Unmarshal(rawBody, &apiError); unmarshalErr == nil && strings.TrimSpace(apiError.Error) != "" {
			return nil, utils.WrapIfNotNil(
				fmt.Errorf("%w: ollama chat request failed with status %d: %s", model.ErrTransport, httpResponse.StatusCode, apiError.Error),
			)
		}
		return nil, utils.WrapIfNotNil(
			fmt.Errorf("%w: ollama chat request failed with status %d: %s", model.ErrTransport, httpResponse.StatusCode, strings.TrimSpace(string(rawBody))),
		)
	}

	var response chatResponse
	if err := sonic.Unmarshal(rawBody, &response); err != nil {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: %w", model.ErrTransport, err))
	}
	if strings.TrimSpace(response.Error) != "" {
		return nil, utils.WrapIfNotNil(fmt.Errorf("%w: %w", model.ErrTransport, errors.New(strings.TrimSpace(response.Error))))
	}
	return &response, nil
}

func resolveModelName(cfg model.GeneratorConfig) string {
	if cfg.Model != nil {
		modelName := strings.TrimSpace(*cfg.Model)
		if modelName != "" {
			return modelName
		}
	}
	return defaultChatModelName
}

func buildChatOptions(cfg model.GeneratorConfig) *chatOptions {
	if cfg.Temperature == nil && cfg.MaxTokens == nil {
		return nil
	}
	return &chatOptions{Temperature: cfg.Temperature, NumPredict: cfg.MaxTokens}
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
