package ollama

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	ollamasdk "github.com/rozoomcool/go-ollama-sdk"
)

type chatProvider struct {
	client *client
	cfg    model.GeneratorConfig
}

// NewChatProvider runs the studio assistant against a local Ollama server.
func NewChatProvider(opts ...model.GeneratorOption) (model.ChatProvider, error) {
	cfg := model.ResolveGeneratorOpts(opts...)
	return &chatProvider{client: newClient(cfg), cfg: cfg}, nil
}

func (p *chatProvider) SendMessage(ctx context.Context, history []model.ChatMessage, text string) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(p.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if strings.TrimSpace(text) == "" {
		err := errors.New("message text is required")
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	instruction := model.DefaultChatInstruction
	if p.cfg.SystemInstruction != nil && strings.TrimSpace(*p.cfg.SystemInstruction) != "" {
		instruction = *p.cfg.SystemInstruction
	}
	messages := buildMessages(instruction, history, text)
	meta[model.MetadataKeyHistoryTurns] = strconv.Itoa(len(messages) - 2)

	log.Infof("model=%q messages=%d base_url=%q", modelName, len(messages), p.client.baseURL)

	response, err := p.client.chat(ctx, chatRequest{
		Model:    modelName,
		Messages: messages,
		Stream:   false,
		Options:  buildChatOptions(p.cfg),
	})
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	meta[model.MetadataKeyInputTokens] = strconv.FormatInt(response.PromptEvalCount, 10)
	meta[model.MetadataKeyOutputTokens] = strconv.FormatInt(response.EvalCount, 10)
	meta[model.MetadataKeyTotalTokens] = strconv.FormatInt(response.PromptEvalCount+response.EvalCount, 10)

	reply := strings.TrimSpace(response.Message.Content)
	if reply == "" {
		log.Errorf("error: %v", model.ErrEmptyResponse)
		return "", meta, utils.WrapIfNotNil(model.ErrEmptyResponse)
	}
	return reply, meta, nil
}

func buildMessages(instruction string, history []model.ChatMessage, text string) []ollamasdk.ChatMessage {
	messages := make([]ollamasdk.ChatMessage, 0, len(history)+2)
	messages = append(messages, ollamasdk.ChatMessage{Role: "system", Content: instruction})
	for _, message := range history {
		if strings.TrimSpace(message.Text) == "" {
			continue
		}
		role := "user"
		if message.Role == model.RoleModel {
			role = "assistant"
		}
		messages = append(messages, ollamasdk.ChatMessage{Role: role, Content: message.Text})
	}
	return append(messages, ollamasdk.ChatMessage{Role: "user", Content: text})
}
