package gemini

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	"google.golang.org/genai"
)

type chatProvider struct {
	cfg model.GeneratorConfig
}

func NewChatProvider(opts ...model.GeneratorOption) (model.ChatProvider, error) {
	cfg := model.ResolveGeneratorOpts(opts...)
	return &chatProvider{cfg: cfg}, nil
}

func (p *chatProvider) SendMessage(ctx context.Context, history []model.ChatMessage, text string) (string, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(p.cfg, defaultChatModelName)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if strings.TrimSpace(text) == "" {
		err := errors.New("message text is required")
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	client, err := newAPIClient(ctx, p.cfg)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	instruction := model.DefaultChatInstruction
	if p.cfg.SystemInstruction != nil && strings.TrimSpace(*p.cfg.SystemInstruction) != "" {
		instruction = *p.cfg.SystemInstruction
	}
	config := buildGenerateContentConfig(p.cfg, genai.NewContentFromText(instruction, genai.RoleUser))

	turns := mapHistory(history)
	meta[model.MetadataKeyHistoryTurns] = strconv.Itoa(len(turns))

	chat, err := client.Chats.Create(ctx, modelName, config, turns)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	log.Infof("model=%q history_turns=%d", modelName, len(turns))

	response, err := chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(transportError(err))
	}
	applyGenerateMetadata(meta, response)

	reply := strings.TrimSpace(response.Text())
	if reply == "" {
		log.Errorf("error: %v", model.ErrEmptyResponse)
		return "", meta, utils.WrapIfNotNil(model.ErrEmptyResponse)
	}
	return reply, meta, nil
}

func mapHistory(history []model.ChatMessage) []*genai.Content {
	turns := make([]*genai.Content, 0, len(history))
	for _, message := range history {
		if strings.TrimSpace(message.Text) == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if message.Role == model.RoleModel {
			role = genai.RoleModel
		}
		turns = append(turns, genai.NewContentFromText(message.Text, role))
	}
	return turns
}
