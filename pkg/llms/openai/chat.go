package openai

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

type chatProvider struct {
	client *client
	cfg    model.GeneratorConfig
}

// NewChatProvider backs the studio assistant with the Responses API.
func NewChatProvider(opts ...model.GeneratorOption) (model.ChatProvider, error) {
	cfg := model.ResolveGeneratorOpts(opts...)
	return &chatProvider{client: newClient(cfg), cfg: cfg}, nil
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

	instruction := model.DefaultChatInstruction
	if p.cfg.SystemInstruction != nil && strings.TrimSpace(*p.cfg.SystemInstruction) != "" {
		instruction = *p.cfg.SystemInstruction
	}

	items := buildInputItems(history, text)
	meta[model.MetadataKeyHistoryTurns] = strconv.Itoa(len(items) - 1)

	params := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: items,
		},
		Model:        shared.ResponsesModel(modelName),
		Instructions: openai.String(instruction),
	}
	if p.cfg.Temperature != nil {
		params.Temperature = openai.Float(*p.cfg.Temperature)
	}
	if p.cfg.MaxTokens != nil {
		params.MaxOutputTokens = openai.Int(int64(*p.cfg.MaxTokens))
	}

	log.Infof("model=%q input_items=%d", modelName, len(items))

	response, err := p.client.apiClient.Responses.New(ctx, params)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(transportError(err))
	}
	applyResponseMetadata(meta, response)

	reply := strings.TrimSpace(response.OutputText())
	if reply == "" {
		log.Errorf("error: %v", model.ErrEmptyResponse)
		return "", meta, utils.WrapIfNotNil(model.ErrEmptyResponse)
	}
	return reply, meta, nil
}

func buildInputItems(history []model.ChatMessage, text string) responses.ResponseInputParam {
	items := make(responses.ResponseInputParam, 0, len(history)+1)
	for _, message := range history {
		if strings.TrimSpace(message.Text) == "" {
			continue
		}
		role := responses.EasyInputMessageRoleUser
		if message.Role == model.RoleModel {
			role = responses.EasyInputMessageRoleAssistant
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(message.Text, role))
	}
	return append(items, responses.ResponseInputItemParamOfMessage(text, responses.EasyInputMessageRoleUser))
}

func applyResponseMetadata(meta model.GenerationMetadata, response *responses.Response) {
	if meta == nil || response == nil {
		return
	}
	meta[model.MetadataKeyInputTokens] = strconv.FormatInt(response.Usage.InputTokens, 10)
	meta[model.MetadataKeyOutputTokens] = strconv.FormatInt(response.Usage.OutputTokens, 10)
	meta[model.MetadataKeyTotalTokens] = strconv.FormatInt(response.Usage.TotalTokens, 10)
	if response.ID != "" {
		meta[model.MetadataKeyResponseID] = response.ID
	}
}
