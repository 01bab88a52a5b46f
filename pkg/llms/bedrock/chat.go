package bedrock

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type chatProvider struct {
	cfg model.GeneratorConfig
}

// NewChatProvider uses the Bedrock Converse API. AWS credentials are resolved
// per call so a missing profile surfaces as a chat failure, not a startup one.
func NewChatProvider(opts ...model.GeneratorOption) (model.ChatProvider, error) {
	cfg := model.ResolveGeneratorOpts(opts...)
	return &chatProvider{cfg: cfg}, nil
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

	client, err := newClient(ctx, p.cfg)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}

	instruction := model.DefaultChatInstruction
	if p.cfg.SystemInstruction != nil && strings.TrimSpace(*p.cfg.SystemInstruction) != "" {
		instruction = *p.cfg.SystemInstruction
	}
	messages := buildMessages(history, text)
	meta[model.MetadataKeyHistoryTurns] = strconv.Itoa(len(messages) - 1)

	log.Infof("model=%q messages=%d", modelName, len(messages))

	output, err := client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelName),
		Messages: messages,
		System: []bedrocktypes.SystemContentBlock{
			&bedrocktypes.SystemContentBlockMemberText{Value: instruction},
		},
		InferenceConfig: buildInferenceConfig(p.cfg),
	})
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(transportError(err))
	}

	reply, err := replyFromOutput(output, meta)
	if err != nil {
		log.Errorf("error: %v", err)
		return "", meta, utils.WrapIfNotNil(err)
	}
	return reply, meta, nil
}

// buildMessages folds consecutive turns with the same role into one message;
// Converse rejects two user (or two assistant) messages in a row.
func buildMessages(history []model.ChatMessage, text string) []bedrocktypes.Message {
	messages := make([]bedrocktypes.Message, 0, len(history)+1)
	appendTurn := func(role bedrocktypes.ConversationRole, value string) {
		if len(messages) > 0 && messages[len(messages)-1].Role == role {
			last := &messages[len(messages)-1]
			last.Content = append(last.Content, &bedrocktypes.ContentBlockMemberText{Value: value})
			return
		}
		messages = append(messages, bedrocktypes.Message{
			Role: role,
			Content: []bedrocktypes.ContentBlock{
				&bedrocktypes.ContentBlockMemberText{Value: value},
			},
		})
	}

	for _, message := range history {
		if strings.TrimSpace(message.Text) == "" {
			continue
		}
		// the conversation must open with a user turn
		if len(messages) == 0 && message.Role == model.RoleModel {
			continue
		}
		role := bedrocktypes.ConversationRoleUser
		if message.Role == model.RoleModel {
			role = bedrocktypes.ConversationRoleAssistant
		}
		appendTurn(role, message.Text)
	}
	appendTurn(bedrocktypes.ConversationRoleUser, text)
	return messages
}

func buildInferenceConfig(cfg model.GeneratorConfig) *bedrocktypes.InferenceConfiguration {
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}

	inference := &bedrocktypes.InferenceConfiguration{}
	if cfg.MaxTokens != nil {
		inference.MaxTokens = aws.Int32(int32(*cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		inference.Temperature = aws.Float32(float32(*cfg.Temperature))
	}
	return inference
}

func replyFromOutput(output *bedrockruntime.ConverseOutput, meta model.GenerationMetadata) (string, error) {
	if output == nil {
		return "", utils.WrapIfNotNil(model.ErrEmptyResponse)
	}
	if output.Usage != nil {
		meta[model.MetadataKeyInputTokens] = strconv.FormatInt(int64(aws.ToInt32(output.Usage.InputTokens)), 10)
		meta[model.MetadataKeyOutputTokens] = strconv.FormatInt(int64(aws.ToInt32(output.Usage.OutputTokens)), 10)
		meta[model.MetadataKeyTotalTokens] = strconv.FormatInt(int64(aws.ToInt32(output.Usage.TotalTokens)), 10)
	}
	if stopReason := strings.TrimSpace(string(output.StopReason)); stopReason != "" {
		meta[model.MetadataKeyStopReason] = stopReason
	}

	message, err := extractOutputMessage(output.Output)
	if err != nil {
		return "", utils.WrapIfNotNil(errors.Join(model.ErrEmptyResponse, err))
	}
	reply := extractTextFromMessage(message)
	if reply == "" {
		return "", utils.WrapIfNotNil(model.ErrEmptyResponse)
	}
	return reply, nil
}

func extractOutputMessage(output bedrocktypes.ConverseOutput) (bedrocktypes.Message, error) {
	if output == nil {
		return bedrocktypes.Message{}, utils.WrapIfNotNil(errors.New("converse output is nil"))
	}

	messageOutput, ok := output.(*bedrocktypes.ConverseOutputMemberMessage)
	if !ok || messageOutput == nil {
		return bedrocktypes.Message{}, utils.WrapIfNotNil(errors.New("converse output is not a message"))
	}
	return messageOutput.Value, nil
}

func extractTextFromMessage(message bedrocktypes.Message) string {
	parts := make([]string, 0)
	for _, block := range message.Content {
		textBlock, ok := block.(*bedrocktypes.ContentBlockMemberText)
		if !ok || textBlock == nil {
			continue
		}
		value := strings.TrimSpace(textBlock.Value)
		if value == "" {
			continue
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, "\n")
}
