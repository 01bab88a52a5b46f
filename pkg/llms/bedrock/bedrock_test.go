package bedrock

import (
	"context"
	"testing"

	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/suite"
)

type BedrockChatSuite struct {
	suite.Suite
}

func TestBedrockChatSuite(t *testing.T) {
	suite.Run(t, new(BedrockChatSuite))
}

func (s *BedrockChatSuite) TestBuildMessagesMapsRolesAndMergesRuns() {
	messages := buildMessages([]model.ChatMessage{
		{Role: model.RoleModel, Text: "Hi! I'm your assistant."},
		{Role: model.RoleUser, Text: "first"},
		{Role: model.RoleModel, Text: "answer"},
		{Role: model.RoleModel, Text: ""},
		{Role: model.RoleUser, Text: "second"},
	}, "third")

	s.Require().Len(messages, 3)
	s.Equal(bedrocktypes.ConversationRoleUser, messages[0].Role)
	s.Equal(bedrocktypes.ConversationRoleAssistant, messages[1].Role)
	s.Equal(bedrocktypes.ConversationRoleUser, messages[2].Role)
	s.Len(messages[2].Content, 2)
	s.Equal("second\nthird", extractTextFromMessage(messages[2]))
}

func (s *BedrockChatSuite) TestBuildInferenceConfig() {
	s.Nil(buildInferenceConfig(model.GeneratorConfig{}))

	temperature := 0.2
	maxTokens := 256
	inference := buildInferenceConfig(model.GeneratorConfig{Temperature: &temperature, MaxTokens: &maxTokens})
	s.Require().NotNil(inference)
	s.Equal(int32(256), aws.ToInt32(inference.MaxTokens))
	s.InDelta(0.2, aws.ToFloat32(inference.Temperature), 0.0001)
}

func (s *BedrockChatSuite) TestReplyFromOutput() {
	meta := initMetadata(defaultModelName)
	reply, err := replyFromOutput(&bedrockruntime.ConverseOutput{
		Output: &bedrocktypes.ConverseOutputMemberMessage{
			Value: bedrocktypes.Message{
				Role: bedrocktypes.ConversationRoleAssistant,
				Content: []bedrocktypes.ContentBlock{
					&bedrocktypes.ContentBlockMemberText{Value: " FCC rules apply. "},
				},
			},
		},
		StopReason: bedrocktypes.StopReasonEndTurn,
		Usage: &bedrocktypes.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(4),
			TotalTokens:  aws.Int32(14),
		},
	}, meta)
	s.Require().NoError(err)
	s.Equal("FCC rules apply.", reply)
	s.Equal("14", meta[model.MetadataKeyTotalTokens])
	s.Equal("end_turn", meta[model.MetadataKeyStopReason])
}

func (s *BedrockChatSuite) TestReplyFromOutputWithoutText() {
	_, err := replyFromOutput(&bedrockruntime.ConverseOutput{
		Output: &bedrocktypes.ConverseOutputMemberMessage{
			Value: bedrocktypes.Message{Role: bedrocktypes.ConversationRoleAssistant},
		},
	}, initMetadata(defaultModelName))
	s.ErrorIs(err, model.ErrEmptyResponse)

	_, err = replyFromOutput(&bedrockruntime.ConverseOutput{}, initMetadata(defaultModelName))
	s.ErrorIs(err, model.ErrEmptyResponse)
}

func (s *BedrockChatSuite) TestSendMessageWithoutCredentials() {
	s.T().Setenv("AWS_ACCESS_KEY_ID", "")
	s.T().Setenv("AWS_SECRET_ACCESS_KEY", "")
	s.T().Setenv("AWS_PROFILE", "")

	provider, err := NewChatProvider()
	s.Require().NoError(err)

	_, meta, err := provider.SendMessage(context.Background(), nil, "hello")
	s.Require().Error(err)
	s.Contains(err.Error(), "missing AWS credentials")
	s.Equal(providerName, meta[model.MetadataKeyProvider])
}
