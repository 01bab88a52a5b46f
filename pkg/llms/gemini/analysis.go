package gemini

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/moderation"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	"google.golang.org/genai"
)

type analysisProvider struct {
	cfg model.GeneratorConfig
}

// NewAnalysisProvider sends the whole track inline with the moderation prompt and
// asks for JSON constrained by the moderation response schema.
func NewAnalysisProvider(opts ...model.GeneratorOption) (model.AnalysisProvider, error) {
	cfg := model.ResolveGeneratorOpts(opts...)
	return &analysisProvider{cfg: cfg}, nil
}

func (p *analysisProvider) Analyze(ctx context.Context, audio model.AudioPayload) (model.AnalysisResult, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(p.cfg, defaultAnalysisModelName)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	err := audio.Validate()
	if err != nil {
		log.Errorf("error: %v", err)
		return model.AnalysisResult{}, meta, utils.WrapIfNotNil(err)
	}
	meta[model.MetadataKeyAudioBytes] = strconv.Itoa(len(audio.Data))

	schema, err := moderation.ResponseSchema()
	if err != nil {
		log.Errorf("error: %v", err)
		return model.AnalysisResult{}, meta, utils.WrapIfNotNil(err)
	}

	client, err := newAPIClient(ctx, p.cfg)
	if err != nil {
		log.Errorf("error: %v", err)
		return model.AnalysisResult{}, meta, utils.WrapIfNotNil(err)
	}

	prompt := moderation.Prompt
	if p.cfg.Prompt != nil && strings.TrimSpace(*p.cfg.Prompt) != "" {
		prompt = *p.cfg.Prompt
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(
			[]*genai.Part{
				genai.NewPartFromBytes(audio.Data, audio.MIMEType),
				genai.NewPartFromText(prompt),
			},
			genai.RoleUser,
		),
	}
	config := buildGenerateContentConfig(p.cfg, nil)
	config.ResponseMIMEType = "application/json"
	config.ResponseJsonSchema = schema

	log.Infof("model=%q mime=%q audio_bytes=%d", modelName, audio.MIMEType, len(audio.Data))

	response, err := client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		log.Errorf("error: %v", err)
		return model.AnalysisResult{}, meta, utils.WrapIfNotNil(transportError(err))
	}
	applyGenerateMetadata(meta, response)

	result, err := moderation.ParseResult(response.Text())
	if err != nil {
		log.Errorf("error: %v", err)
		return model.AnalysisResult{}, meta, utils.WrapIfNotNil(err)
	}

	log.Infof("rating=%s confidence=%d words=%d flagged=%d", result.Rating, result.Confidence, len(result.Lyrics), result.FlaggedCount())
	return result, meta, nil
}
