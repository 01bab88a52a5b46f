package gemini

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/codec"
	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	"google.golang.org/genai"
)

type speechProvider struct {
	cfg model.GeneratorConfig
}

// NewSpeechProvider reads text aloud with a prebuilt voice. The returned audio is
// raw 24 kHz mono 16-bit PCM.
func NewSpeechProvider(opts ...model.GeneratorOption) (model.SpeechProvider, error) {
	cfg := model.ResolveGeneratorOpts(opts...)
	return &speechProvider{cfg: cfg}, nil
}

func (p *speechProvider) Synthesize(ctx context.Context, text string) (*model.SpeechAudio, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveModelName(p.cfg, defaultSpeechModelName)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if strings.TrimSpace(text) == "" {
		err := errors.New("speech text is required")
		log.Errorf("error: %v", err)
		return nil, meta, utils.WrapIfNotNil(err)
	}

	voice := defaultVoiceName
	if p.cfg.Voice != nil && strings.TrimSpace(*p.cfg.Voice) != "" {
		voice = strings.TrimSpace(*p.cfg.Voice)
	}
	meta[model.MetadataKeyVoice] = voice

	client, err := newAPIClient(ctx, p.cfg)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, meta, utils.WrapIfNotNil(err)
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	log.Infof("model=%q voice=%q chars=%d", modelName, voice, len(text))

	response, err := client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, meta, utils.WrapIfNotNil(transportError(err))
	}
	applyGenerateMetadata(meta, response)

	blob := firstInlineAudio(response)
	if blob == nil {
		log.Warnf("speech response carried no audio")
		return nil, meta, nil
	}
	meta[model.MetadataKeyAudioBytes] = strconv.Itoa(len(blob.Data))

	return &model.SpeechAudio{
		Audio:    codec.EncodeToTransport(blob.Data),
		MIMEType: blob.MIMEType,
	}, meta, nil
}

// firstInlineAudio only looks at the first part of the first candidate.
func firstInlineAudio(response *genai.GenerateContentResponse) *genai.Blob {
	if response == nil || len(response.Candidates) == 0 {
		return nil
	}
	candidate := response.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil
	}
	part := candidate.Content.Parts[0]
	if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
		return nil
	}
	return part.InlineData
}
