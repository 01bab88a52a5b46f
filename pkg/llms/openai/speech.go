package openai

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/codec"
	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	openai "github.com/openai/openai-go/v3"
)

const speechMIMEType = "audio/pcm;rate=24000"

type speechProvider struct {
	client *client
	cfg    model.GeneratorConfig
}

// NewSpeechProvider requests raw PCM, which the API returns as 24 kHz mono 16-bit
// little-endian samples, the same layout the playback controller expects.
func NewSpeechProvider(opts ...model.GeneratorOption) (model.SpeechProvider, error) {
	cfg := model.ResolveGeneratorOpts(opts...)
	return &speechProvider{client: newClient(cfg), cfg: cfg}, nil
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
		voice = openai.AudioSpeechNewParamsVoice(strings.TrimSpace(*p.cfg.Voice))
	}
	meta[model.MetadataKeyVoice] = string(voice)

	log.Infof("model=%q voice=%q chars=%d", modelName, voice, len(text))

	response, err := p.client.apiClient.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          modelName,
		Voice:          voice,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, meta, utils.WrapIfNotNil(transportError(err))
	}
	defer response.Body.Close()

	pcm, err := io.ReadAll(response.Body)
	if err != nil {
		log.Errorf("error: %v", err)
		return nil, meta, utils.WrapIfNotNil(transportError(err))
	}
	if len(pcm) == 0 {
		log.Warnf("speech response carried no audio")
		return nil, meta, nil
	}
	meta[model.MetadataKeyAudioBytes] = strconv.Itoa(len(pcm))

	return &model.SpeechAudio{
		Audio:    codec.EncodeToTransport(pcm),
		MIMEType: speechMIMEType,
	}, meta, nil
}
