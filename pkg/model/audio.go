package model

import (
	"errors"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
)

// LoadAudioFile reads a track from disk and tags it with the MIME type implied by
// its extension.
func LoadAudioFile(filePath string) (AudioPayload, error) {
	mimeType, err := AudioMIMEType(filePath)
	if err != nil {
		return AudioPayload{}, utils.WrapIfNotNil(err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return AudioPayload{}, utils.WrapIfNotNil(err)
	}

	payload := AudioPayload{Data: data, MIMEType: mimeType}
	if err := payload.Validate(); err != nil {
		return AudioPayload{}, utils.WrapIfNotNil(err, filePath)
	}
	return payload, nil
}

func AudioMIMEType(filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filePath)))
	if ext == "" {
		return "", utils.WrapIfNotNil(errors.Join(ErrUnsupportedMedia, errors.New("audio file extension is required to determine mime type")))
	}

	switch ext {
	case ".wav":
		return "audio/wav", nil
	case ".mp3":
		return "audio/mpeg", nil
	case ".m4a", ".mp4":
		return "audio/mp4", nil
	case ".webm":
		return "audio/webm", nil
	case ".ogg":
		return "audio/ogg", nil
	case ".flac":
		return "audio/flac", nil
	case ".aac":
		return "audio/aac", nil
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "", utils.WrapIfNotNil(errors.Join(ErrUnsupportedMedia, errors.New("unsupported audio file extension: "+ext)))
	}

	// Strip parameters such as "; charset=utf-8".
	mimeType = strings.TrimSpace(strings.Split(mimeType, ";")[0])
	if !strings.HasPrefix(mimeType, "audio/") {
		return "", utils.WrapIfNotNil(errors.Join(ErrUnsupportedMedia, errors.New("unsupported audio mime type: "+mimeType)))
	}
	return mimeType, nil
}
