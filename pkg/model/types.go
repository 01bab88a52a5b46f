package model

import (
	"strings"
	"time"
)

type Rating string

const (
	RatingClean    Rating = "Clean"
	RatingExplicit Rating = "Explicit"
	RatingRisky    Rating = "Risky"
)

func (r Rating) Valid() bool {
	switch r {
	case RatingClean, RatingExplicit, RatingRisky:
		return true
	}
	return false
}

// LyricWord is one transcribed token (a word or short phrase). Reason is empty
// when the token is not flagged or the model gave no reason.
type LyricWord struct {
	Text       string `json:"text"`
	IsExplicit bool   `json:"isExplicit"`
	Reason     string `json:"reason,omitempty"`
}

type AnalysisResult struct {
	Rating     Rating      `json:"rating"`
	Summary    string      `json:"summary"`
	Confidence int         `json:"confidence"`
	Lyrics     []LyricWord `json:"lyrics"`
}

func (r AnalysisResult) FlaggedCount() int {
	count := 0
	for _, word := range r.Lyrics {
		if word.IsExplicit {
			count++
		}
	}
	return count
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxRecommendedAudioBytes is the upload size shown to users; the server limit is configurable.
const MaxRecommendedAudioBytes = 10 << 20

// AudioPayload is the raw uploaded track. It is not modified after capture.
type AudioPayload struct {
	Data     []byte
	MIMEType string
}

func (a AudioPayload) Validate() error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.MIMEType)), "audio/") {
		return ErrUnsupportedMedia
	}
	if len(a.Data) == 0 {
		return ErrEmptyAudio
	}
	return nil
}

// SpeechAudio holds synthesized speech as a base64 transport string of raw
// 16-bit little-endian PCM.
type SpeechAudio struct {
	Audio    string `json:"audio"`
	MIMEType string `json:"mimeType"`
}
