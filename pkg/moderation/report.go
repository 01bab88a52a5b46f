package moderation

import (
	"fmt"
	"strings"

	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
)

type Tone string

const (
	ToneSafe    Tone = "safe"
	ToneDanger  Tone = "danger"
	ToneWarning Tone = "warning"
)

// Token is one transcript entry as it should be shown.
type Token struct {
	Text        string `json:"text"`
	Highlighted bool   `json:"highlighted"`
	Tooltip     string `json:"tooltip,omitempty"`
}

// Report is the presentation of an AnalysisResult.
type Report struct {
	Rating          model.Rating `json:"rating"`
	Badge           string       `json:"badge"`
	Tone            Tone         `json:"tone"`
	ConfidenceLabel string       `json:"confidenceLabel"`
	Summary         string       `json:"summary"`
	Tokens          []Token      `json:"tokens"`
	FlaggedCount    int          `json:"flaggedCount"`
}

func Render(result model.AnalysisResult) Report {
	tokens := make([]Token, 0, len(result.Lyrics))
	for _, word := range result.Lyrics {
		token := Token{Text: word.Text, Highlighted: word.IsExplicit}
		if word.IsExplicit {
			token.Tooltip = word.Reason
		}
		tokens = append(tokens, token)
	}

	return Report{
		Rating:          result.Rating,
		Badge:           strings.ToUpper(string(result.Rating)),
		Tone:            toneFor(result.Rating),
		ConfidenceLabel: fmt.Sprintf("%d%%", result.Confidence),
		Summary:         result.Summary,
		Tokens:          tokens,
		FlaggedCount:    result.FlaggedCount(),
	}
}

func toneFor(rating model.Rating) Tone {
	switch rating {
	case model.RatingClean:
		return ToneSafe
	case model.RatingExplicit:
		return ToneDanger
	default:
		return ToneWarning
	}
}

// Text renders the report for a terminal. Flagged tokens are wrapped in [[ ]] and
// followed by their reason when one was given.
func (r Report) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (confidence %s)\n", r.Badge, r.ConfidenceLabel)
	fmt.Fprintf(&sb, "Summary: %s\n", r.Summary)

	sb.WriteString("Transcript:")
	if len(r.Tokens) == 0 {
		sb.WriteString(" (no lyrics)")
	}
	for _, token := range r.Tokens {
		sb.WriteString(" ")
		if !token.Highlighted {
			sb.WriteString(token.Text)
			continue
		}
		sb.WriteString("[[" + token.Text + "]]")
		if token.Tooltip != "" {
			fmt.Fprintf(&sb, "(%s)", token.Tooltip)
		}
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Flagged: %d\n", r.FlaggedCount)
	return sb.String()
}
