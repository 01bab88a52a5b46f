package moderation

import (
	"fmt"

	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
)

// Prompt is the instruction sent alongside the audio track.
const Prompt = `You are a professional content moderator for a radio station.
1. Listen to the attached audio track.
2. Transcribe the lyrics word for word, in the order they are sung or spoken.
3. Check every word or phrase for obscenity, profanity, hate speech and sexually explicit content, judged against broadcast decency rules (FCC style).
4. Answer with a single JSON object that matches the response schema:
   - "rating": "Clean", "Explicit" or "Risky"
   - "summary": a short explanation of the rating
   - "lyrics": the transcript as a list of {"text", "isExplicit", "reason"} items; give a reason only for flagged items
   - "confidence": how sure you are of the rating, from 0 to 100

Split the transcript into individual words or small natural phrases so flagged content can be highlighted precisely.
If the track is instrumental, say so in the summary and return an empty lyrics list.`

// SummarySpeechText is the sentence read aloud by "read summary".
func SummarySpeechText(result model.AnalysisResult) string {
	return fmt.Sprintf("Analysis complete. This track is rated %s. %s.", result.Rating, result.Summary)
}
