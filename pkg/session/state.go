package session

import (
	"errors"

	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/moderation"
)

const (
	AnalysisFailedMessage = "Failed to analyze track. Please try again later or check your API key."
	WelcomeMessage        = "Hi! I'm your Radio AI Assistant. Ask me about broadcasting rules, music info, or the analysis results."
	ChatFallbackMessage   = "Sorry, I encountered an error connecting to the studio server."
)

var (
	ErrAnalysisInFlight = errors.New("an analysis is already in progress")
	ErrChatPending      = errors.New("waiting for the assistant to reply")
	ErrChatReset        = errors.New("chat was reset before the reply arrived")
	ErrEmptyMessage     = errors.New("message text is required")
	ErrNoResult         = errors.New("no analysis result to read")
	ErrSessionNotFound  = errors.New("session not found")
	ErrMaxSessions      = errors.New("maximum sessions reached")
	ErrSessionClosed    = errors.New("session is closed")
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAnalyzing Phase = "analyzing"
	PhaseResults   Phase = "results"
	PhaseError     Phase = "error"
)

// State is the application state. Result is set only in PhaseResults and
// Message only in PhaseError.
type State struct {
	Phase   Phase                 `json:"phase"`
	Result  *model.AnalysisResult `json:"result,omitempty"`
	Message string                `json:"message,omitempty"`
}

func Idle() State      { return State{Phase: PhaseIdle} }
func Analyzing() State { return State{Phase: PhaseAnalyzing} }

func Results(result model.AnalysisResult) State {
	return State{Phase: PhaseResults, Result: &result}
}

func Failed(message string) State {
	return State{Phase: PhaseError, Message: message}
}

// acceptsSubmission reports whether a new upload may start from this state.
func (s State) acceptsSubmission() bool {
	return s.Phase != PhaseAnalyzing
}

// Snapshot is a point-in-time copy of everything a client renders.
type Snapshot struct {
	ID          string              `json:"id"`
	State       State               `json:"state"`
	Report      *moderation.Report  `json:"report,omitempty"`
	Chat        []model.ChatMessage `json:"chat"`
	ChatPending bool                `json:"chatPending"`
	Reading     bool                `json:"reading"`
	Generation  uint64              `json:"generation"`
}
