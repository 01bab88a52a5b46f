package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/session"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	"github.com/bytedance/sonic"
)

const (
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
	ErrCodeMaxSessions      = "MAX_SESSIONS"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeUnsupportedMedia = "UNSUPPORTED_MEDIA"
	ErrCodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	ErrCodeAnalysisInFlight = "ANALYSIS_IN_FLIGHT"
	ErrCodeChatPending      = "CHAT_PENDING"
	ErrCodeChatReset        = "CHAT_RESET"
	ErrCodeNoResult         = "NO_RESULT"
	ErrCodeSessionClosed    = "SESSION_CLOSED"
	ErrCodeInternal         = "INTERNAL"
)

type analyzeResponse struct {
	Generation uint64 `json:"generation"`
}

type chatRequest struct {
	Text string `json:"text"`
}

type chatResponse struct {
	Message model.ChatMessage `json:"message"`
}

type speechResponse struct {
	Reading bool `json:"reading"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.manager.Count(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Create(r.Context())
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeSessionError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Remove(r.Context(), r.PathValue("id")); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ctx := logging.WithSessionID(r.Context(), sess.ID)
	log := logging.NewLogger(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || utils.ContainsErrorSubstring(err, "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "audio file is too large")
			return
		}
		log.Warnf("reading upload: %v", err)
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "could not read upload")
		return
	}

	payload := model.AudioPayload{Data: data, MIMEType: uploadMIMEType(header)}
	generation, err := sess.Submit(ctx, payload)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, analyzeResponse{Generation: generation})
}

// uploadMIMEType trusts the part's Content-Type unless the browser sent a
// generic one, in which case the filename extension decides.
func uploadMIMEType(header *multipart.FileHeader) string {
	contentType := strings.TrimSpace(strings.Split(header.Header.Get("Content-Type"), ";")[0])
	if contentType != "" && contentType != "application/octet-stream" {
		return strings.ToLower(contentType)
	}
	mimeType, err := model.AudioMIMEType(header.Filename)
	if err != nil {
		return contentType
	}
	return mimeType
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.Reset(logging.WithSessionID(r.Context(), sess.ID))
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var request chatRequest
	if err := sonic.ConfigDefault.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "body must be {\"text\": \"...\"}")
		return
	}

	reply, err := sess.SendChat(logging.WithSessionID(r.Context(), sess.ID), request.Text)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Message: reply})
}

func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.ResetChat(logging.WithSessionID(r.Context(), sess.ID))
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleToggleSpeech(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	reading, err := sess.ToggleReading(logging.WithSessionID(r.Context(), sess.ID))
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, speechResponse{Reading: reading})
}

func (s *Server) handleStopSpeech(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.StopReading(logging.WithSessionID(r.Context(), sess.ID))
	writeJSON(w, http.StatusOK, speechResponse{Reading: false})
}

func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, ErrCodeSessionNotFound, "session not found")
	case errors.Is(err, session.ErrMaxSessions):
		writeError(w, http.StatusServiceUnavailable, ErrCodeMaxSessions, "maximum sessions reached")
	case errors.Is(err, model.ErrUnsupportedMedia):
		writeError(w, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, "Please upload a valid audio file.")
	case errors.Is(err, model.ErrEmptyAudio), errors.Is(err, session.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, session.ErrAnalysisInFlight):
		writeError(w, http.StatusConflict, ErrCodeAnalysisInFlight, "an analysis is already in progress")
	case errors.Is(err, session.ErrChatPending):
		writeError(w, http.StatusConflict, ErrCodeChatPending, "waiting for the assistant to reply")
	case errors.Is(err, session.ErrChatReset):
		writeError(w, http.StatusConflict, ErrCodeChatReset, "chat was reset")
	case errors.Is(err, session.ErrNoResult):
		writeError(w, http.StatusConflict, ErrCodeNoResult, "no analysis result to read")
	case errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusGone, ErrCodeSessionClosed, "session is closed")
	default:
		logging.NewLogger(r.Context()).Errorf("error: %v", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
