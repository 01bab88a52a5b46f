package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/codec"
	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/metrics"
	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/moderation"
	"github.com/Nephrolytics-ai/radiosafe/pkg/playback"
	"github.com/Nephrolytics-ai/radiosafe/pkg/providers"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	"github.com/google/uuid"
)

const (
	capabilityAnalysis = "analysis"
	capabilityChat     = "chat"
	capabilitySpeech   = "speech"

	defaultAnalysisTimeout = 2 * time.Minute
)

type Options struct {
	Providers       *providers.Set
	Store           Store
	Metrics         *metrics.Metrics
	AnalysisTimeout time.Duration
	// NewPlayer builds the playback controller for a session. When nil, speech
	// is paced out to the session's listeners as audio events.
	NewPlayer func(s *Session) *playback.Controller
}

// Session is one user's workspace: an upload slot with its application state,
// the assistant chat and the read-summary playback. All mutations go through mu;
// remote calls run without it and commit only if their generation still matches.
type Session struct {
	ID        string
	CreatedAt time.Time

	opts   Options
	player *playback.Controller
	events *broadcaster
	wg     sync.WaitGroup

	mu             sync.Mutex
	closed         bool
	lastActivity   time.Time
	state          State
	generation     uint64
	chat           []model.ChatMessage
	chatGeneration uint64
	chatPending    bool
	reading        bool
	readingGen     uint64
	handle         *playback.Handle
}

func newSession(id string, opts Options) *Session {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = defaultAnalysisTimeout
	}

	now := time.Now().UTC()
	s := &Session{
		ID:           id,
		CreatedAt:    now,
		opts:         opts,
		events:       newBroadcaster(),
		lastActivity: now,
		state:        Idle(),
		chat:         []model.ChatMessage{newMessage(model.RoleModel, WelcomeMessage)},
	}
	if opts.NewPlayer != nil {
		s.player = opts.NewPlayer(s)
	} else {
		s.player = playback.NewController(playback.NewStreamSink(s, playback.DefaultFrameDuration))
	}
	return s
}

func newMessage(role model.Role, text string) model.ChatMessage {
	return model.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

func (s *Session) logger(ctx context.Context) logging.Logger {
	return logging.NewLogger(logging.WithSessionID(ctx, s.ID))
}

// Subscribe registers a listener for state, chat, reading and audio events.
func (s *Session) Subscribe() *Listener {
	return s.events.subscribe()
}

func (s *Session) Unsubscribe(l *Listener) {
	s.events.unsubscribe(l)
}

func (s *Session) ListenerCount() int {
	return s.events.count()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) Chat() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ChatMessage(nil), s.chat...)
}

func (s *Session) IsReading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		ID:          s.ID,
		State:       s.state,
		Chat:        append([]model.ChatMessage(nil), s.chat...),
		ChatPending: s.chatPending,
		Reading:     s.reading,
		Generation:  s.generation,
	}
	if s.state.Result != nil {
		report := moderation.Render(*s.state.Result)
		snapshot.Report = &report
	}
	return snapshot
}

func (s *Session) publishLocked(eventType EventType) {
	snapshot := s.snapshotLocked()
	s.events.publish(Event{Type: eventType, SessionID: s.ID, Snapshot: &snapshot})
}

func (s *Session) touchLocked() {
	s.lastActivity = time.Now().UTC()
}

func (s *Session) record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Record{ID: s.ID, CreatedAt: s.CreatedAt, LastActivity: s.lastActivity, Phase: s.state.Phase}
}

func (s *Session) persist(ctx context.Context) {
	if err := s.opts.Store.SaveSession(ctx, s.record()); err != nil {
		s.logger(ctx).Warnf("persisting session: %v", err)
	}
}

// Submit starts analysing audio in the background and returns the generation
// the result will be committed under.
func (s *Session) Submit(ctx context.Context, audio model.AudioPayload) (uint64, error) {
	log := s.logger(ctx)
	if err := audio.Validate(); err != nil {
		log.Errorf("error: %v", err)
		return 0, utils.WrapIfNotNil(err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, utils.WrapIfNotNil(ErrSessionClosed)
	}
	if !s.state.acceptsSubmission() {
		s.mu.Unlock()
		return 0, utils.WrapIfNotNil(ErrAnalysisInFlight)
	}
	s.generation++
	generation := s.generation
	s.state = Analyzing()
	s.touchLocked()
	s.publishLocked(EventState)
	s.mu.Unlock()

	s.StopReading(ctx)
	s.persist(ctx)
	log.Infof("analysis submitted generation=%d mime=%q bytes=%d", generation, audio.MIMEType, len(audio.Data))

	// the upload request may finish long before the provider answers
	analysisCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.AnalysisTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.analyze(analysisCtx, generation, audio)
	}()
	return generation, nil
}

func (s *Session) analyze(ctx context.Context, generation uint64, audio model.AudioPayload) {
	log := s.logger(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic in analysis: %v", r)
			utils.PrintStack("analysis", log)
			s.commitAnalysis(ctx, generation, model.AnalysisResult{}, fmt.Errorf("analysis panicked: %v", r))
		}
	}()

	start := time.Now()
	result, meta, err := s.opts.Providers.Analysis.Analyze(ctx, audio)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	s.opts.Metrics.RecordRemoteCall(capabilityAnalysis, s.opts.Providers.Names.Analysis, outcome, time.Since(start))
	log.Debugf("analysis metadata: %v", meta)

	s.commitAnalysis(ctx, generation, result, err)
}

func (s *Session) commitAnalysis(ctx context.Context, generation uint64, result model.AnalysisResult, err error) {
	log := s.logger(ctx)

	s.mu.Lock()
	if s.closed || generation != s.generation {
		current := s.generation
		s.mu.Unlock()
		log.Infof("discarding stale analysis generation=%d current=%d", generation, current)
		s.opts.Metrics.RecordStaleResult(capabilityAnalysis)
		return
	}
	if err != nil {
		log.Errorf("analysis failed: %v", err)
		s.state = Failed(AnalysisFailedMessage)
	} else {
		s.state = Results(result)
		s.opts.Metrics.RecordAnalysis(string(result.Rating))
	}
	s.publishLocked(EventState)
	s.mu.Unlock()

	var saved *model.AnalysisResult
	if err == nil {
		saved = &result
	}
	if storeErr := s.opts.Store.SaveResult(ctx, s.ID, saved); storeErr != nil {
		log.Warnf("persisting result: %v", storeErr)
	}
	s.persist(ctx)
}

// Reset returns to Idle. An analysis still in flight keeps running but its
// result is dropped when it arrives.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	s.state = Idle()
	s.touchLocked()
	s.publishLocked(EventState)
	s.mu.Unlock()

	s.StopReading(ctx)
	if err := s.opts.Store.SaveResult(ctx, s.ID, nil); err != nil {
		s.logger(ctx).Warnf("clearing result: %v", err)
	}
	s.persist(ctx)
}

// SendChat appends the user's message, asks the assistant and appends its
// reply. Provider failures are not returned: they become the fallback reply.
func (s *Session) SendChat(ctx context.Context, text string) (model.ChatMessage, error) {
	log := s.logger(ctx)
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, utils.WrapIfNotNil(ErrEmptyMessage)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.ChatMessage{}, utils.WrapIfNotNil(ErrSessionClosed)
	}
	if s.chatPending {
		s.mu.Unlock()
		return model.ChatMessage{}, utils.WrapIfNotNil(ErrChatPending)
	}
	history := append([]model.ChatMessage(nil), s.chat...)
	userMessage := newMessage(model.RoleUser, text)
	s.chat = append(s.chat, userMessage)
	s.chatPending = true
	chatGeneration := s.chatGeneration
	s.touchLocked()
	s.publishLocked(EventChat)
	s.mu.Unlock()

	if err := s.opts.Store.AppendChat(ctx, s.ID, userMessage); err != nil {
		log.Warnf("persisting chat: %v", err)
	}

	start := time.Now()
	replyText, meta, err := s.askAssistant(ctx, history, text)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	s.opts.Metrics.RecordRemoteCall(capabilityChat, s.opts.Providers.Names.Chat, outcome, time.Since(start))
	log.Debugf("chat metadata: %v", meta)

	if err != nil || strings.TrimSpace(replyText) == "" {
		if err != nil {
			log.Errorf("chat failed: %v", err)
		}
		replyText = ChatFallbackMessage
	}
	reply := newMessage(model.RoleModel, replyText)

	s.mu.Lock()
	if s.closed || chatGeneration != s.chatGeneration {
		s.mu.Unlock()
		log.Infof("discarding chat reply for reset conversation")
		s.opts.Metrics.RecordStaleResult(capabilityChat)
		return model.ChatMessage{}, utils.WrapIfNotNil(ErrChatReset)
	}
	s.chat = append(s.chat, reply)
	s.chatPending = false
	s.touchLocked()
	s.publishLocked(EventChat)
	s.mu.Unlock()

	if err := s.opts.Store.AppendChat(ctx, s.ID, reply); err != nil {
		log.Warnf("persisting chat: %v", err)
	}
	return reply, nil
}

// askAssistant turns a provider panic into an error so the pending flag is
// always cleared.
func (s *Session) askAssistant(ctx context.Context, history []model.ChatMessage, text string) (reply string, meta model.GenerationMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			log := s.logger(ctx)
			log.Errorf("panic in chat provider: %v", r)
			utils.PrintStack("chat", log)
			err = fmt.Errorf("chat provider panicked: %v", r)
		}
	}()
	return s.opts.Providers.Chat.SendMessage(ctx, history, text)
}

// ResetChat clears the conversation back to the welcome message.
func (s *Session) ResetChat(ctx context.Context) {
	s.mu.Lock()
	s.chatGeneration++
	s.chat = []model.ChatMessage{newMessage(model.RoleModel, WelcomeMessage)}
	s.chatPending = false
	s.touchLocked()
	chat := append([]model.ChatMessage(nil), s.chat...)
	s.publishLocked(EventChat)
	s.mu.Unlock()

	if err := s.opts.Store.ReplaceChat(ctx, s.ID, chat); err != nil {
		s.logger(ctx).Warnf("persisting chat: %v", err)
	}
}

// ToggleReading starts reading the current result aloud, or stops it if a
// reading is already running. It reports whether reading is now on.
func (s *Session) ToggleReading(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, utils.WrapIfNotNil(ErrSessionClosed)
	}
	s.touchLocked()
	if s.reading {
		s.mu.Unlock()
		s.StopReading(ctx)
		return false, nil
	}
	if s.state.Phase != PhaseResults || s.state.Result == nil {
		s.mu.Unlock()
		return false, utils.WrapIfNotNil(ErrNoResult)
	}
	s.readingGen++
	readingGen := s.readingGen
	s.reading = true
	previous := s.handle
	s.handle = nil
	text := moderation.SummarySpeechText(*s.state.Result)
	s.publishLocked(EventReading)
	s.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.read(context.WithoutCancel(ctx), readingGen, text)
	}()
	return true, nil
}

func (s *Session) read(ctx context.Context, readingGen uint64, text string) {
	log := s.logger(ctx)
	defer utils.RecoverGoroutine("read summary", log)

	start := time.Now()
	audio, _, err := s.opts.Providers.Speech.Synthesize(ctx, text)
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailure
	case audio == nil:
		outcome = metrics.OutcomeEmpty
	}
	s.opts.Metrics.RecordRemoteCall(capabilitySpeech, s.opts.Providers.Names.Speech, outcome, time.Since(start))
	if err != nil || audio == nil {
		if err != nil {
			log.Warnf("speech synthesis failed: %v", err)
		}
		s.finishReading(readingGen, nil)
		return
	}

	handle, err := s.player.Play(ctx, audio.Audio)
	if err != nil {
		log.Warnf("speech playback failed: %v", err)
		s.finishReading(readingGen, nil)
		return
	}

	s.mu.Lock()
	if s.closed || readingGen != s.readingGen {
		s.mu.Unlock()
		handle.Stop()
		return
	}
	s.handle = handle
	s.mu.Unlock()
	s.opts.Metrics.RecordPlaybackStarted()

	<-handle.Done()
	reason := "stopped"
	if handle.Ended() {
		reason = "ended"
	}
	s.opts.Metrics.RecordPlaybackStopped(reason)
	s.finishReading(readingGen, handle)
}

func (s *Session) finishReading(readingGen uint64, handle *playback.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if readingGen != s.readingGen {
		return
	}
	if handle != nil && s.handle != handle {
		return
	}
	s.handle = nil
	s.reading = false
	s.publishLocked(EventReading)
}

// StopReading halts any summary playback. Safe to call when nothing is playing.
func (s *Session) StopReading(_ context.Context) {
	s.mu.Lock()
	s.readingGen++
	handle := s.handle
	s.handle = nil
	if s.reading {
		s.reading = false
		s.publishLocked(EventReading)
	}
	s.mu.Unlock()

	if handle != nil {
		handle.Stop()
	}
}

// WriteFrame publishes one paced playback frame to listeners.
func (s *Session) WriteFrame(sampleRate int, channels int, frame []int16) error {
	raw := make([]byte, len(frame)*2)
	for i, sample := range frame {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(sample))
	}
	s.events.publish(Event{
		Type:      EventAudio,
		SessionID: s.ID,
		Frame: &AudioFrame{
			SampleRate: sampleRate,
			Channels:   channels,
			Data:       codec.EncodeToTransport(raw),
		},
	})
	return nil
}

// Wait blocks until background analyses and readings have finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close stops playback and drops listeners. Background analyses are left to
// finish on their own; their results are discarded.
func (s *Session) Close(ctx context.Context) {
	s.StopReading(ctx)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.events.close()
}
