package session

import (
	"context"
	"testing"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/metrics"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

type ManagerSuite struct {
	suite.Suite
	ctx     context.Context
	fixture *fixture
	metrics *metrics.Metrics
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.fixture = newFixture()
	s.metrics = metrics.NewMetrics()
	s.fixture.opts.Metrics = s.metrics
}

func (s *ManagerSuite) TestCreateGetRemove() {
	manager := NewManager(ManagerConfig{MaxSessions: 2}, s.fixture.opts)
	defer manager.Shutdown(s.ctx)

	first, err := manager.Create(s.ctx)
	s.Require().NoError(err)
	s.Len(first.ID, 36)

	got, err := manager.Get(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Same(first, got)

	_, err = manager.Create(s.ctx)
	s.Require().NoError(err)
	_, err = manager.Create(s.ctx)
	s.ErrorIs(err, ErrMaxSessions)
	s.InDelta(2, testutil.ToFloat64(s.metrics.ActiveSessions), 0)

	s.Require().NoError(manager.Remove(s.ctx, first.ID))
	s.Equal(1, manager.Count())
	_, err = manager.Get(s.ctx, first.ID)
	s.ErrorIs(err, ErrSessionNotFound)
}

func (s *ManagerSuite) TestCleanupInactive() {
	manager := NewManager(ManagerConfig{SessionTimeout: time.Minute}, s.fixture.opts)
	defer manager.Shutdown(s.ctx)

	idle, err := manager.Create(s.ctx)
	s.Require().NoError(err)
	watched, err := manager.Create(s.ctx)
	s.Require().NoError(err)
	listener := watched.Subscribe()
	defer watched.Unsubscribe(listener)

	for _, sess := range []*Session{idle, watched} {
		sess.mu.Lock()
		sess.lastActivity = time.Now().Add(-2 * time.Minute)
		sess.mu.Unlock()
	}

	s.Equal(1, manager.CleanupInactive(s.ctx))
	s.Equal(1, manager.Count())
	_, err = manager.Get(s.ctx, idle.ID)
	s.ErrorIs(err, ErrSessionNotFound)
	_, err = manager.Get(s.ctx, watched.ID)
	s.NoError(err)
}

func (s *ManagerSuite) TestRestoreFromRedis() {
	server := miniredis.RunT(s.T())
	store, err := NewRedisStore(s.ctx, server.Addr(), "", time.Hour)
	s.Require().NoError(err)
	s.fixture.opts.Store = store

	before := NewManager(ManagerConfig{}, s.fixture.opts)
	original, err := before.Create(s.ctx)
	s.Require().NoError(err)
	_, err = original.Submit(s.ctx, mp3Payload())
	s.Require().NoError(err)
	original.Wait()
	_, err = original.SendChat(s.ctx, "Is this clean?")
	s.Require().NoError(err)

	// a second process sharing the same redis
	secondStore, err := NewRedisStore(s.ctx, server.Addr(), "", time.Hour)
	s.Require().NoError(err)
	opts := s.fixture.opts
	opts.Store = secondStore
	after := NewManager(ManagerConfig{}, opts)
	defer after.Shutdown(s.ctx)

	restored, err := after.Get(s.ctx, original.ID)
	s.Require().NoError(err)
	s.NotSame(original, restored)
	s.Equal(PhaseResults, restored.State().Phase)
	s.Require().NotNil(restored.State().Result)
	s.Equal(93, restored.State().Result.Confidence)

	chat := restored.Chat()
	s.Require().Len(chat, 3)
	s.Equal(WelcomeMessage, chat[0].Text)
	s.Equal("Is this clean?", chat[1].Text)

	before.Shutdown(s.ctx)
}

func (s *ManagerSuite) TestShutdownWaitsForBackgroundWork() {
	s.fixture.analysis.release = make(chan struct{})
	manager := NewManager(ManagerConfig{}, s.fixture.opts)

	sess, err := manager.Create(s.ctx)
	s.Require().NoError(err)
	_, err = sess.Submit(s.ctx, mp3Payload())
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()
	manager.Shutdown(ctx)
	s.Equal(0, manager.Count())

	close(s.fixture.analysis.release)
	sess.Wait()
	s.Equal(PhaseAnalyzing, sess.State().Phase, "closed sessions drop late results")
}
