package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "active_sessions"

// Record is the persisted summary of a session.
type Record struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	Phase        Phase
}

// Store persists what a session needs to survive a process restart: its chat
// history and its last analysis result.
type Store interface {
	SaveSession(ctx context.Context, record Record) error
	LoadSession(ctx context.Context, id string) (*Record, error)
	RemoveSession(ctx context.Context, id string) error
	AppendChat(ctx context.Context, id string, message model.ChatMessage) error
	ReplaceChat(ctx context.Context, id string, messages []model.ChatMessage) error
	LoadChat(ctx context.Context, id string) ([]model.ChatMessage, error)
	SaveResult(ctx context.Context, id string, result *model.AnalysisResult) error
	LoadResult(ctx context.Context, id string) (*model.AnalysisResult, error)
	Close() error
}

type memoryEntry struct {
	record Record
	chat   []model.ChatMessage
	result *model.AnalysisResult
}

// MemoryStore keeps everything in process. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (m *MemoryStore) entry(id string) *memoryEntry {
	e, ok := m.entries[id]
	if !ok {
		e = &memoryEntry{record: Record{ID: id}}
		m.entries[id] = e
	}
	return e
}

func (m *MemoryStore) SaveSession(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(record.ID).record = record
	return nil
}

func (m *MemoryStore) LoadSession(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	record := e.record
	return &record, nil
}

func (m *MemoryStore) RemoveSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) AppendChat(_ context.Context, id string, message model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(id)
	e.chat = append(e.chat, message)
	return nil
}

func (m *MemoryStore) ReplaceChat(_ context.Context, id string, messages []model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(id).chat = append([]model.ChatMessage(nil), messages...)
	return nil
}

func (m *MemoryStore) LoadChat(_ context.Context, id string) ([]model.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return append([]model.ChatMessage(nil), e.chat...), nil
}

func (m *MemoryStore) SaveResult(_ context.Context, id string, result *model.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result == nil {
		m.entry(id).result = nil
		return nil
	}
	copied := *result
	m.entry(id).result = &copied
	return nil
}

func (m *MemoryStore) LoadResult(_ context.Context, id string) (*model.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok || e.result == nil {
		return nil, nil
	}
	copied := *e.result
	return &copied, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// RedisStore mirrors sessions into Redis. Every key expires after ttl of
// inactivity; the session hash, chat list and result share one lifetime.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects and pings. redisURL is either a redis:// URL or a
// bare host:port.
func NewRedisStore(ctx context.Context, redisURL, password string, ttl time.Duration) (*RedisStore, error) {
	var opts *redis.Options
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, utils.WrapIfNotNil(err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: redisURL, DB: 0}
	}
	if password != "" {
		opts.Password = password
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, utils.WrapIfNotNil(err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func sessionKey(id string) string { return "session:" + id }
func chatKey(id string) string    { return "session:" + id + ":chat" }
func resultKey(id string) string  { return "session:" + id + ":result" }

func (r *RedisStore) SaveSession(ctx context.Context, record Record) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(record.ID), map[string]interface{}{
			"created_at":    record.CreatedAt.Format(time.RFC3339Nano),
			"last_activity": record.LastActivity.Format(time.RFC3339Nano),
			"state":         string(record.Phase),
		})
		pipe.SAdd(ctx, activeSessionsKey, record.ID)
		pipe.Expire(ctx, sessionKey(record.ID), r.ttl)
		pipe.Expire(ctx, chatKey(record.ID), r.ttl)
		pipe.Expire(ctx, resultKey(record.ID), r.ttl)
		return nil
	})
	return utils.WrapIfNotNil(err)
}

func (r *RedisStore) LoadSession(ctx context.Context, id string) (*Record, error) {
	values, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	record := &Record{ID: id, Phase: Phase(values["state"])}
	if record.CreatedAt, err = time.Parse(time.RFC3339Nano, values["created_at"]); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	if record.LastActivity, err = time.Parse(time.RFC3339Nano, values["last_activity"]); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return record, nil
}

func (r *RedisStore) RemoveSession(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id), chatKey(id), resultKey(id))
		pipe.SRem(ctx, activeSessionsKey, id)
		return nil
	})
	return utils.WrapIfNotNil(err)
}

func (r *RedisStore) AppendChat(ctx context.Context, id string, message model.ChatMessage) error {
	encoded, err := sonic.Marshal(message)
	if err != nil {
		return utils.WrapIfNotNil(err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, chatKey(id), encoded)
		pipe.Expire(ctx, chatKey(id), r.ttl)
		return nil
	})
	return utils.WrapIfNotNil(err)
}

func (r *RedisStore) ReplaceChat(ctx context.Context, id string, messages []model.ChatMessage) error {
	encoded := make([]interface{}, 0, len(messages))
	for _, message := range messages {
		value, err := sonic.Marshal(message)
		if err != nil {
			return utils.WrapIfNotNil(err)
		}
		encoded = append(encoded, value)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, chatKey(id))
		if len(encoded) > 0 {
			pipe.RPush(ctx, chatKey(id), encoded...)
			pipe.Expire(ctx, chatKey(id), r.ttl)
		}
		return nil
	})
	return utils.WrapIfNotNil(err)
}

func (r *RedisStore) LoadChat(ctx context.Context, id string) ([]model.ChatMessage, error) {
	values, err := r.client.LRange(ctx, chatKey(id), 0, -1).Result()
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	messages := make([]model.ChatMessage, 0, len(values))
	for _, value := range values {
		var message model.ChatMessage
		if err := sonic.UnmarshalString(value, &message); err != nil {
			return nil, utils.WrapIfNotNil(err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (r *RedisStore) SaveResult(ctx context.Context, id string, result *model.AnalysisResult) error {
	if result == nil {
		return utils.WrapIfNotNil(r.client.Del(ctx, resultKey(id)).Err())
	}
	encoded, err := sonic.Marshal(result)
	if err != nil {
		return utils.WrapIfNotNil(err)
	}
	return utils.WrapIfNotNil(r.client.Set(ctx, resultKey(id), encoded, r.ttl).Err())
}

func (r *RedisStore) LoadResult(ctx context.Context, id string) (*model.AnalysisResult, error) {
	value, err := r.client.Get(ctx, resultKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	var result model.AnalysisResult
	if err := sonic.UnmarshalString(value, &result); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return &result, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
