package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashuthecoder/cybervantage-api/internal/simulation"
)

const (
	// DefaultSessionTTL is how long an idle simulation state is kept.
	DefaultSessionTTL = 24 * time.Hour

	stateKeyPrefix = "cybervantage:simulation:state:"
)

// ErrStateDecode is returned when a stored state cannot be decoded.
var ErrStateDecode = errors.New("stored simulation state is unreadable")

// StateStore keeps the per-user simulation state. A missing entry loads as the zero state.
type StateStore interface {
	Load(ctx context.Context, userID uint) (simulation.State, error)
	Save(ctx context.Context, userID uint, state simulation.State) error
	Clear(ctx context.Context, userID uint) error
}

// NewStateStore returns a Redis-backed store, or an in-process store when client is nil.
func NewStateStore(client *redis.Client, ttl time.Duration) StateStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if client == nil {
		return NewMemoryStateStore()
	}
	return &redisStateStore{client: client, ttl: ttl}
}

type redisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func stateKey(userID uint) string {
	return fmt.Sprintf("%s%d", stateKeyPrefix, userID)
}

func (s *redisStateStore) Load(ctx context.Context, userID uint) (simulation.State, error) {
	raw, err := s.client.Get(ctx, stateKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return simulation.State{}, nil
		}
		return simulation.State{}, fmt.Errorf("load simulation state: %w", err)
	}
	var state simulation.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return simulation.State{}, fmt.Errorf("%w: %v", ErrStateDecode, err)
	}
	return state, nil
}

func (s *redisStateStore) Save(ctx context.Context, userID uint, state simulation.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, stateKey(userID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save simulation state: %w", err)
	}
	return nil
}

func (s *redisStateStore) Clear(ctx context.Context, userID uint) error {
	if err := s.client.Del(ctx, stateKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear simulation state: %w", err)
	}
	return nil
}

// MemoryStateStore keeps states in process memory. Entries do not expire.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[uint]simulation.State
}

// NewMemoryStateStore builds an empty in-process store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[uint]simulation.State)}
}

func (s *MemoryStateStore) Load(_ context.Context, userID uint) (simulation.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[userID], nil
}

func (s *MemoryStateStore) Save(_ context.Context, userID uint, state simulation.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = state
	return nil
}

func (s *MemoryStateStore) Clear(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}
