package service

import (
	"context"
	"sync"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var sessionTracer = otel.Tracer("service/sessions")

const persistTimeout = 5 * time.Second

// Sessions is the two-tier session store: an authoritative in-memory
// map for live sessions and an eventually-consistent Supabase shadow
// (write-behind). Persistence failures are logged, never surfaced.
type Sessions struct {
	store  port.SessionStore
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry

	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

type sessionEntry struct {
	mu      sync.Mutex
	session *domain.ConversationSession
}

// NewSessions creates the session manager and starts the inactivity
// sweeper.
func NewSessions(store port.SessionStore, ttl time.Duration, logger *zap.Logger) *Sessions {
	s := &Sessions{
		store:    store,
		logger:   logger,
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go s.sweeper()
	return s
}

func (s *Sessions) sweeper() {
	ticker := time.NewTicker(s.ttl / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.stop:
			return
		}
	}
}

// evictIdle drops sessions inactive longer than the TTL from memory.
// Their persisted rows remain.
func (s *Sessions) evictIdle() {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.sessions {
		entry.mu.Lock()
		idle := entry.session.LastMessageAt.Before(cutoff)
		entry.mu.Unlock()
		if idle {
			delete(s.sessions, id)
		}
	}
}

// Close stops the sweeper.
func (s *Sessions) Close() {
	s.once.Do(func() { close(s.stop) })
}

// GetOrCreate returns the live session, reviving it from the store if
// it fell out of memory, or creating a fresh one.
func (s *Sessions) GetOrCreate(ctx context.Context, sessionID, storeID, productID string) *domain.ConversationSession {
	ctx, span := sessionTracer.Start(ctx, "Sessions.GetOrCreate")
	defer span.End()

	s.mu.Lock()
	if entry, ok := s.sessions[sessionID]; ok && sessionID != "" {
		s.mu.Unlock()
		return entry.session
	}
	s.mu.Unlock()

	if sessionID != "" {
		if revived, err := s.store.GetSession(ctx, sessionID); err == nil {
			s.mu.Lock()
			s.sessions[sessionID] = &sessionEntry{session: revived}
			s.mu.Unlock()
			return revived
		}
	}

	now := time.Now()
	session := &domain.ConversationSession{
		ID:          uuid.NewString(),
		StoreID:     storeID,
		ProductID:   productID,
		CurrentStep: domain.StepInitialEngagement,
		StartedAt:   now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = &sessionEntry{session: session}
	s.mu.Unlock()
	return session
}

// Get returns the live session, reviving from the store when needed.
func (s *Sessions) Get(ctx context.Context, sessionID string) (*domain.ConversationSession, error) {
	s.mu.Lock()
	if entry, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return entry.session, nil
	}
	s.mu.Unlock()

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sessionID] = &sessionEntry{session: session}
	s.mu.Unlock()
	return session, nil
}

// WithLock runs fn while holding the session's mutex, so transitions
// for one session never run concurrently. Messages for distinct
// sessions proceed in parallel.
func (s *Sessions) WithLock(sessionID string, fn func(*domain.ConversationSession) error) error {
	s.mu.Lock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "session", ID: sessionID}
	}
	s.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.session)
}

// Persist writes the session shadow to the store asynchronously. The
// in-memory copy stays authoritative; a failed write only logs.
func (s *Sessions) Persist(session *domain.ConversationSession) {
	// Copy under the caller's lock; slices are cloned so a later
	// append cannot race with the marshal below.
	snapshot := *session
	snapshot.Messages = append([]domain.ChatMessage(nil), session.Messages...)
	snapshot.Concerns = append([]string(nil), session.Concerns...)
	snapshot.Topics = append([]string(nil), session.Topics...)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := s.store.UpsertSession(ctx, &snapshot); err != nil {
			s.logger.Warn("session persistence failed",
				zap.String("session_id", snapshot.ID),
				zap.Error(err))
		}
	}()
}
