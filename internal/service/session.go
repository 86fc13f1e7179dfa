package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
	"github.com/clippy-oss/homie/inbox-bridge/internal/logger"
	"github.com/clippy-oss/homie/inbox-bridge/internal/repository"
	"github.com/clippy-oss/homie/inbox-bridge/internal/transport/stream"
)

// StreamOpener attaches a listener to the live stream of an identity.
// *stream.Registry implements it.
type StreamOpener interface {
	Open(identity domain.Identity, listener stream.Listener) (*stream.Handle, error)
}

// SourceFactory builds the snapshot source for an identity.
type SourceFactory func(identity domain.Identity) (ConversationSource, error)

type SessionManagerConfig struct {
	FetchTimeout time.Duration
	QueueSize    int
}

// Session is everything owned by one signed-in identity. Nothing in it
// outlives Close.
type Session struct {
	identity   domain.Identity
	db         *gorm.DB
	store      *ConversationStore
	aggregator *UnreadAggregator
	dispatcher *Dispatcher
	handle     *stream.Handle
	closeOnce  sync.Once
}

func (s *Session) Identity() domain.Identity { return s.identity }
func (s *Session) Connected() bool           { return s.handle != nil && s.handle.Connected() }

// Close releases the stream handle, stops dispatch and discards all
// conversation state.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.handle != nil {
			s.handle.Close()
		}
		if s.dispatcher != nil {
			s.dispatcher.Stop()
		}
		s.store.Clear()
		err = repository.Close(s.db)
	})
	return err
}

// SessionManager owns at most one Session and swaps it when the identity
// changes. It is the read side every screen binding goes through, so
// bindings never see a previous identity's data.
type SessionManager struct {
	opener  StreamOpener
	sources SourceFactory
	bus     domain.EventBus
	config  SessionManagerConfig
	log     zerolog.Logger

	switchMu sync.Mutex // serializes SetIdentity
	mu       sync.RWMutex
	current  *Session
}

func NewSessionManager(opener StreamOpener, sources SourceFactory, bus domain.EventBus, config SessionManagerConfig) *SessionManager {
	return &SessionManager{
		opener:  opener,
		sources: sources,
		bus:     bus,
		config:  config,
		log:     logger.Module("session"),
	}
}

// SetIdentity makes identity the active one. The same identity again is a
// no-op; a zero identity only tears down. A failed initial load is returned
// but the session stays up so a later Resync can recover.
func (m *SessionManager) SetIdentity(ctx context.Context, identity domain.Identity) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()

	if cur != nil && cur.identity == identity {
		return nil
	}
	if cur == nil && identity.IsZero() {
		return nil
	}

	if cur != nil {
		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()
		if err := cur.Close(); err != nil {
			m.log.Warn().Err(err).Str("user_id", cur.identity.UserID).Msg("session close failed")
		}
		m.log.Info().Str("user_id", cur.identity.UserID).Msg("session ended")
	}
	if identity.IsZero() {
		return nil
	}

	sess, err := m.open(identity)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.log.Info().Str("user_id", identity.UserID).Msg("session started")

	if _, err := sess.store.LoadAll(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	return nil
}

func (m *SessionManager) open(identity domain.Identity) (*Session, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	source, err := m.sources(identity)
	if err != nil {
		return nil, fmt.Errorf("conversation source: %w", err)
	}
	db, err := repository.OpenMemory()
	if err != nil {
		return nil, err
	}

	store := NewConversationStore(repository.NewConversationRepository(db), source, m.bus, ConversationStoreConfig{
		CurrentUserID: identity.UserID,
		FetchTimeout:  m.config.FetchTimeout,
	})
	agg := NewUnreadAggregator(store, m.bus)
	disp := NewDispatcher(store, m.bus, agg.Resync, m.config.QueueSize)
	disp.Start()

	handle, err := m.opener.Open(identity, disp)
	if err != nil {
		disp.Stop()
		repository.Close(db)
		return nil, err
	}

	return &Session{
		identity:   identity,
		db:         db,
		store:      store,
		aggregator: agg,
		dispatcher: disp,
		handle:     handle,
	}, nil
}

func (m *SessionManager) Logout() error {
	return m.SetIdentity(context.Background(), domain.Identity{})
}

// Current returns the active session, or nil when logged out.
func (m *SessionManager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *SessionManager) Identity() domain.Identity {
	if s := m.Current(); s != nil {
		return s.Identity()
	}
	return domain.Identity{}
}

func (m *SessionManager) Resync(ctx context.Context) (int, error) {
	s := m.Current()
	if s == nil {
		return 0, domain.ErrNotLoggedIn
	}
	return s.aggregator.Resync(ctx)
}

// Conversations returns the active session's conversations, filtered by
// query when it is not blank. Logged out yields an empty list.
func (m *SessionManager) Conversations(ctx context.Context, query string, limit int) ([]*domain.ConversationSummary, error) {
	s := m.Current()
	if s == nil {
		return []*domain.ConversationSummary{}, nil
	}
	return s.store.Search(ctx, query, limit)
}

// Conversation looks up one conversation of the active session. A missing
// id yields nil without error.
func (m *SessionManager) Conversation(ctx context.Context, id string) (*domain.ConversationSummary, error) {
	s := m.Current()
	if s == nil {
		return nil, domain.ErrNotLoggedIn
	}
	return s.store.Get(ctx, id)
}

func (m *SessionManager) Remove(id string) (bool, error) {
	s := m.Current()
	if s == nil {
		return false, domain.ErrNotLoggedIn
	}
	return s.store.Remove(id), nil
}

func (m *SessionManager) Total() int {
	if s := m.Current(); s != nil {
		return s.aggregator.Total()
	}
	return 0
}

func (m *SessionManager) IsConnected() bool {
	if s := m.Current(); s != nil {
		return s.Connected()
	}
	return false
}

// Close ends the active session.
func (m *SessionManager) Close() error {
	return m.Logout()
}
