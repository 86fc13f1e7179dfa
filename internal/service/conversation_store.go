package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
	"github.com/clippy-oss/homie/inbox-bridge/internal/logger"
	"github.com/clippy-oss/homie/inbox-bridge/internal/repository"
)

// ConversationSource yields the authoritative conversation snapshot.
type ConversationSource interface {
	FetchConversations(ctx context.Context) ([]*domain.ConversationSummary, error)
}

type ConversationSourceFunc func(ctx context.Context) ([]*domain.ConversationSummary, error)

func (f ConversationSourceFunc) FetchConversations(ctx context.Context) ([]*domain.ConversationSummary, error) {
	return f(ctx)
}

// ChangeFunc is called with the unread total after every settled mutation,
// while the store is still locked. It must not call back into the store.
type ChangeFunc func(totalUnread, count int)

const DefaultFetchTimeout = 10 * time.Second

type ConversationStoreConfig struct {
	CurrentUserID string
	FetchTimeout  time.Duration
}

// ConversationStore is the session's single view of its conversations. All
// writes are serialized; loads are tagged with a generation so that a slow,
// superseded load or an event received before the installed snapshot was
// requested cannot overwrite newer state.
type ConversationStore struct {
	repo    repository.ConversationRepository
	source  ConversationSource
	bus     domain.EventBus
	userID  string
	timeout time.Duration
	log     zerolog.Logger

	mu        sync.Mutex
	started   uint64 // last generation handed to a load
	installed uint64 // generation of the snapshot in repo
	listeners []ChangeFunc
}

func NewConversationStore(
	repo repository.ConversationRepository,
	source ConversationSource,
	bus domain.EventBus,
	config ConversationStoreConfig,
) *ConversationStore {
	timeout := config.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &ConversationStore{
		repo:    repo,
		source:  source,
		bus:     bus,
		userID:  config.CurrentUserID,
		timeout: timeout,
		log:     logger.Module("store").With().Str("user_id", config.CurrentUserID).Logger(),
	}
}

// OnChange registers fn and immediately calls it with the current state.
func (s *ConversationStore) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	total, count := s.totalsLocked(context.Background())
	fn(total, count)
}

// Generation returns the generation of the most recently started load.
// Events stamped with it before being queued are applied only if no newer
// snapshot has been installed in the meantime.
func (s *ConversationStore) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// InstalledGeneration returns the generation of the snapshot currently held.
func (s *ConversationStore) InstalledGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

// LoadAll replaces the collection with a fresh snapshot. On failure the
// previous state is kept and a *domain.FetchError is returned. If a newer
// load has already been installed when this one resolves, its result is
// discarded and the current contents are returned.
func (s *ConversationStore) LoadAll(ctx context.Context) ([]*domain.ConversationSummary, error) {
	s.mu.Lock()
	s.started++
	gen := s.started
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	convs, err := s.source.FetchConversations(fetchCtx)
	cancel()
	if err != nil {
		fe := domain.AsFetchError(err)
		s.log.Warn().Err(fe).Uint64("generation", gen).Int("status_code", fe.StatusCode).Msg("conversation load failed")
		return nil, fe
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen < s.installed {
		s.log.Debug().Uint64("generation", gen).Uint64("installed", s.installed).Msg("discarding superseded snapshot")
		return s.repo.GetAll(context.Background(), 0, 0)
	}

	if err := s.repo.ReplaceAll(context.Background(), convs); err != nil {
		s.log.Error().Err(err).Uint64("generation", gen).Msg("failed to install snapshot")
		return nil, err
	}
	s.installed = gen
	s.notifyLocked()

	s.log.Info().Uint64("generation", gen).Int("count", len(convs)).Msg("snapshot installed")
	return s.repo.GetAll(context.Background(), 0, 0)
}

// Apply applies ev as if it had just been received.
func (s *ConversationStore) Apply(ev domain.Event) bool {
	return s.ApplyAt(s.Generation(), ev)
}

// ApplyAt applies an event stamped with the generation current when it was
// received. It reports whether the store changed. It never fails: unknown
// ids and unsupported events are ignored.
func (s *ConversationStore) ApplyAt(gen uint64, ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen < s.installed {
		s.log.Debug().
			Str("event", string(ev.Type())).
			Uint64("generation", gen).
			Uint64("installed", s.installed).
			Msg("dropping event older than snapshot")
		return false
	}

	var changed bool
	switch e := ev.(type) {
	case domain.MessageReceivedEvent:
		changed = s.applyMessageReceivedLocked(e)
	case domain.ConversationReadEvent:
		changed = s.applyConversationReadLocked(e)
	case domain.PresenceChangedEvent:
		changed = s.applyPresenceChangedLocked(e)
	default:
		return false
	}

	if changed {
		s.notifyLocked()
	}
	return changed
}

func (s *ConversationStore) ApplyMessageReceived(e domain.MessageReceivedEvent) bool {
	return s.Apply(e)
}

func (s *ConversationStore) ApplyConversationRead(e domain.ConversationReadEvent) bool {
	return s.Apply(e)
}

func (s *ConversationStore) ApplyPresenceChanged(e domain.PresenceChangedEvent) bool {
	return s.Apply(e)
}

func (s *ConversationStore) applyMessageReceivedLocked(e domain.MessageReceivedEvent) bool {
	ctx := context.Background()
	at := e.SentAt
	if at.IsZero() {
		at = e.EventTime
	}
	if at.IsZero() {
		at = time.Now()
	}

	found, err := s.repo.UpdateLastMessage(ctx, e.ConversationID, e.Text, at)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", e.ConversationID).Msg("failed to update last message")
		return false
	}
	if !found {
		s.log.Debug().Str("conversation_id", e.ConversationID).Msg("message for unknown conversation")
		return false
	}

	// Our own messages, e.g. echoed from another device, are never unread.
	if e.SenderID == s.userID {
		return true
	}
	if err := s.repo.IncrementUnreadCount(ctx, e.ConversationID); err != nil {
		s.log.Error().Err(err).Str("conversation_id", e.ConversationID).Msg("failed to increment unread count")
	}
	return true
}

func (s *ConversationStore) applyConversationReadLocked(e domain.ConversationReadEvent) bool {
	if e.ReaderID != s.userID {
		return false
	}
	found, err := s.repo.UpdateUnreadCount(context.Background(), e.ConversationID, 0)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", e.ConversationID).Msg("failed to reset unread count")
		return false
	}
	return found
}

func (s *ConversationStore) applyPresenceChangedLocked(e domain.PresenceChangedEvent) bool {
	n, err := s.repo.SetCounterpartOnline(context.Background(), e.UserID, e.Online)
	if err != nil {
		s.log.Error().Err(err).Str("counterpart_id", e.UserID).Msg("failed to update presence")
		return false
	}
	return n > 0
}

// Remove deletes one conversation, e.g. after the user deleted it.
func (s *ConversationStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.repo.Delete(context.Background(), id)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", id).Msg("failed to remove conversation")
		return false
	}
	if found {
		s.notifyLocked()
	}
	return found
}

// Clear empties the store. Loads still in flight stay valid.
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteAll(context.Background()); err != nil {
		s.log.Error().Err(err).Msg("failed to clear conversations")
		return
	}
	s.notifyLocked()
}

func (s *ConversationStore) List(ctx context.Context) ([]*domain.ConversationSummary, error) {
	return s.repo.GetAll(ctx, 0, 0)
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*domain.ConversationSummary, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ConversationStore) Search(ctx context.Context, query string, limit int) ([]*domain.ConversationSummary, error) {
	return s.repo.Search(ctx, query, limit)
}

func (s *ConversationStore) totalsLocked(ctx context.Context) (int, int) {
	total, err := s.repo.TotalUnread(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to sum unread counts")
	}
	count, err := s.repo.Count(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to count conversations")
	}
	return total, count
}

func (s *ConversationStore) notifyLocked() {
	total, count := s.totalsLocked(context.Background())
	for _, fn := range s.listeners {
		fn(total, count)
	}
	if s.bus != nil {
		s.bus.Publish(domain.ConversationsChangedEvent{
			Count:       count,
			TotalUnread: total,
			Generation:  s.installed,
			EventTime:   time.Now(),
		})
	}
}
