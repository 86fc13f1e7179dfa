package repository

import (
	"context"
	"time"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

// ConversationRepository holds the conversation summaries of one session.
// Update methods report whether a row matched so callers can tell an
// unknown id from a change.
type ConversationRepository interface {
	ReplaceAll(ctx context.Context, convs []*domain.ConversationSummary) error
	GetByID(ctx context.Context, id string) (*domain.ConversationSummary, error)
	GetAll(ctx context.Context, limit, offset int) ([]*domain.ConversationSummary, error)
	Search(ctx context.Context, query string, limit int) ([]*domain.ConversationSummary, error)
	UpdateLastMessage(ctx context.Context, id, text string, at time.Time) (bool, error)
	IncrementUnreadCount(ctx context.Context, id string) error
	UpdateUnreadCount(ctx context.Context, id string, count int) (bool, error)
	SetCounterpartOnline(ctx context.Context, counterpartID string, online bool) (int64, error)
	TotalUnread(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteAll(ctx context.Context) error
}
