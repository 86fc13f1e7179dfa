package repository

import (
	"time"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

type ConversationModel struct {
	ID                   string    `gorm:"primaryKey;column:id"`
	CounterpartID        string    `gorm:"column:counterpart_id;index"`
	CounterpartName      string    `gorm:"column:counterpart_name"`
	CounterpartAvatarURL string    `gorm:"column:counterpart_avatar_url"`
	ListingID            string    `gorm:"column:listing_id"`
	ListingTitle         string    `gorm:"column:listing_title"`
	ListingImageURL      string    `gorm:"column:listing_image_url"`
	LastMessageText      string    `gorm:"column:last_message_text"`
	LastMessageAt        time.Time `gorm:"column:last_message_at;index"`
	UnreadCount          int       `gorm:"column:unread_count;not null;default:0"`
	CounterpartOnline    bool      `gorm:"column:counterpart_online"`
	// Position is the index in the snapshot the row came from; it breaks
	// ties between equal LastMessageAt values.
	Position int `gorm:"column:position"`
}

func (ConversationModel) TableName() string { return "conversations" }

// Conversion functions
func ConversationModelToDomain(m *ConversationModel) *domain.ConversationSummary {
	if m == nil {
		return nil
	}

	unread := m.UnreadCount
	if unread < 0 {
		unread = 0
	}

	return &domain.ConversationSummary{
		ID:                   m.ID,
		CounterpartID:        m.CounterpartID,
		CounterpartName:      m.CounterpartName,
		CounterpartAvatarURL: m.CounterpartAvatarURL,
		ListingID:            m.ListingID,
		ListingTitle:         m.ListingTitle,
		ListingImageURL:      m.ListingImageURL,
		LastMessageText:      m.LastMessageText,
		LastMessageAt:        m.LastMessageAt,
		UnreadCount:          unread,
		CounterpartOnline:    m.CounterpartOnline,
	}
}

func ConversationDomainToModel(c *domain.ConversationSummary, position int) *ConversationModel {
	if c == nil {
		return nil
	}

	unread := c.UnreadCount
	if unread < 0 {
		unread = 0
	}

	return &ConversationModel{
		ID:                   c.ID,
		CounterpartID:        c.CounterpartID,
		CounterpartName:      c.CounterpartName,
		CounterpartAvatarURL: c.CounterpartAvatarURL,
		ListingID:            c.ListingID,
		ListingTitle:         c.ListingTitle,
		ListingImageURL:      c.ListingImageURL,
		LastMessageText:      c.LastMessageText,
		LastMessageAt:        c.LastMessageAt,
		UnreadCount:          unread,
		CounterpartOnline:    c.CounterpartOnline,
		Position:             position,
	}
}
