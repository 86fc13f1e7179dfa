package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

// Conversation is one element of the conversation summaries response.
type Conversation struct {
	ID              ID     `json:"id"`
	UserID          ID     `json:"userId"`
	UserName        string `json:"userName"`
	UserAvatar      string `json:"userAvatar"`
	ProductID       ID     `json:"productId"`
	ProductTitle    string `json:"productTitle"`
	ProductImage    string `json:"productImage"`
	LastMessage     string `json:"lastMessage"`
	LastMessageTime Time   `json:"lastMessageTime"`
	UnreadCount     int    `json:"unreadCount"`
	IsOnline        bool   `json:"isOnline"`
}

func (c Conversation) ToDomain() *domain.ConversationSummary {
	unread := c.UnreadCount
	if unread < 0 {
		unread = 0
	}
	return &domain.ConversationSummary{
		ID:                   c.ID.String(),
		CounterpartID:        c.UserID.String(),
		CounterpartName:      c.UserName,
		CounterpartAvatarURL: c.UserAvatar,
		ListingID:            c.ProductID.String(),
		ListingTitle:         c.ProductTitle,
		ListingImageURL:      c.ProductImage,
		LastMessageText:      c.LastMessage,
		LastMessageAt:        c.LastMessageTime.Time,
		UnreadCount:          unread,
		CounterpartOnline:    c.IsOnline,
	}
}

// ConversationFromDomain is the inverse of ToDomain.
func ConversationFromDomain(c *domain.ConversationSummary) Conversation {
	return Conversation{
		ID:              ID(c.ID),
		UserID:          ID(c.CounterpartID),
		UserName:        c.CounterpartName,
		UserAvatar:      c.CounterpartAvatarURL,
		ProductID:       ID(c.ListingID),
		ProductTitle:    c.ListingTitle,
		ProductImage:    c.ListingImageURL,
		LastMessage:     c.LastMessageText,
		LastMessageTime: Time{c.LastMessageAt},
		UnreadCount:     c.UnreadCount,
		IsOnline:        c.CounterpartOnline,
	}
}

// DecodeConversations accepts a bare array or an object wrapping it under
// "conversations" or "data". Entries without an id are skipped and
// duplicate ids keep their first occurrence.
func DecodeConversations(body []byte) ([]*domain.ConversationSummary, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	var items []Conversation
	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode conversations: %w", err)
		}
	} else {
		var envelope struct {
			Conversations []Conversation `json:"conversations"`
			Data          []Conversation `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode conversations: %w", err)
		}
		items = envelope.Conversations
		if items == nil {
			items = envelope.Data
		}
	}

	seen := make(map[string]bool, len(items))
	out := make([]*domain.ConversationSummary, 0, len(items))
	for _, item := range items {
		conv := item.ToDomain()
		if conv.ID == "" || seen[conv.ID] {
			continue
		}
		seen[conv.ID] = true
		out = append(out, conv)
	}
	return out, nil
}
