package domain

import "time"

// ConversationSummary is one thread between the current user and a
// counterpart about a listing.
type ConversationSummary struct {
	ID                   string
	CounterpartID        string
	CounterpartName      string
	CounterpartAvatarURL string
	ListingID            string
	ListingTitle         string
	ListingImageURL      string
	LastMessageText      string
	LastMessageAt        time.Time
	UnreadCount          int
	CounterpartOnline    bool
}

// Clone returns a copy that callers may modify without touching the store.
func (c *ConversationSummary) Clone() *ConversationSummary {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// DisplayName falls back to the counterpart id when no name is known.
func (c *ConversationSummary) DisplayName() string {
	if c == nil {
		return ""
	}
	if c.CounterpartName != "" {
		return c.CounterpartName
	}
	return c.CounterpartID
}

// SumUnread adds up UnreadCount over convs.
func SumUnread(convs []*ConversationSummary) int {
	total := 0
	for _, c := range convs {
		if c != nil && c.UnreadCount > 0 {
			total += c.UnreadCount
		}
	}
	return total
}
