package cli

import "time"

// Mode represents the CLI operation mode
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeHeadless    Mode = "headless"
)

// Request represents a JSON request in headless mode
type Request struct {
	ID      string                 `json:"id,omitempty"`
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a JSON response in headless mode
type Response struct {
	ID      string      `json:"id,omitempty"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Event represents a real-time event in headless mode
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ConversationInfo represents a conversation in responses
type ConversationInfo struct {
	ID                string    `json:"id"`
	CounterpartID     string    `json:"counterpart_id,omitempty"`
	CounterpartName   string    `json:"counterpart_name"`
	CounterpartOnline bool      `json:"counterpart_online"`
	ListingID         string    `json:"listing_id,omitempty"`
	ListingTitle      string    `json:"listing_title,omitempty"`
	UnreadCount       int       `json:"unread_count"`
	LastMessageText   string    `json:"last_message_text,omitempty"`
	LastMessageAt     time.Time `json:"last_message_at,omitempty"`
}

// UnreadInfo is the badge state
type UnreadInfo struct {
	Total int    `json:"total"`
	Label string `json:"label"`
}

// SessionStatus represents session and stream state for responses
type SessionStatus struct {
	LoggedIn  bool   `json:"logged_in"`
	UserID    string `json:"user_id,omitempty"`
	Connected bool   `json:"connected"`
	Unread    int    `json:"unread"`
	Status    string `json:"status"`
}
