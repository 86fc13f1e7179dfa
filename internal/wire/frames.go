package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

// Event names on the live stream.
const (
	EventMessage      = "message"
	EventMessagesRead = "messagesRead"
	EventUserStatus   = "userStatus"
)

// Frame is the envelope of every text frame on the live stream.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Message struct {
	ID             ID     `json:"id"`
	Text           string `json:"text"`
	SenderID       ID     `json:"senderId"`
	Timestamp      Time   `json:"timestamp"`
	IsRead         bool   `json:"isRead"`
	ConversationID ID     `json:"conversationId"`
}

type MessagesRead struct {
	ConversationID ID `json:"conversationId"`
	UserID         ID `json:"userId"`
}

type UserStatus struct {
	UserID   ID   `json:"userId"`
	IsOnline bool `json:"isOnline"`
}

// DecodeEvent turns a frame into a domain event. It returns (nil, nil) for
// event names this client does not consume.
func DecodeEvent(f Frame, received time.Time) (domain.Event, error) {
	switch f.Event {
	case EventMessage:
		var m Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		sentAt := m.Timestamp.Time
		if sentAt.IsZero() {
			sentAt = received
		}
		return domain.MessageReceivedEvent{
			ConversationID: m.ConversationID.String(),
			MessageID:      m.ID.String(),
			SenderID:       m.SenderID.String(),
			Text:           m.Text,
			SentAt:         sentAt,
			EventTime:      received,
		}, nil

	case EventMessagesRead:
		var r MessagesRead
		if err := json.Unmarshal(f.Data, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return domain.ConversationReadEvent{
			ConversationID: r.ConversationID.String(),
			ReaderID:       r.UserID.String(),
			EventTime:      received,
		}, nil

	case EventUserStatus:
		var s UserStatus
		if err := json.Unmarshal(f.Data, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return domain.PresenceChangedEvent{
			UserID:    s.UserID.String(),
			Online:    s.IsOnline,
			EventTime: received,
		}, nil
	}
	return nil, nil
}

// EncodeEvent builds the frame the backend would send for ev. Used by the
// mock backend and tests.
func EncodeEvent(ev domain.Event) (Frame, error) {
	var name string
	var payload interface{}

	switch e := ev.(type) {
	case domain.MessageReceivedEvent:
		name = EventMessage
		payload = Message{
			ID:             ID(e.MessageID),
			Text:           e.Text,
			SenderID:       ID(e.SenderID),
			Timestamp:      Time{e.SentAt},
			ConversationID: ID(e.ConversationID),
		}
	case domain.ConversationReadEvent:
		name = EventMessagesRead
		payload = MessagesRead{ConversationID: ID(e.ConversationID), UserID: ID(e.ReaderID)}
	case domain.PresenceChangedEvent:
		name = EventUserStatus
		payload = UserStatus{UserID: ID(e.UserID), IsOnline: e.Online}
	default:
		return Frame{}, fmt.Errorf("event %s has no wire form", ev.Type())
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: name, Data: data}, nil
}
