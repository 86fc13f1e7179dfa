package domain

import (
	"sync"
	"time"
)

type EventType string

const (
	EventTypeMessageReceived      EventType = "message.received"
	EventTypeConversationRead     EventType = "conversation.read"
	EventTypePresenceChanged      EventType = "presence.changed"
	EventTypeConnectionStatus     EventType = "connection.status"
	EventTypeConversationsChanged EventType = "conversations.changed"
	EventTypeUnreadCountChanged   EventType = "unread.changed"
)

type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// MessageReceivedEvent is a new message in a conversation, sent by either
// participant.
type MessageReceivedEvent struct {
	ConversationID string
	MessageID      string
	SenderID       string
	Text           string
	SentAt         time.Time
	EventTime      time.Time
}

func (e MessageReceivedEvent) Type() EventType      { return EventTypeMessageReceived }
func (e MessageReceivedEvent) Timestamp() time.Time { return e.EventTime }

// ConversationReadEvent means ReaderID has read everything in the
// conversation.
type ConversationReadEvent struct {
	ConversationID string
	ReaderID       string
	EventTime      time.Time
}

func (e ConversationReadEvent) Type() EventType      { return EventTypeConversationRead }
func (e ConversationReadEvent) Timestamp() time.Time { return e.EventTime }

type PresenceChangedEvent struct {
	UserID    string
	Online    bool
	EventTime time.Time
}

func (e PresenceChangedEvent) Type() EventType      { return EventTypePresenceChanged }
func (e PresenceChangedEvent) Timestamp() time.Time { return e.EventTime }

// ConnectionStatusEvent reports the live stream state. Reconnected is set on
// every successful connect after the first one for a handle.
type ConnectionStatusEvent struct {
	Connected   bool
	Reconnected bool
	Reason      string
	EventTime   time.Time
}

func (e ConnectionStatusEvent) Type() EventType      { return EventTypeConnectionStatus }
func (e ConnectionStatusEvent) Timestamp() time.Time { return e.EventTime }

// ConversationsChangedEvent is published by the store after every settled
// mutation.
type ConversationsChangedEvent struct {
	Count       int
	TotalUnread int
	Generation  uint64
	EventTime   time.Time
}

func (e ConversationsChangedEvent) Type() EventType      { return EventTypeConversationsChanged }
func (e ConversationsChangedEvent) Timestamp() time.Time { return e.EventTime }

type UnreadCountChangedEvent struct {
	Total     int
	EventTime time.Time
}

func (e UnreadCountChangedEvent) Type() EventType      { return EventTypeUnreadCountChanged }
func (e UnreadCountChangedEvent) Timestamp() time.Time { return e.EventTime }

// EventBus provides pub/sub for domain events
type EventBus interface {
	Publish(event Event)
	Subscribe(eventTypes []EventType) <-chan Event
	Unsubscribe(ch <-chan Event)
}

// SimpleEventBus is a basic in-memory implementation of EventBus. Publish
// never blocks; a subscriber whose buffer is full misses the event, so
// subscribers treat events as change hints and read current state.
type SimpleEventBus struct {
	mu          sync.RWMutex
	subscribers map[<-chan Event]subscription
	bufferSize  int
}

type subscription struct {
	ch         chan Event
	eventTypes map[EventType]bool
}

func NewEventBus() *SimpleEventBus {
	return NewEventBusWithBuffer(100)
}

func NewEventBusWithBuffer(size int) *SimpleEventBus {
	if size <= 0 {
		size = 1
	}
	return &SimpleEventBus{
		subscribers: make(map[<-chan Event]subscription),
		bufferSize:  size,
	}
}

func (b *SimpleEventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if len(sub.eventTypes) == 0 || sub.eventTypes[event.Type()] {
			select {
			case sub.ch <- event:
			default:
				// Channel full, skip this subscriber
			}
		}
	}
}

func (b *SimpleEventBus) Subscribe(eventTypes []EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	typeMap := make(map[EventType]bool)
	for _, t := range eventTypes {
		typeMap[t] = true
	}

	b.subscribers[ch] = subscription{
		ch:         ch,
		eventTypes: typeMap,
	}

	return ch
}

func (b *SimpleEventBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[ch]; ok {
		close(sub.ch)
		delete(b.subscribers, ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *SimpleEventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
