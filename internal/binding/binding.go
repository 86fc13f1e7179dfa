// Package binding holds the read-only views screens render: the conversation
// list and the unread badge. Both read through the session manager, so they
// follow login and logout without owning a stream connection.
package binding

import (
	"context"
	"strconv"
	"sync"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

const DefaultBadgeCap = 99

type ConversationReader interface {
	Conversations(ctx context.Context, query string, limit int) ([]*domain.ConversationSummary, error)
}

type UnreadReader interface {
	Total() int
}

// notifier turns bus events into a coalescing change signal. A pending
// signal absorbs any further events until it is read.
type notifier struct {
	bus  domain.EventBus
	sub  <-chan domain.Event
	ch   chan struct{}
	once sync.Once
	done chan struct{}
}

func newNotifier(bus domain.EventBus, types []domain.EventType) *notifier {
	n := &notifier{
		bus:  bus,
		ch:   make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if bus == nil {
		close(n.done)
		return n
	}
	n.sub = bus.Subscribe(types)
	go n.loop()
	return n
}

func (n *notifier) loop() {
	defer close(n.done)
	for range n.sub {
		select {
		case n.ch <- struct{}{}:
		default:
		}
	}
}

func (n *notifier) close() {
	n.once.Do(func() {
		if n.sub != nil {
			n.bus.Unsubscribe(n.sub)
		}
		<-n.done
	})
}

// ConversationList is the conversations screen.
type ConversationList struct {
	reader ConversationReader
	notify *notifier
}

func NewConversationList(reader ConversationReader, bus domain.EventBus) *ConversationList {
	return &ConversationList{
		reader: reader,
		notify: newNotifier(bus, []domain.EventType{
			domain.EventTypeConversationsChanged,
			domain.EventTypePresenceChanged,
		}),
	}
}

// Items returns the conversations, most recent first. A blank query returns
// all of them; otherwise counterpart names and listing titles are matched
// case-insensitively.
func (l *ConversationList) Items(ctx context.Context, query string) ([]*domain.ConversationSummary, error) {
	return l.reader.Conversations(ctx, query, 0)
}

// Changes signals that Items may return something different.
func (l *ConversationList) Changes() <-chan struct{} { return l.notify.ch }

func (l *ConversationList) Close() { l.notify.close() }

// Badge is the unread counter shown on the inbox tab.
type Badge struct {
	reader  UnreadReader
	ceiling int
	notify  *notifier
}

func NewBadge(reader UnreadReader, bus domain.EventBus, ceiling int) *Badge {
	if ceiling <= 0 {
		ceiling = DefaultBadgeCap
	}
	return &Badge{
		reader:  reader,
		ceiling: ceiling,
		notify:  newNotifier(bus, []domain.EventType{domain.EventTypeUnreadCountChanged}),
	}
}

// Count is the unclamped total.
func (b *Badge) Count() int { return b.reader.Total() }

func (b *Badge) Label() string { return b.LabelFor(b.Count()) }

// LabelFor formats n with this badge's ceiling.
func (b *Badge) LabelFor(n int) string { return FormatBadge(n, b.ceiling) }

func (b *Badge) Changes() <-chan struct{} { return b.notify.ch }

func (b *Badge) Close() { b.notify.close() }

// FormatBadge renders n for display: empty for zero, the number up to ceiling,
// "<ceiling>+" beyond.
func FormatBadge(n, ceiling int) string {
	switch {
	case n <= 0:
		return ""
	case n > ceiling:
		return strconv.Itoa(ceiling) + "+"
	}
	return strconv.Itoa(n)
}
