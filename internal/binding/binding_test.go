package binding

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

type fakeReader struct {
	convs []*domain.ConversationSummary
	total atomic.Int64
	query string
}

func (f *fakeReader) Conversations(ctx context.Context, query string, limit int) ([]*domain.ConversationSummary, error) {
	f.query = query
	return f.convs, nil
}

func (f *fakeReader) Total() int { return int(f.total.Load()) }

func TestFormatBadge(t *testing.T) {
	tests := []struct {
		n       int
		ceiling int
		want    string
	}{
		{0, 99, ""},
		{-1, 99, ""},
		{1, 99, "1"},
		{7, 99, "7"},
		{99, 99, "99"},
		{100, 99, "99+"},
		{12345, 99, "99+"},
		{10, 9, "9+"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBadge(tt.n, tt.ceiling), "n=%d ceiling=%d", tt.n, tt.ceiling)
	}
}

func TestBadge_CountIsNotClamped(t *testing.T) {
	r := &fakeReader{}
	b := NewBadge(r, nil, 0)
	defer b.Close()

	r.total.Store(100)
	assert.Equal(t, 100, b.Count())
	assert.Equal(t, "99+", b.Label())

	r.total.Store(0)
	assert.Equal(t, "", b.Label())
}

func TestBadge_ChangesCoalesce(t *testing.T) {
	bus := domain.NewEventBus()
	r := &fakeReader{}
	b := NewBadge(r, bus, 99)

	for i := 1; i <= 5; i++ {
		r.total.Store(int64(i))
		bus.Publish(domain.UnreadCountChangedEvent{Total: i})
	}

	select {
	case <-b.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
	assert.Equal(t, "5", b.Label())

	b.Close()
	b.Close()
	assert.Equal(t, 0, bus.Subscribers())
}

func TestConversationList_ItemsAndChanges(t *testing.T) {
	bus := domain.NewEventBus()
	r := &fakeReader{convs: []*domain.ConversationSummary{{ID: "c1"}, {ID: "c2"}}}
	l := NewConversationList(r, bus)
	defer l.Close()

	items, err := l.Items(context.Background(), "bike")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "bike", r.query)

	bus.Publish(domain.UnreadCountChangedEvent{Total: 3})
	select {
	case <-l.Changes():
		t.Fatal("list does not react to badge events")
	case <-time.After(50 * time.Millisecond):
	}

	bus.Publish(domain.PresenceChangedEvent{UserID: "bob", Online: true})
	select {
	case <-l.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
}

func TestConversationList_FollowsSession(t *testing.T) {
	// A reader whose contents depend on who is logged in, like the manager.
	var user atomic.Value
	user.Store("")
	reader := readerFunc(func(ctx context.Context, query string) []*domain.ConversationSummary {
		u := user.Load().(string)
		if u == "" {
			return nil
		}
		return []*domain.ConversationSummary{{ID: "c-" + u, CounterpartName: strings.ToUpper(u)}}
	})
	l := NewConversationList(reader, nil)
	defer l.Close()

	items, err := l.Items(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, items)

	user.Store("bob")
	items, err = l.Items(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c-bob", items[0].ID)
}

type readerFunc func(ctx context.Context, query string) []*domain.ConversationSummary

func (f readerFunc) Conversations(ctx context.Context, query string, limit int) ([]*domain.ConversationSummary, error) {
	return f(ctx, query), nil
}
