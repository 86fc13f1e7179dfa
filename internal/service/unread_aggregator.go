package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
	"github.com/clippy-oss/homie/inbox-bridge/internal/logger"
)

// UnreadAggregator tracks the sum of unread counts across the store. The
// total is recomputed by the store after every settled mutation, so it never
// drifts from the per-conversation counts.
type UnreadAggregator struct {
	store *ConversationStore
	bus   domain.EventBus
	total atomic.Int64
	log   zerolog.Logger
}

func NewUnreadAggregator(store *ConversationStore, bus domain.EventBus) *UnreadAggregator {
	a := &UnreadAggregator{store: store, bus: bus, log: logger.Module("unread")}
	store.OnChange(a.update)
	return a
}

func (a *UnreadAggregator) Total() int {
	return int(a.total.Load())
}

// Resync reloads from the backend. On failure the last known total stays.
func (a *UnreadAggregator) Resync(ctx context.Context) (int, error) {
	if _, err := a.store.LoadAll(ctx); err != nil {
		return a.Total(), err
	}
	return a.Total(), nil
}

func (a *UnreadAggregator) update(total, _ int) {
	old := a.total.Swap(int64(total))
	if old == int64(total) {
		return
	}
	a.log.Debug().Int64("from", old).Int("to", total).Msg("unread total changed")
	if a.bus != nil {
		a.bus.Publish(domain.UnreadCountChangedEvent{Total: total, EventTime: time.Now()})
	}
}
