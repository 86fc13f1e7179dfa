package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

func newTestRepo(t *testing.T) ConversationRepository {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	return NewConversationRepository(db)
}

func seed(t *testing.T, repo ConversationRepository) {
	t.Helper()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := repo.ReplaceAll(context.Background(), []*domain.ConversationSummary{
		{ID: "c1", CounterpartID: "u1", CounterpartName: "Alice", ListingTitle: "Road bike", UnreadCount: 2, LastMessageAt: base},
		{ID: "c2", CounterpartID: "u2", CounterpartName: "Bob", ListingTitle: "Sofa 100%", UnreadCount: 0, LastMessageAt: base.Add(time.Hour)},
		{ID: "c3", CounterpartID: "u1", CounterpartName: "Alice", ListingTitle: "Desk", UnreadCount: 1, LastMessageAt: base},
	})
	require.NoError(t, err)
}

func ids(convs []*domain.ConversationSummary) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestConversationRepository_ReplaceAllAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	all, err := repo.GetAll(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1", "c3"}, ids(all), "newest first, snapshot order on ties")

	page, err := repo.GetAll(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids(page))

	require.NoError(t, repo.ReplaceAll(ctx, []*domain.ConversationSummary{
		{ID: "c9", UnreadCount: -4},
		{ID: "c9", UnreadCount: 6},
	}))
	all, err = repo.GetAll(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"c9"}, ids(all))
	assert.Equal(t, 0, all[0].UnreadCount)
}

func TestConversationRepository_GetByIDMissing(t *testing.T) {
	repo := newTestRepo(t)
	conv, err := repo.GetByID(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, conv)
}

func TestConversationRepository_Updates(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	later := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	found, err := repo.UpdateLastMessage(ctx, "c3", "is it sold?", later)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.UpdateLastMessage(ctx, "ghost", "x", later)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.IncrementUnreadCount(ctx, "c3"))
	c3, err := repo.GetByID(ctx, "c3")
	require.NoError(t, err)
	assert.Equal(t, 2, c3.UnreadCount)
	assert.Equal(t, "is it sold?", c3.LastMessageText)
	assert.True(t, later.Equal(c3.LastMessageAt))

	all, err := repo.GetAll(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "c3", all[0].ID)

	found, err = repo.UpdateUnreadCount(ctx, "c1", 0)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.UpdateUnreadCount(ctx, "c2", 0)
	require.NoError(t, err)
	assert.True(t, found, "matching row counts even when the value does not change")

	total, err := repo.TotalUnread(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestConversationRepository_Presence(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	n, err := repo.SetCounterpartOnline(ctx, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.SetCounterpartOnline(ctx, "nobody", true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	c1, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c1.CounterpartOnline)
}

func TestConversationRepository_Search(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	res, err := repo.Search(ctx, "alice", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c3"}, ids(res))

	res, err = repo.Search(ctx, "BIKE", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids(res))

	res, err = repo.Search(ctx, "100%", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(res))

	res, err = repo.Search(ctx, "%", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(res), "wildcards are matched literally")

	res, err = repo.Search(ctx, "  ", 0)
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestConversationRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	found, err := repo.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repo.DeleteAll(ctx))
	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	total, err := repo.TotalUnread(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestOpenMemory_Isolated(t *testing.T) {
	a := newTestRepo(t)
	b := newTestRepo(t)
	seed(t, a)

	n, err := b.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
