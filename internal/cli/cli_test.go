package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clippy-oss/homie/inbox-bridge/internal/binding"
	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

// fakeSession stands in for the session manager.
type fakeSession struct {
	mu        sync.Mutex
	identity  domain.Identity
	convs     []*domain.ConversationSummary
	total     int
	loadErr   error
	lastQuery string
}

func (f *fakeSession) SetIdentity(ctx context.Context, id domain.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = id
	return f.loadErr
}

func (f *fakeSession) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = domain.Identity{}
	f.convs = nil
	f.total = 0
	return nil
}

func (f *fakeSession) Identity() domain.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity
}

func (f *fakeSession) IsConnected() bool { return !f.Identity().IsZero() }

func (f *fakeSession) Resync(ctx context.Context) (int, error) {
	if f.Identity().IsZero() {
		return 0, domain.ErrNotLoggedIn
	}
	return f.Total(), nil
}

func (f *fakeSession) Remove(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.convs {
		if c.ID == id {
			f.total -= c.UnreadCount
			f.convs = append(f.convs[:i], f.convs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSession) Conversations(ctx context.Context, query string, limit int) ([]*domain.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = query
	return f.convs, nil
}

func (f *fakeSession) Conversation(ctx context.Context, id string) (*domain.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identity.IsZero() {
		return nil, domain.ErrNotLoggedIn
	}
	for _, c := range f.convs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeSession) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func newTestHandler(sess *fakeSession) *CommandHandler {
	bus := domain.NewEventBus()
	return NewCommandHandler(sess, binding.NewConversationList(sess, nil), binding.NewBadge(sess, nil, 99), bus)
}

func seededSession() *fakeSession {
	return &fakeSession{
		convs: []*domain.ConversationSummary{
			{ID: "c1", CounterpartName: "Alice", ListingTitle: "Road bike", UnreadCount: 120},
			{ID: "c2", CounterpartName: "Bob"},
		},
		total: 120,
	}
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("  /chats road bike ")
	require.NoError(t, err)
	assert.Equal(t, "chats", cmd.Name)
	assert.Equal(t, []string{"road", "bike"}, cmd.Args)

	_, err = ParseCommand("chats")
	assert.Error(t, err)
	_, err = ParseCommand("   ")
	assert.Error(t, err)
}

func TestExecute_LoginAndInbox(t *testing.T) {
	sess := seededSession()
	h := newTestHandler(sess)
	ctx := context.Background()

	_, err := h.Execute(ctx, &Command{Name: "chats"})
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)

	res, err := h.Execute(ctx, &Command{Name: "login", Args: []string{"tok", "me"}})
	require.NoError(t, err)
	assert.Equal(t, "Logged in as me", res.(map[string]string)["message"])
	assert.Equal(t, domain.Identity{UserID: "me", Token: "tok"}, sess.Identity())

	res, err = h.Execute(ctx, &Command{Name: "ls", Args: []string{"road", "bike"}})
	require.NoError(t, err)
	m := res.(map[string]interface{})
	assert.Equal(t, 2, m["count"])
	assert.Equal(t, "road bike", sess.lastQuery)
	convs := m["conversations"].([]ConversationInfo)
	assert.Equal(t, "Alice", convs[0].CounterpartName)

	res, err = h.Execute(ctx, &Command{Name: "unread"})
	require.NoError(t, err)
	assert.Equal(t, UnreadInfo{Total: 120, Label: "99+"}, res)

	res, err = h.Execute(ctx, &Command{Name: "show", Args: []string{"c2"}})
	require.NoError(t, err)
	assert.Equal(t, "Bob", res.(ConversationInfo).CounterpartName)
	_, err = h.Execute(ctx, &Command{Name: "show", Args: []string{"ghost"}})
	assert.ErrorContains(t, err, "not found")

	res, err = h.Execute(ctx, &Command{Name: "remove", Args: []string{"c1"}})
	require.NoError(t, err)
	assert.Equal(t, "Removed conversation c1", res.(map[string]string)["message"])

	res, err = h.Execute(ctx, &Command{Name: "resync"})
	require.NoError(t, err)
	assert.Equal(t, UnreadInfo{Total: 0, Label: ""}, res)

	res, err = h.Execute(ctx, &Command{Name: "status"})
	require.NoError(t, err)
	st := res.(SessionStatus)
	assert.True(t, st.LoggedIn)
	assert.Equal(t, "connected", st.Status)

	_, err = h.Execute(ctx, &Command{Name: "logout"})
	require.NoError(t, err)
	res, err = h.Execute(ctx, &Command{Name: "status"})
	require.NoError(t, err)
	assert.Equal(t, "not logged in", res.(SessionStatus).Status)
}

func TestExecute_LoginWithFailedLoad(t *testing.T) {
	sess := &fakeSession{loadErr: &domain.FetchError{StatusCode: http.StatusServiceUnavailable}}
	h := newTestHandler(sess)

	res, err := h.Execute(context.Background(), &Command{Name: "login", Args: []string{"Bearer tok", "me"}})
	require.NoError(t, err)
	assert.Contains(t, res.(map[string]string)["message"], "Try /resync")
	assert.Equal(t, "tok", sess.Identity().Token)
}

func TestExecute_Errors(t *testing.T) {
	h := newTestHandler(&fakeSession{})
	ctx := context.Background()

	_, err := h.Execute(ctx, &Command{Name: "login"})
	assert.Error(t, err)
	_, err = h.Execute(ctx, &Command{Name: "login", Args: []string{"not-a-jwt"}})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
	_, err = h.Execute(ctx, &Command{Name: "remove"})
	assert.Error(t, err)
	_, err = h.Execute(ctx, &Command{Name: "show"})
	assert.Error(t, err)
	_, err = h.Execute(ctx, &Command{Name: "show", Args: []string{"c1"}})
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)
	_, err = h.Execute(ctx, &Command{Name: "send"})
	assert.ErrorContains(t, err, "unknown command")
	_, err = h.Execute(ctx, &Command{Name: "resync"})
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)
}

func TestHeadless_RequestResponse(t *testing.T) {
	sess := seededSession()
	h := newTestHandler(sess)

	input := strings.Join([]string{
		`{"id":"1","command":"login","params":{"token":"tok","user_id":"me"}}`,
		`not json`,
		`{"id":"2","command":"chats","params":{"query":"bike"}}`,
		`{"id":"3","command":"unread"}`,
		`{"id":"4","command":"remove","params":{"conversation_id":"ghost"}}`,
		`{"id":"4b","command":"show","params":{"conversation_id":"c2"}}`,
		`{"id":"5","command":"bogus"}`,
		`{"id":"6","command":"quit"}`,
		`{"id":"7","command":"status"}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	cli := NewHeadlessCLIWithIO(h, strings.NewReader(input), &out)
	require.NoError(t, cli.Run(context.Background()))

	var responses []Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var r Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r), scanner.Text())
		responses = append(responses, r)
	}

	byID := map[string]Response{}
	var anonymous []Response
	for _, r := range responses {
		if r.ID == "" {
			anonymous = append(anonymous, r)
			continue
		}
		byID[r.ID] = r
	}

	require.Len(t, anonymous, 2, "ready banner and the invalid JSON error")
	assert.True(t, anonymous[0].Success)
	assert.False(t, anonymous[1].Success)
	assert.Contains(t, anonymous[1].Error, "invalid JSON")

	assert.True(t, byID["1"].Success)
	assert.True(t, byID["2"].Success)
	assert.Equal(t, "bike", sess.lastQuery)
	assert.Equal(t, map[string]interface{}{"total": float64(120), "label": "99+"}, byID["3"].Data)
	assert.True(t, byID["4"].Success)
	assert.True(t, byID["4b"].Success)
	assert.Equal(t, "c2", byID["4b"].Data.(map[string]interface{})["id"])
	assert.False(t, byID["5"].Success)
	assert.True(t, byID["6"].Success)
	_, afterQuit := byID["7"]
	assert.False(t, afterQuit, "nothing is processed after quit")
}

func TestInteractive_Session(t *testing.T) {
	sess := seededSession()
	h := newTestHandler(sess)

	input := "/help\n/login tok me\n/chats\n/unread\n/nope\n/quit\n"
	var out bytes.Buffer
	cli := NewInteractiveCLIWithIO(h, strings.NewReader(input), &out)
	require.NoError(t, cli.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "Status: not logged in")
	assert.Contains(t, text, "Available commands")
	assert.Contains(t, text, "Logged in as me")
	assert.Contains(t, text, "1. Alice [120 unread]")
	assert.Contains(t, text, "Unread: 99+ (120)")
	assert.Contains(t, text, "Error: unknown command: nope")
	assert.Contains(t, text, "Goodbye!")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 50))
	assert.Equal(t, "ñoño...", truncate("ñoñoñoño", 4))
	assert.Equal(t, "日本...", truncate("日本語", 2))
}
