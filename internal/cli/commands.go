package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clippy-oss/homie/inbox-bridge/internal/auth"
	"github.com/clippy-oss/homie/inbox-bridge/internal/binding"
	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

// Session is the part of the session manager the commands drive.
type Session interface {
	SetIdentity(ctx context.Context, identity domain.Identity) error
	Logout() error
	Identity() domain.Identity
	IsConnected() bool
	Resync(ctx context.Context) (int, error)
	Remove(id string) (bool, error)
	Conversation(ctx context.Context, id string) (*domain.ConversationSummary, error)
}

// CommandHandler handles CLI commands
type CommandHandler struct {
	session Session
	list    *binding.ConversationList
	badge   *binding.Badge
	bus     domain.EventBus
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(session Session, list *binding.ConversationList, badge *binding.Badge, bus domain.EventBus) *CommandHandler {
	return &CommandHandler{
		session: session,
		list:    list,
		badge:   badge,
		bus:     bus,
	}
}

// Command represents a parsed command
type Command struct {
	Name string
	Args []string
}

// ParseCommand parses a command string (e.g., "/chats road bike")
func ParseCommand(input string) (*Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty command")
	}

	if !strings.HasPrefix(input, "/") {
		return nil, fmt.Errorf("commands must start with /")
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	name := strings.TrimPrefix(parts[0], "/")
	args := parts[1:]

	return &Command{Name: name, Args: args}, nil
}

// Execute executes a command and returns the result
func (h *CommandHandler) Execute(ctx context.Context, cmd *Command) (interface{}, error) {
	switch cmd.Name {
	case "help", "h":
		return h.cmdHelp()
	case "status", "s":
		return h.cmdStatus()
	case "login":
		return h.cmdLogin(ctx, cmd.Args)
	case "logout":
		return h.cmdLogout()
	case "chats", "ls":
		return h.cmdChats(ctx, cmd.Args)
	case "unread", "u":
		return h.cmdUnread()
	case "resync", "r":
		return h.cmdResync(ctx)
	case "show":
		return h.cmdShow(ctx, cmd.Args)
	case "remove", "rm":
		return h.cmdRemove(cmd.Args)
	case "quit", "exit", "q":
		return map[string]bool{"quit": true}, nil
	default:
		return nil, fmt.Errorf("unknown command: %s. Type /help for available commands", cmd.Name)
	}
}

func (h *CommandHandler) cmdHelp() (interface{}, error) {
	help := `Available commands:

Session:
  /status, /s              Show login and live stream status
  /login <token> [user_id] Sign in with a bearer token
  /logout                  Sign out and discard local state

Inbox:
  /chats, /ls [query]      List conversations, optionally filtered
  /unread, /u              Show the unread badge
  /show <id>               Show one conversation
  /resync, /r              Reload conversations from the backend
  /remove, /rm <id>        Remove a deleted conversation from the list

Other:
  /help, /h                Show this help
  /quit, /exit, /q         Exit the CLI`

	return map[string]string{"help": help}, nil
}

func (h *CommandHandler) cmdStatus() (interface{}, error) {
	identity := h.session.Identity()
	connected := h.session.IsConnected()

	var status string
	switch {
	case identity.IsZero():
		status = "not logged in"
	case connected:
		status = "connected"
	default:
		status = "reconnecting"
	}

	return SessionStatus{
		LoggedIn:  !identity.IsZero(),
		UserID:    identity.UserID,
		Connected: connected,
		Unread:    h.badge.Count(),
		Status:    status,
	}, nil
}

func (h *CommandHandler) cmdLogin(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /login <token> [user_id]")
	}
	userID := ""
	if len(args) > 1 {
		userID = args[1]
	}

	identity, err := auth.ResolveIdentity(args[0], userID)
	if err != nil {
		return nil, err
	}
	if identity.IsZero() {
		return nil, fmt.Errorf("token is required")
	}

	if err := h.session.SetIdentity(ctx, identity); err != nil {
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			// Signed in, but the list could not be loaded yet.
			return map[string]string{"message": fmt.Sprintf("Logged in as %s, but loading conversations failed: %v. Try /resync.", identity.UserID, err)}, nil
		}
		return nil, err
	}
	return map[string]string{"message": fmt.Sprintf("Logged in as %s", identity.UserID)}, nil
}

func (h *CommandHandler) cmdLogout() (interface{}, error) {
	if h.session.Identity().IsZero() {
		return map[string]string{"message": "Not logged in"}, nil
	}
	if err := h.session.Logout(); err != nil {
		return nil, err
	}
	return map[string]string{"message": "Logged out"}, nil
}

func (h *CommandHandler) cmdChats(ctx context.Context, args []string) (interface{}, error) {
	if h.session.Identity().IsZero() {
		return nil, domain.ErrNotLoggedIn
	}
	query := strings.Join(args, " ")

	convs, err := h.list.Items(ctx, query)
	if err != nil {
		return nil, err
	}

	items := make([]ConversationInfo, len(convs))
	for i, c := range convs {
		items[i] = toConversationInfo(c)
	}

	return map[string]interface{}{
		"query":         query,
		"count":         len(items),
		"conversations": items,
	}, nil
}

func (h *CommandHandler) cmdUnread() (interface{}, error) {
	if h.session.Identity().IsZero() {
		return nil, domain.ErrNotLoggedIn
	}
	return UnreadInfo{Total: h.badge.Count(), Label: h.badge.Label()}, nil
}

func (h *CommandHandler) cmdResync(ctx context.Context) (interface{}, error) {
	total, err := h.session.Resync(ctx)
	if err != nil {
		return nil, err
	}
	return UnreadInfo{Total: total, Label: h.badge.LabelFor(total)}, nil
}

func (h *CommandHandler) cmdShow(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /show <conversation_id>")
	}
	c, err := h.session.Conversation(ctx, args[0])
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("conversation %s not found", args[0])
	}
	return toConversationInfo(c), nil
}

func (h *CommandHandler) cmdRemove(args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: /remove <conversation_id>")
	}
	found, err := h.session.Remove(args[0])
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]string{"message": fmt.Sprintf("Conversation %s was not in the list", args[0])}, nil
	}
	return map[string]string{"message": fmt.Sprintf("Removed conversation %s", args[0])}, nil
}

func toConversationInfo(c *domain.ConversationSummary) ConversationInfo {
	return ConversationInfo{
		ID:                c.ID,
		CounterpartID:     c.CounterpartID,
		CounterpartName:   c.DisplayName(),
		CounterpartOnline: c.CounterpartOnline,
		ListingID:         c.ListingID,
		ListingTitle:      c.ListingTitle,
		UnreadCount:       c.UnreadCount,
		LastMessageText:   c.LastMessageText,
		LastMessageAt:     c.LastMessageAt,
	}
}

// SubscribeEvents streams bus events converted for output. Call the
// returned func to stop; the channel is closed afterwards.
func (h *CommandHandler) SubscribeEvents(eventTypes []domain.EventType) (<-chan Event, func()) {
	if len(eventTypes) == 0 {
		eventTypes = []domain.EventType{
			domain.EventTypeUnreadCountChanged,
			domain.EventTypeConversationsChanged,
			domain.EventTypeConnectionStatus,
		}
	}

	domainChan := h.bus.Subscribe(eventTypes)
	resultChan := make(chan Event)
	done := make(chan struct{})

	go func() {
		defer close(resultChan)
		for evt := range domainChan {
			var eventType string
			var data interface{}

			switch e := evt.(type) {
			case domain.UnreadCountChangedEvent:
				eventType = "unread_changed"
				data = UnreadInfo{Total: e.Total, Label: h.badge.LabelFor(e.Total)}
			case domain.ConversationsChangedEvent:
				eventType = "conversations_changed"
				data = map[string]interface{}{
					"count":        e.Count,
					"total_unread": e.TotalUnread,
				}
			case domain.ConnectionStatusEvent:
				eventType = "connection_status"
				data = map[string]interface{}{
					"connected":   e.Connected,
					"reconnected": e.Reconnected,
					"reason":      e.Reason,
				}
			case domain.MessageReceivedEvent:
				eventType = "message_received"
				data = map[string]interface{}{
					"conversation_id": e.ConversationID,
					"sender_id":       e.SenderID,
					"text":            e.Text,
				}
			default:
				continue
			}

			select {
			case resultChan <- Event{Type: eventType, Timestamp: time.Now(), Data: data}:
			case <-done:
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			h.bus.Unsubscribe(domainChan)
		})
	}
	return resultChan, stop
}
