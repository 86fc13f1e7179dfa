package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/clippy-oss/homie/inbox-bridge/internal/binding"
	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

func (s *Server) handleListConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)
	if limit > 100 {
		limit = 100
	}
	if limit <= 0 {
		limit = 20
	}
	query := strings.TrimSpace(request.GetString("query", ""))

	if s.inbox.Identity().IsZero() {
		return mcp.NewToolResultError("Not logged in."), nil
	}

	convs, err := s.inbox.Conversations(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get conversations: %v", err)), nil
	}

	if len(convs) == 0 {
		if query != "" {
			return mcp.NewToolResultText(fmt.Sprintf("No conversations match %q.", query)), nil
		}
		return mcp.NewToolResultText("No conversations found."), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d conversation(s):\n\n", len(convs)))

	for i, c := range convs {
		online := ""
		if c.CounterpartOnline {
			online = " (online)"
		}
		result.WriteString(fmt.Sprintf("%d. %s%s\n", i+1, c.DisplayName(), online))
		result.WriteString(fmt.Sprintf("   ID: %s\n", c.ID))
		if c.ListingTitle != "" {
			result.WriteString(fmt.Sprintf("   Listing: %s\n", c.ListingTitle))
		}
		if c.UnreadCount > 0 {
			result.WriteString(fmt.Sprintf("   Unread: %d message(s)\n", c.UnreadCount))
		}
		if c.LastMessageText != "" {
			result.WriteString(fmt.Sprintf("   Last: %s\n", preview(c.LastMessageText, 60)))
			if !c.LastMessageAt.IsZero() {
				result.WriteString(fmt.Sprintf("   Time: %s\n", c.LastMessageAt.Local().Format("2006-01-02 15:04")))
			}
		}
		result.WriteString("\n")
	}

	return mcp.NewToolResultText(result.String()), nil
}

func (s *Server) handleUnreadCount(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.inbox.Identity().IsZero() {
		return mcp.NewToolResultError("Not logged in."), nil
	}
	total := s.inbox.Total()
	label := binding.FormatBadge(total, s.badgeCap())
	if label == "" {
		label = "none"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Unread messages: %d\nBadge: %s", total, label)), nil
}

func (s *Server) handleResync(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	total, err := s.inbox.Resync(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotLoggedIn) {
			return mcp.NewToolResultError("Not logged in."), nil
		}
		msg := fmt.Sprintf("Resync failed: %v", err)
		if fe := domain.AsFetchError(err); fe != nil && fe.Retryable() {
			msg += " (temporary, try again)"
		}
		return mcp.NewToolResultError(msg), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Resynced. Unread messages: %d", total)), nil
}

func (s *Server) handleRemoveConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(request.GetString("conversation_id", ""))
	if id == "" {
		return mcp.NewToolResultError("conversation_id is required"), nil
	}

	found, err := s.inbox.Remove(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotLoggedIn) {
			return mcp.NewToolResultError("Not logged in."), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to remove conversation: %v", err)), nil
	}
	if !found {
		return mcp.NewToolResultText(fmt.Sprintf("Conversation %s was not in the list", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed conversation %s", id)), nil
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity := s.inbox.Identity()
	connected := s.inbox.IsConnected()

	var status string
	switch {
	case identity.IsZero():
		status = "Not logged in"
	case connected:
		status = "Connected"
	default:
		status = "Logged in, live updates reconnecting"
	}

	user := "-"
	if !identity.IsZero() {
		user = identity.UserID
	}
	return mcp.NewToolResultText(fmt.Sprintf("Inbox Status: %s\nUser: %s\nConnected: %v\nUnread: %d",
		status, user, connected, s.inbox.Total())), nil
}

func (s *Server) badgeCap() int {
	if s.config.BadgeCap > 0 {
		return s.config.BadgeCap
	}
	return binding.DefaultBadgeCap
}

// preview cuts text to limit runes so multi-byte characters stay whole.
func preview(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}
