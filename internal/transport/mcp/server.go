package mcp

import (
	"context"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

// Inbox is what the tools read and act on. *service.SessionManager
// implements it.
type Inbox interface {
	Conversations(ctx context.Context, query string, limit int) ([]*domain.ConversationSummary, error)
	Total() int
	Resync(ctx context.Context) (int, error)
	Remove(id string) (bool, error)
	IsConnected() bool
	Identity() domain.Identity
}

type ServerConfig struct {
	Address  string
	BadgeCap int
}

type Server struct {
	mcpServer  *server.MCPServer
	sseServer  *server.SSEServer
	httpServer *http.Server
	inbox      Inbox
	config     ServerConfig
}

func NewServer(inbox Inbox, config ServerConfig) *Server {
	s := &Server{
		inbox:  inbox,
		config: config,
	}

	s.mcpServer = server.NewMCPServer(
		"inbox-bridge",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	s.sseServer = server.NewSSEServer(s.mcpServer,
		server.WithKeepAliveInterval(30*time.Second),
	)

	return s
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("inbox_list_conversations",
			mcp.WithDescription("List marketplace conversations, most recent first, with unread counts"),
			mcp.WithString("query",
				mcp.Description("Only conversations whose counterpart name or listing title contains this text"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of conversations to return (default 20, max 100)"),
			),
		),
		s.handleListConversations,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("inbox_unread_count",
			mcp.WithDescription("Get the total number of unread messages across all conversations"),
		),
		s.handleUnreadCount,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("inbox_resync",
			mcp.WithDescription("Reload all conversations from the backend, correcting any drift"),
		),
		s.handleResync,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("inbox_remove_conversation",
			mcp.WithDescription("Remove a conversation from the local list after it was deleted"),
			mcp.WithString("conversation_id",
				mcp.Required(),
				mcp.Description("ID of the conversation"),
			),
		),
		s.handleRemoveConversation,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("inbox_session_status",
			mcp.WithDescription("Get the signed-in user and live stream connection status"),
		),
		s.handleSessionStatus,
	)
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.Handle("/sse", s.sseServer.SSEHandler())
	mux.Handle("/message", s.sseServer.MessageHandler())

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{
		Addr:    s.config.Address,
		Handler: mux,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
