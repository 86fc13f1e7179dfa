package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

var errQuit = errors.New("quit")

// InteractiveCLI handles interactive command-line interface
type InteractiveCLI struct {
	handler *CommandHandler
	reader  *bufio.Reader
	writer  io.Writer
	mu      sync.Mutex
}

// NewInteractiveCLI creates a new interactive CLI on stdin and stdout
func NewInteractiveCLI(handler *CommandHandler) *InteractiveCLI {
	return NewInteractiveCLIWithIO(handler, os.Stdin, os.Stdout)
}

func NewInteractiveCLIWithIO(handler *CommandHandler, r io.Reader, w io.Writer) *InteractiveCLI {
	return &InteractiveCLI{
		handler: handler,
		reader:  bufio.NewReader(r),
		writer:  w,
	}
}

// Run starts the interactive CLI loop
func (cli *InteractiveCLI) Run(ctx context.Context) error {
	cli.printWelcome()

	// Subscribe to events in background
	eventChan, stop := cli.handler.SubscribeEvents([]domain.EventType{
		domain.EventTypeUnreadCountChanged,
		domain.EventTypeConnectionStatus,
	})
	defer stop()

	go cli.handleEvents(eventChan)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			cli.print("\n> ")
			line, err := cli.reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return err
			}
			if err == io.EOF && line == "" {
				return nil
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if err := cli.processCommand(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					cli.println("Goodbye!")
					return nil
				}
				cli.printf("Error: %s\n", err)
			}
		}
	}
}

func (cli *InteractiveCLI) printWelcome() {
	cli.println("===========================================")
	cli.println("  Inbox Bridge CLI")
	cli.println("===========================================")
	cli.println("Type /help for available commands")
	cli.println("")

	// Show current status
	status, _ := cli.handler.cmdStatus()
	if s, ok := status.(SessionStatus); ok {
		cli.printf("Status: %s\n", s.Status)
	}
}

func (cli *InteractiveCLI) processCommand(ctx context.Context, input string) error {
	cmd, err := ParseCommand(input)
	if err != nil {
		return err
	}

	result, err := cli.handler.Execute(ctx, cmd)
	if err != nil {
		return err
	}

	// Check for quit command
	if m, ok := result.(map[string]bool); ok && m["quit"] {
		return errQuit
	}

	// Format and display result
	cli.displayResult(cmd.Name, result)
	return nil
}

func (cli *InteractiveCLI) displayResult(cmdName string, result interface{}) {
	switch cmdName {
	case "help", "h":
		if m, ok := result.(map[string]string); ok {
			cli.println(m["help"])
		}

	case "status", "s":
		if s, ok := result.(SessionStatus); ok {
			cli.printf("Session Status: %s\n", s.Status)
			if s.LoggedIn {
				cli.printf("  User: %s\n", s.UserID)
			}
			cli.printf("  Connected: %v\n", s.Connected)
			cli.printf("  Unread: %d\n", s.Unread)
		}

	case "chats", "ls":
		if m, ok := result.(map[string]interface{}); ok {
			convs, _ := m["conversations"].([]ConversationInfo)
			if query, _ := m["query"].(string); query != "" {
				cli.printf("Found %d conversation(s) matching '%s':\n\n", len(convs), query)
			} else {
				cli.printf("Found %d conversation(s):\n\n", len(convs))
			}
			for i, c := range convs {
				unread := ""
				if c.UnreadCount > 0 {
					unread = fmt.Sprintf(" [%d unread]", c.UnreadCount)
				}
				online := ""
				if c.CounterpartOnline {
					online = " *"
				}
				cli.printf("%d. %s%s%s\n", i+1, c.CounterpartName, online, unread)
				cli.printf("   ID: %s\n", c.ID)
				if c.ListingTitle != "" {
					cli.printf("   Listing: %s\n", c.ListingTitle)
				}
				if c.LastMessageText != "" {
					cli.printf("   Last: %s\n", truncate(c.LastMessageText, 50))
				}
			}
		}

	case "show":
		if c, ok := result.(ConversationInfo); ok {
			online := "offline"
			if c.CounterpartOnline {
				online = "online"
			}
			cli.printf("%s (%s)\n", c.CounterpartName, online)
			cli.printf("  ID: %s\n", c.ID)
			if c.ListingTitle != "" {
				cli.printf("  Listing: %s\n", c.ListingTitle)
			}
			cli.printf("  Unread: %d\n", c.UnreadCount)
			if c.LastMessageText != "" {
				cli.printf("  Last: %s\n", c.LastMessageText)
			}
			if !c.LastMessageAt.IsZero() {
				cli.printf("  Time: %s\n", c.LastMessageAt.Local().Format("2006-01-02 15:04"))
			}
		}

	case "unread", "u", "resync", "r":
		if u, ok := result.(UnreadInfo); ok {
			if u.Label == "" {
				cli.println("No unread messages")
			} else {
				cli.printf("Unread: %s (%d)\n", u.Label, u.Total)
			}
		}

	default:
		// Generic JSON output for other commands
		if m, ok := result.(map[string]string); ok {
			if msg, exists := m["message"]; exists {
				cli.println(msg)
				return
			}
		}
		// Pretty print JSON
		data, _ := json.MarshalIndent(result, "", "  ")
		cli.println(string(data))
	}
}

func (cli *InteractiveCLI) handleEvents(eventChan <-chan Event) {
	for event := range eventChan {
		switch event.Type {
		case "unread_changed":
			if u, ok := event.Data.(UnreadInfo); ok {
				if u.Label == "" {
					cli.println("\n[All caught up]")
				} else {
					cli.printf("\n[Unread: %s]\n", u.Label)
				}
				cli.print("> ")
			}
		case "connection_status":
			if data, ok := event.Data.(map[string]interface{}); ok {
				connected, _ := data["connected"].(bool)
				if connected {
					cli.println("\n[Live updates connected]")
				} else {
					reason, _ := data["reason"].(string)
					cli.printf("\n[Live updates disconnected: %s]\n", reason)
				}
				cli.print("> ")
			}
		}
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (cli *InteractiveCLI) print(s string) {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	fmt.Fprint(cli.writer, s)
}

func (cli *InteractiveCLI) println(s string) {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	fmt.Fprintln(cli.writer, s)
}

func (cli *InteractiveCLI) printf(format string, args ...interface{}) {
	cli.mu.Lock()
	defer cli.mu.Unlock()
	fmt.Fprintf(cli.writer, format, args...)
}
