package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeServer      = "server"
	ModeInteractive = "interactive"
	ModeHeadless    = "headless"
)

type Config struct {
	Mode              string
	APIURL            string
	ConversationsPath string
	StreamURL         string
	Token             string
	UserID            string
	FetchTimeout      time.Duration
	QueueSize         int
	BadgeCap          int
	GRPCAddress       string
	MCPAddress        string
	LogLevel          string
}

// Load reads an optional .env file, then flags with environment defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFrom(flag.CommandLine, os.Args[1:])
}

func LoadFrom(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Mode, "mode", getEnv("INBOX_MODE", ModeServer), "Run mode: server, interactive, or headless")
	fs.StringVar(&cfg.APIURL, "api-url", getEnv("INBOX_API_URL", "http://127.0.0.1:3000"), "Marketplace API base URL")
	fs.StringVar(&cfg.ConversationsPath, "conversations-path", getEnv("INBOX_CONVERSATIONS_PATH", "/api/messages/conversations"), "Path of the conversation summaries endpoint")
	fs.StringVar(&cfg.StreamURL, "stream-url", getEnv("INBOX_STREAM_URL", "ws://127.0.0.1:3000/ws"), "Live event stream WebSocket URL")
	fs.StringVar(&cfg.Token, "token", getEnv("INBOX_AUTH_TOKEN", ""), "Bearer token; empty starts logged out")
	fs.StringVar(&cfg.UserID, "user-id", getEnv("INBOX_USER_ID", ""), "Current user id; derived from the token when empty")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", getEnvDuration("INBOX_FETCH_TIMEOUT", 10*time.Second), "Timeout for the authoritative conversation fetch")
	fs.IntVar(&cfg.QueueSize, "queue-size", getEnvInt("INBOX_QUEUE_SIZE", 256), "Live event queue size")
	fs.IntVar(&cfg.BadgeCap, "badge-cap", getEnvInt("INBOX_BADGE_CAP", 99), "Largest unread count the badge shows before '+'")
	fs.StringVar(&cfg.GRPCAddress, "grpc-address", getEnv("INBOX_GRPC_ADDRESS", "127.0.0.1:50061"), "gRPC health server address")
	fs.StringVar(&cfg.MCPAddress, "mcp-address", getEnv("INBOX_MCP_ADDRESS", "127.0.0.1:8090"), "MCP SSE server address")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("INBOX_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeServer, ModeInteractive, ModeHeadless:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if err := checkURL("api-url", c.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("stream-url", c.StreamURL, "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch-timeout must be positive")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue-size must be positive")
	}
	if c.BadgeCap <= 0 {
		return fmt.Errorf("badge-cap must be positive")
	}
	return nil
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: want scheme %v and a host", name, raw, schemes)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
