// Package api fetches the authoritative conversation snapshot from the
// marketplace backend.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
	"github.com/clippy-oss/homie/inbox-bridge/internal/logger"
	"github.com/clippy-oss/homie/inbox-bridge/internal/wire"
)

const maxBodySize = 8 << 20

type ClientConfig struct {
	BaseURL           string
	ConversationsPath string
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Client is bound to one bearer token; a new identity gets a new Client.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	log      zerolog.Logger
}

func NewClient(cfg ClientConfig, token string) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	path := cfg.ConversationsPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	endpoint := base.String() + path

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		endpoint: endpoint,
		token:    token,
		http:     httpClient,
		log:      logger.Module("api"),
	}, nil
}

// FetchConversations returns the full conversation list. Every failure is a
// *domain.FetchError.
func (c *Client) FetchConversations(ctx context.Context) ([]*domain.ConversationSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, &domain.FetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, &domain.FetchError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &domain.FetchError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().
			Int("status_code", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("conversation fetch rejected")
		return nil, &domain.FetchError{StatusCode: resp.StatusCode, Err: errors.New(errorMessage(body, resp.Status))}
	}

	convs, err := wire.DecodeConversations(body)
	if err != nil {
		return nil, &domain.FetchError{StatusCode: resp.StatusCode, Err: err}
	}

	c.log.Debug().
		Int("count", len(convs)).
		Dur("elapsed", time.Since(start)).
		Msg("fetched conversations")
	return convs, nil
}

// errorMessage extracts a short reason from an error body.
func errorMessage(body []byte, fallback string) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fallback
	}
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
