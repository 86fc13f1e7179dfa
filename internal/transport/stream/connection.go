// Package stream keeps one live event connection per authenticated identity
// and fans its events out to the handles opened on it.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
	"github.com/clippy-oss/homie/inbox-bridge/internal/logger"
	"github.com/clippy-oss/homie/inbox-bridge/internal/wire"
)

// Listener receives events from a connection's read loop. It is called on
// that goroutine, one event at a time, in delivery order.
type Listener interface {
	HandleEvent(ev domain.Event)
}

type Config struct {
	URL            string
	DialTimeout    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ReadLimit      int64
	HTTPClient     *http.Client
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	return c
}

// Connection is the single live stream of one identity. It reconnects with
// exponential backoff until stopped.
type Connection struct {
	cfg      Config
	identity domain.Identity
	log      zerolog.Logger

	mu        sync.RWMutex
	listeners map[string]Listener
	connected bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newConnection(cfg Config, identity domain.Identity) *Connection {
	return &Connection{
		cfg:       cfg.withDefaults(),
		identity:  identity,
		log:       logger.Module("stream").With().Str("user_id", identity.UserID).Logger(),
		listeners: make(map[string]Listener),
		done:      make(chan struct{}),
	}
}

func (c *Connection) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		defer close(c.done)
		c.run(ctx)
	}()
}

// stop ends the read loop and waits for it to exit.
func (c *Connection) stop() {
	c.cancel()
	<-c.done
}

func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Connection) addListener(id string, l Listener) {
	c.mu.Lock()
	c.listeners[id] = l
	connected := c.connected
	c.mu.Unlock()

	if connected {
		l.HandleEvent(domain.ConnectionStatusEvent{Connected: true, EventTime: time.Now()})
	}
}

// removeListener returns how many listeners remain.
func (c *Connection) removeListener(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
	return len(c.listeners)
}

func (c *Connection) emit(ev domain.Event) {
	c.mu.RLock()
	targets := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		targets = append(targets, l)
	}
	c.mu.RUnlock()

	for _, l := range targets {
		l.HandleEvent(ev)
	}
}

func (c *Connection) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Connection) run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	everConnected := false
	attempt := 0

	for {
		attempt++
		connected, err := c.session(ctx, everConnected)
		if connected {
			everConnected = true
			attempt = 0
			b.Reset()
		}
		if ctx.Err() != nil {
			c.setConnected(false)
			return
		}

		reason := "connection lost"
		if err != nil {
			reason = err.Error()
		}
		wait := b.NextBackOff()
		c.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("live stream unavailable")
		if connected {
			c.emit(domain.ConnectionStatusEvent{Connected: false, Reason: reason, EventTime: time.Now()})
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection fails. connected
// reports whether the dial succeeded.
func (c *Connection) session(ctx context.Context, reconnect bool) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, &websocket.DialOptions{
		HTTPClient: c.cfg.HTTPClient,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.identity.Token}},
	})
	cancel()
	if err != nil {
		return false, &domain.TransportError{Op: "dial", Err: err}
	}
	defer conn.CloseNow()
	conn.SetReadLimit(c.cfg.ReadLimit)

	c.setConnected(true)
	c.log.Info().Bool("reconnected", reconnect).Msg("live stream connected")
	c.emit(domain.ConnectionStatusEvent{Connected: true, Reconnected: reconnect, EventTime: time.Now()})

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			c.setConnected(false)
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return true, nil
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return true, &domain.TransportError{Op: "read", Err: errors.New("closed by server")}
			}
			return true, &domain.TransportError{Op: "read", Err: err}
		}
		if typ != websocket.MessageText {
			continue
		}

		var frame wire.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		ev, err := wire.DecodeEvent(frame, time.Now())
		if err != nil {
			c.log.Warn().Err(err).Str("event", frame.Event).Msg("dropping undecodable event")
			continue
		}
		if ev == nil {
			c.log.Debug().Str("event", frame.Event).Msg("ignoring event")
			continue
		}
		c.emit(ev)
	}
}
