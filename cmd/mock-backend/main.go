// Command mock-backend is a local stand-in for the marketplace backend: it
// serves seeded conversation summaries and a live event stream that emits
// random activity, so the bridge can be exercised without the real service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
	"github.com/clippy-oss/homie/inbox-bridge/internal/logger"
	"github.com/clippy-oss/homie/inbox-bridge/internal/repository"
	"github.com/clippy-oss/homie/inbox-bridge/internal/wire"
)

var counterpartNames = []string{
	"Alice Johnson",
	"Bob Smith",
	"Charlie Brown",
	"Diana Prince",
	"Eve Wilson",
	"Frank Miller",
	"Grace Lee",
	"Henry Davis",
	"Iris Chen",
	"Jack Taylor",
}

var listingTitles = []string{
	"Road bike, 54cm",
	"Oak dining table",
	"Vintage film camera",
	"Standing desk",
	"Baby stroller",
	"Gaming monitor 27\"",
	"Leather sofa",
	"Electric guitar",
}

var sampleTexts = []string{
	"Hi! Is this still available?",
	"Would you take 80?",
	"Can I pick it up tomorrow?",
	"Thanks, see you then!",
	"Does it come with the charger?",
	"What's the lowest you'd go?",
	"Sent you the payment",
	"Is the price negotiable?",
	"Could you send more photos?",
	"Great, deal!",
}

type backend struct {
	repo   repository.ConversationRepository
	userID string
	token  string
	rng    *rand.Rand
	log    zerolog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func main() {
	addr := flag.String("addr", "127.0.0.1:3000", "Listen address")
	path := flag.String("conversations-path", "/api/messages/conversations", "Conversation summaries path")
	count := flag.Int("conversations", 8, "Number of seeded conversations")
	interval := flag.Duration("interval", 3*time.Second, "Time between random events; 0 disables them")
	userID := flag.String("user-id", "me", "The signed-in user's id")
	token := flag.String("token", "", "Required bearer token; empty accepts any")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger.Init(*level)
	log := logger.Module("mock-backend")

	db, err := repository.OpenMemory()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer repository.Close(db)

	b := &backend{
		repo:    repository.NewConversationRepository(db),
		userID:  *userID,
		token:   *token,
		rng:     rand.New(rand.NewSource(*seed)),
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
	}
	if err := b.seed(context.Background(), *count); err != nil {
		log.Fatal().Err(err).Msg("failed to seed conversations")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(*path, b.handleConversations)
	mux.HandleFunc("/ws", b.handleStream)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *interval > 0 {
		go b.emitLoop(ctx, *interval)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("address", *addr).
		Str("conversations", "http://"+*addr+*path).
		Str("stream", "ws://"+*addr+"/ws").
		Msg("mock backend listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func (b *backend) seed(ctx context.Context, n int) error {
	if n > len(counterpartNames) {
		n = len(counterpartNames)
	}
	now := time.Now()
	convs := make([]*domain.ConversationSummary, 0, n)
	for i := 0; i < n; i++ {
		unread := 0
		// Roughly a third of conversations start with unread messages
		if b.rng.Float32() < 0.35 {
			unread = 1 + b.rng.Intn(5)
		}
		convs = append(convs, &domain.ConversationSummary{
			ID:              fmt.Sprintf("conv-%d", 1000+i),
			CounterpartID:   fmt.Sprintf("user-%d", 2000+i),
			CounterpartName: counterpartNames[i],
			ListingID:       fmt.Sprintf("listing-%d", 3000+i%len(listingTitles)),
			ListingTitle:    listingTitles[i%len(listingTitles)],
			LastMessageText: sampleTexts[b.rng.Intn(len(sampleTexts))],
			LastMessageAt:   now.Add(-time.Duration(10+b.rng.Intn(72*60)) * time.Minute),
			UnreadCount:     unread,
		})
	}
	return b.repo.ReplaceAll(ctx, convs)
}

func (b *backend) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		return false
	}
	return b.token == "" || token == b.token
}

func (b *backend) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !b.authorized(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid or missing token"})
		return
	}

	b.mu.Lock()
	convs, err := b.repo.GetAll(r.Context(), 0, 0)
	b.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]wire.Conversation, len(convs))
	for i, c := range convs {
		out[i] = wire.ConversationFromDomain(c)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"conversations": out})
}

func (b *backend) handleStream(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()
	b.log.Info().Str("remote", r.RemoteAddr).Msg("stream client connected")

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.CloseNow()
		b.log.Info().Str("remote", r.RemoteAddr).Msg("stream client disconnected")
	}()

	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

func (b *backend) emitLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev, err := b.randomEvent(ctx)
			if err != nil {
				b.log.Warn().Err(err).Msg("failed to generate event")
				continue
			}
			if ev != nil {
				b.broadcast(ctx, ev)
			}
		}
	}
}

// randomEvent picks some activity, records it as the new truth, and returns
// the event to broadcast.
func (b *backend) randomEvent(ctx context.Context) (domain.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	convs, err := b.repo.GetAll(ctx, 0, 0)
	if err != nil || len(convs) == 0 {
		return nil, err
	}
	c := convs[b.rng.Intn(len(convs))]
	now := time.Now()

	switch roll := b.rng.Float32(); {
	case roll < 0.55:
		text := sampleTexts[b.rng.Intn(len(sampleTexts))]
		if _, err := b.repo.UpdateLastMessage(ctx, c.ID, text, now); err != nil {
			return nil, err
		}
		if err := b.repo.IncrementUnreadCount(ctx, c.ID); err != nil {
			return nil, err
		}
		return domain.MessageReceivedEvent{
			ConversationID: c.ID,
			MessageID:      fmt.Sprintf("msg-%d", now.UnixNano()),
			SenderID:       c.CounterpartID,
			Text:           text,
			SentAt:         now,
			EventTime:      now,
		}, nil

	case roll < 0.65:
		text := "Sounds good, thanks!"
		if _, err := b.repo.UpdateLastMessage(ctx, c.ID, text, now); err != nil {
			return nil, err
		}
		return domain.MessageReceivedEvent{
			ConversationID: c.ID,
			MessageID:      fmt.Sprintf("msg-%d", now.UnixNano()),
			SenderID:       b.userID,
			Text:           text,
			SentAt:         now,
			EventTime:      now,
		}, nil

	case roll < 0.8:
		if _, err := b.repo.UpdateUnreadCount(ctx, c.ID, 0); err != nil {
			return nil, err
		}
		return domain.ConversationReadEvent{ConversationID: c.ID, ReaderID: b.userID, EventTime: now}, nil

	default:
		online := !c.CounterpartOnline
		if _, err := b.repo.SetCounterpartOnline(ctx, c.CounterpartID, online); err != nil {
			return nil, err
		}
		return domain.PresenceChangedEvent{UserID: c.CounterpartID, Online: online, EventTime: now}, nil
	}
}

func (b *backend) broadcast(ctx context.Context, ev domain.Event) {
	frame, err := wire.EncodeEvent(ev)
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to encode event")
		return
	}

	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for c := range b.clients {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := wsjson.Write(writeCtx, c, frame); err != nil {
			b.log.Debug().Err(err).Msg("dropping slow stream client")
			c.Close(websocket.StatusPolicyViolation, "write timeout")
		}
		cancel()
	}
	b.log.Debug().Str("event", frame.Event).Int("clients", len(conns)).Msg("event broadcast")
}
