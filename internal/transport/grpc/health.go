package grpc

import (
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
	"github.com/clippy-oss/homie/inbox-bridge/internal/logger"
)

// StreamService is the health service name that tracks the live stream.
const StreamService = "inbox.Stream"

type StatusReader interface {
	IsConnected() bool
}

// HealthMonitor keeps the health server in step with the live stream: both
// the overall status and StreamService are SERVING only while connected.
type HealthMonitor struct {
	health *health.Server
	bus    domain.EventBus
	status StatusReader
	log    zerolog.Logger

	sub  <-chan domain.Event
	once sync.Once
	done chan struct{}
}

func NewHealthMonitor(h *health.Server, bus domain.EventBus, status StatusReader) *HealthMonitor {
	m := &HealthMonitor{
		health: h,
		bus:    bus,
		status: status,
		log:    logger.Module("health"),
		done:   make(chan struct{}),
	}
	m.set(status != nil && status.IsConnected())
	return m
}

func (m *HealthMonitor) Health() *health.Server { return m.health }

func (m *HealthMonitor) Start() {
	if m.bus == nil {
		close(m.done)
		return
	}
	// ConversationsChanged is included so a logout, which emits no status
	// event of its own, is still noticed.
	m.sub = m.bus.Subscribe([]domain.EventType{
		domain.EventTypeConnectionStatus,
		domain.EventTypeConversationsChanged,
	})
	go m.loop()
}

func (m *HealthMonitor) loop() {
	defer close(m.done)
	for ev := range m.sub {
		connected := false
		if st, ok := ev.(domain.ConnectionStatusEvent); ok {
			connected = st.Connected
		} else if m.status != nil {
			connected = m.status.IsConnected()
		}
		m.set(connected)
	}
}

func (m *HealthMonitor) set(connected bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	m.health.SetServingStatus("", st)
	m.health.SetServingStatus(StreamService, st)
	m.log.Trace().Str("status", st.String()).Msg("health updated")
}

func (m *HealthMonitor) Stop() {
	m.once.Do(func() {
		if m.sub != nil {
			m.bus.Unsubscribe(m.sub)
			<-m.done
		}
		m.health.Shutdown()
	})
}
