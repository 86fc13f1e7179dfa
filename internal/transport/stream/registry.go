package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

// Registry owns the live connections, at most one per identity. Opening an
// identity that already has a connection attaches to it instead of dialing
// again; the connection is torn down when its last handle closes.
type Registry struct {
	cfg Config

	mu    sync.Mutex
	conns map[domain.Identity]*Connection
	refs  map[*Connection]int
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:   cfg,
		conns: make(map[domain.Identity]*Connection),
		refs:  make(map[*Connection]int),
	}
}

// Handle is one consumer's attachment to a shared connection.
type Handle struct {
	id       string
	identity domain.Identity
	conn     *Connection
	registry *Registry
	once     sync.Once
}

func (h *Handle) ID() string                { return h.id }
func (h *Handle) Identity() domain.Identity { return h.identity }
func (h *Handle) Connected() bool           { return h.conn.IsConnected() }

// Close detaches the handle. Safe to call more than once.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() { h.registry.release(h) })
	return nil
}

// Open attaches listener to the identity's connection, dialing it if needed.
func (r *Registry) Open(identity domain.Identity, listener Listener) (*Handle, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	conn, ok := r.conns[identity]
	if !ok {
		conn = newConnection(r.cfg, identity)
		r.conns[identity] = conn
		conn.start()
	}
	r.refs[conn]++
	r.mu.Unlock()

	h := &Handle{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		registry: r,
	}
	conn.addListener(h.id, listener)
	return h, nil
}

// Close is Handle.Close for callers holding only the registry.
func (r *Registry) Close(h *Handle) error {
	return h.Close()
}

func (r *Registry) release(h *Handle) {
	h.conn.removeListener(h.id)

	r.mu.Lock()
	r.refs[h.conn]--
	last := r.refs[h.conn] <= 0
	if last {
		delete(r.refs, h.conn)
		if r.conns[h.identity] == h.conn {
			delete(r.conns, h.identity)
		}
	}
	r.mu.Unlock()

	if last {
		h.conn.stop()
	}
}

// Active returns the number of open connections.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll stops every connection regardless of open handles.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for id, c := range r.conns {
		conns = append(conns, c)
		delete(r.conns, id)
		delete(r.refs, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.stop()
	}
}
