package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/simcore/internal/core/events"
	"github.com/zeusync/simcore/internal/core/observability/log"
	"github.com/zeusync/simcore/internal/core/observability/metrics"
	"github.com/zeusync/simcore/internal/core/world"
)

type feedClient struct {
	id      string
	send    chan world.Summary
	dropped atomic.Uint64
}

// Feed streams tick summaries to websocket clients. Summaries are pushed from
// the simulation goroutine without blocking; a client whose queue is full
// misses that tick.
type Feed struct {
	cfg      Config
	logger   log.Log
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	sub      *events.Subscription

	latest atomic.Pointer[world.Summary]

	mu      sync.Mutex
	clients map[string]*feedClient
	closed  bool
}

func NewFeed(cfg Config, w *world.World, logger log.Log, m *metrics.Metrics) *Feed {
	f := &Feed{
		cfg:     cfg,
		logger:  log.OrNop(logger).Named("feed"),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[string]*feedClient),
	}
	f.sub = w.SubscribeTicks(f.publish)
	return f
}

// Latest returns the most recent summary.
func (f *Feed) Latest() (world.Summary, bool) {
	s := f.latest.Load()
	if s == nil {
		return world.Summary{}, false
	}
	return *s, true
}

func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Close detaches the feed from the world and disconnects every client.
func (f *Feed) Close() {
	f.sub.Cancel()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, c := range f.clients {
		close(c.send)
		delete(f.clients, id)
	}
	f.metrics.SetFeedClients(0)
}

func (f *Feed) publish(s world.Summary) error {
	f.latest.Store(&s)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		select {
		case c.send <- s:
		default:
			c.dropped.Add(1)
			f.metrics.FeedDrop()
		}
	}
	return nil
}

func (f *Feed) add() (*feedClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFeedClosed
	}
	if len(f.clients) >= f.cfg.MaxClients {
		return nil, ErrMaxClientsReached
	}
	c := &feedClient{id: uuid.NewString(), send: make(chan world.Summary, f.cfg.FeedBuffer)}
	if s := f.latest.Load(); s != nil {
		c.send <- *s
	}
	f.clients[c.id] = c
	f.metrics.SetFeedClients(len(f.clients))
	return c, nil
}

func (f *Feed) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		return
	}
	close(c.send)
	delete(f.clients, id)
	f.metrics.SetFeedClients(len(f.clients))
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := f.add()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.remove(c.id)
		f.logger.Debug("feed upgrade failed", log.Error(err))
		return
	}
	f.logger.Debug("feed client connected",
		log.String("client", c.id),
		log.String("remote", conn.RemoteAddr().String()),
	)

	go f.readLoop(conn, c.id)
	f.writeLoop(conn, c)

	f.logger.Debug("feed client disconnected",
		log.String("client", c.id),
		log.Uint64("dropped", c.dropped.Load()),
	)
}

// readLoop discards inbound frames and unregisters the client once the
// connection fails or the peer closes it.
func (f *Feed) readLoop(conn *websocket.Conn, id string) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			f.remove(id)
			return
		}
	}
}

func (f *Feed) writeLoop(conn *websocket.Conn, c *feedClient) {
	defer conn.Close()
	for s := range c.send {
		_ = conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
		if err := conn.WriteJSON(s); err != nil {
			f.remove(c.id)
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
