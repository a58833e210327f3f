package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/likeshelf/likeshelf-server/internal/id"
)

const (
	queueSize    = 1000
	clientBuffer = 100
)

// Client is one open event stream of a user. Events is closed when the
// client is disconnected or the manager shuts down; Done closes with it.
type Client struct {
	ConnectedAt time.Time
	Events      chan Event
	Done        chan struct{}
	ID          string
	UserID      string
}

func (c *Client) close() {
	close(c.Done)
	close(c.Events)
}

// Emitter is the publishing side of the manager, consumed by services.
type Emitter interface {
	Emit(event Event)
}

// Manager fans queued events out to the streams of the user they belong to.
// Events without a user (heartbeats) go to every stream.
type Manager struct {
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	byUser map[string]map[string]*Client
	byID   map[string]*Client

	// queueMu orders Emit against closing the queue.
	queueMu sync.RWMutex
	queue   chan Event
	closed  bool
}

// NewManager creates a manager. Start must run before events flow.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		byUser: make(map[string]map[string]*Client),
		byID:   make(map[string]*Client),
		queue:  make(chan Event, queueSize),
	}
}

// Start delivers queued events until ctx ends or the queue is closed.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info("event stream manager started")

	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				return
			}
			m.deliver(event)
		case <-ctx.Done():
			m.logger.Info("event stream manager stopped")
			m.disconnectAll()
			return
		}
	}
}

// Shutdown closes the queue, delivers what is left in it (bounded by ctx)
// and ends every stream. Calling it twice is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.queueMu.Lock()
	if m.closed {
		m.queueMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.queueMu.Unlock()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for event := range m.queue {
			m.deliver(event)
		}
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("event queue not drained before shutdown deadline")
	}

	m.wg.Wait()
	m.disconnectAll()
	m.logger.Info("event stream manager shut down")
	return nil
}

// deliver hands event to its recipients without blocking. A stream whose
// buffer is full misses the event.
func (m *Manager) deliver(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recipients map[string]*Client
	if event.UserID == "" {
		recipients = m.byID
	} else {
		recipients = m.byUser[event.UserID]
	}

	sent, missed := 0, 0
	for _, c := range recipients {
		select {
		case c.Events <- event:
			sent++
		default:
			missed++
		}
	}

	if missed > 0 {
		m.logger.Warn("event missed by slow streams",
			slog.String("event_type", string(event.Type)),
			slog.String("user_id", event.UserID),
			slog.Int("missed", missed))
	}
	if event.Type != EventHeartbeat {
		m.logger.Debug("event delivered",
			slog.String("event_type", string(event.Type)),
			slog.String("user_id", event.UserID),
			slog.Int("streams", sent))
	}
}

// Connect opens a stream for userID.
func (m *Manager) Connect(userID string) (*Client, error) {
	clientID, err := id.Generate(id.PrefixClient)
	if err != nil {
		return nil, err
	}

	c := &Client{
		ID:          clientID,
		UserID:      userID,
		Events:      make(chan Event, clientBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	streams := m.byUser[userID]
	if streams == nil {
		streams = make(map[string]*Client)
		m.byUser[userID] = streams
	}
	streams[clientID] = c
	m.byID[clientID] = c
	userStreams := len(streams)
	m.mu.Unlock()

	m.logger.Info("event stream opened",
		slog.String("client_id", clientID),
		slog.String("user_id", userID),
		slog.Int("user_streams", userStreams))
	return c, nil
}

// Disconnect ends a stream. Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	c, ok := m.byID[clientID]
	if ok {
		m.remove(c)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	c.close()

	m.logger.Info("event stream closed",
		slog.String("client_id", clientID),
		slog.String("user_id", c.UserID),
		slog.Duration("duration", time.Since(c.ConnectedAt)))
}

// remove drops c from both indexes. mu must be held for writing.
func (m *Manager) remove(c *Client) {
	delete(m.byID, c.ID)
	if streams := m.byUser[c.UserID]; streams != nil {
		delete(streams, c.ID)
		if len(streams) == 0 {
			delete(m.byUser, c.UserID)
		}
	}
}

// Emit queues an event. It never blocks: events emitted after Shutdown, or
// while the queue is full, are dropped.
func (m *Manager) Emit(event Event) {
	m.queueMu.RLock()
	defer m.queueMu.RUnlock()

	if m.closed {
		return
	}

	select {
	case m.queue <- event:
	default:
		m.logger.Error("event queue full, dropping event",
			slog.String("event_type", string(event.Type)),
			slog.String("user_id", event.UserID))
	}
}

// ClientCount returns the number of open streams.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// UserClientCount returns the number of open streams of userID.
func (m *Manager) UserClientCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID])
}

func (m *Manager) disconnectAll() {
	m.mu.Lock()
	clients := m.byID
	m.byID = make(map[string]*Client)
	m.byUser = make(map[string]map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	if len(clients) > 0 {
		m.logger.Info("event streams closed", slog.Int("count", len(clients)))
	}
}
