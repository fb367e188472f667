package service

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WriteTimeout bounds a single websocket write so a stalled client cannot hold its stream forever.
const WriteTimeout = 10 * time.Second

// liveConn serialises writes to one socket; gorilla connections allow a single concurrent writer.
type liveConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *liveConn) writeJSON(v any, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *liveConn) closeGoingAway(timeout time.Duration) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(timeout))
	c.conn.Close()
}

// ConnectionManager tracks live markdown streaming sockets so they can be closed on shutdown.
// The map lock only guards membership; writes never happen while it is held.
type ConnectionManager struct {
	connections  map[string]*liveConn
	mu           sync.RWMutex
	writeTimeout time.Duration
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections:  make(map[string]*liveConn),
		writeTimeout: WriteTimeout,
	}
}

// Add registers a connection under a session id.
func (m *ConnectionManager) Add(id string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[id] = &liveConn{conn: conn}
}

// Remove closes and forgets a connection. Removing twice is harmless.
func (m *ConnectionManager) Remove(id string) {
	m.mu.Lock()
	lc, ok := m.connections[id]
	delete(m.connections, id)
	m.mu.Unlock()
	if ok {
		lc.conn.Close()
	}
}

// Count returns the number of live connections.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// SendJSON writes v to the connection under that connection's write lock and deadline.
func (m *ConnectionManager) SendJSON(id string, v any) bool {
	m.mu.RLock()
	lc, ok := m.connections[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return lc.writeJSON(v, m.writeTimeout) == nil
}

// CloseAll sends a going-away close frame to every connection and forgets them.
func (m *ConnectionManager) CloseAll() {
	m.mu.Lock()
	conns := m.connections
	m.connections = make(map[string]*liveConn)
	m.mu.Unlock()
	for _, lc := range conns {
		lc.closeGoingAway(time.Second)
	}
}
