package wsutils

import (
	"sync"

	"github.com/gorilla/websocket"
)

// ThreadSafeWriter serializes writes to a websocket connection. Gorilla
// connections support one concurrent writer only, while room broadcasts and
// read-loop replies may race on the same socket.
type ThreadSafeWriter struct {
	*websocket.Conn
	mu sync.Mutex
}

func NewThreadSafeWriter(conn *websocket.Conn) *ThreadSafeWriter {
	return &ThreadSafeWriter{Conn: conn}
}

func (t *ThreadSafeWriter) WriteJSON(val any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.Conn.WriteJSON(val)
}

// ReadJSON needs no lock, reads are owned by a single loop per connection.
func (t *ThreadSafeWriter) ReadJSON(val any) error {
	return t.Conn.ReadJSON(val)
}

func (t *ThreadSafeWriter) Close() error {
	return t.Conn.Close()
}
