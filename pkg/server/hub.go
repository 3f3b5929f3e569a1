package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// wsConnection wraps a WebSocket connection with a write mutex, since
// gorilla/websocket connections allow at most one concurrent writer.
// Grounded on the teacher's pkg/server/websocket.go wsConnection type.
type wsConnection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// envelope is the wire shape of every inbound and outbound message: an
// (event, payload) pair (spec §6 "Message envelope").
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func newUpgrader(originAllowed func(string) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := originAllowed(origin)
			if !allowed {
				logrus.WithField("origin", origin).Warn("websocket connection rejected: origin not allowed")
			}
			return allowed
		},
	}
}

// send writes an (event, payload) envelope to the socket, serializing
// concurrent writers through the connection's mutex.
func (w *wsConnection) send(event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(envelope{Event: event, Payload: raw})
}

// close closes the underlying connection under the write mutex; it sends no
// frame of its own (terminateSocket sends sessionTerminated before calling it).
func (w *wsConnection) close() {
	w.mu.Lock()
	w.conn.Close()
	w.mu.Unlock()
}
