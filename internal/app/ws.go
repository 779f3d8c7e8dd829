package app

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"whisperrflow/sync/internal/realtime"
	"whisperrflow/sync/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS policy is enforced by the shared middleware; the browser already
	// gated the handshake request.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleRealtimeSocket streams change-feed events for one table over a
// websocket. The socket's lifetime owns the underlying subscription: closing
// the connection releases it, and the release is idempotent.
func (s *HTTPServer) handleRealtimeSocket(w http.ResponseWriter, r *http.Request, tableID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Printf("realtime: websocket upgrade for %s: %v", tableID, err)
		return
	}

	connID := util.NewID("ws")
	unsubscribe, err := s.service.SubscribeChanges(tableID, func(event realtime.Event) {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("realtime: write to %s failed, dropping connection: %v", connID, err)
			_ = conn.Close()
		}
	})
	if err != nil {
		log.Printf("realtime: subscribe %s for %s: %v", tableID, connID, err)
		_ = conn.WriteJSON(map[string]any{"error": "subscribe failed"})
		_ = conn.Close()
		return
	}

	// Read pump exists only to notice the peer going away.
	go func() {
		defer func() {
			unsubscribe()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
