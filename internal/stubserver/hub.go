package stubserver

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Molemo21/ConnectSA-k9-sub010/internal/wire"
	"github.com/Molemo21/ConnectSA-k9-sub010/pkg/syncengine"
)

// hub fans realtime frames out to every connected websocket client. A client
// too slow to drain its buffer is dropped rather than blocking the rest.
type hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan wire.EventFrame
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan wire.EventFrame),
	}
}

func (h *hub) add(conn *websocket.Conn) chan wire.EventFrame {
	frames := make(chan wire.EventFrame, 32)
	h.mu.Lock()
	h.clients[conn] = frames
	h.mu.Unlock()
	return frames
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if frames, found := h.clients[conn]; found {
		delete(h.clients, conn)
		close(frames)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(event syncengine.RealtimeEvent) {
	frame, err := wire.FromEvent(event)
	if err != nil {
		h.logger.Warn("skipping unencodable event", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, frames := range h.clients {
		select {
		case frames <- frame:
		default:
			h.logger.Warn("dropping slow realtime client")
			delete(h.clients, conn)
			close(frames)
		}
	}
}
