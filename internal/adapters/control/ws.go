package control

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleState pushes the room view on connect and after every change.
// Client frames are read only to notice the close.
func (s *server) handleState(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.control").Msg("upgrade failed")
		return
	}
	defer ws.Close()

	changes, stop := s.room.Watch()
	defer stop()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pongWait := s.cfg.PingPeriod * 10 / 9
	ws.SetReadLimit(s.cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Debug().Str("module", "adapters.control").Str("remote", c.Request.RemoteAddr).Msg("state watcher connected")
	defer log.Debug().Str("module", "adapters.control").Str("remote", c.Request.RemoteAddr).Msg("state watcher gone")

	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()

	if err := s.pushView(ws); err != nil {
		return
	}
	for {
		select {
		case <-connCtx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case <-changes:
			if err := s.pushView(ws); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *server) pushView(ws *websocket.Conn) error {
	data, err := json.Marshal(s.room.View())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.control").Msg("marshal view")
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug().Err(err).Str("module", "adapters.control").Msg("push view")
		return err
	}
	return nil
}
