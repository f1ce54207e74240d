package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/adapters/signal"
)

type WSOptions struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type WSController struct {
	Hub  *Hub
	opts WSOptions
}

func NewWSController(hub *Hub, opts WSOptions) *WSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &WSController{Hub: hub, opts: opts}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *WSController) HandleWS(ctx context.Context, c *gin.Context) {
	sid := SessionID(c.GetString("client_token"))
	log.Info().Str("module", "adapters.relay").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.relay").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)
	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	conn := newConn(sid, ws, ctl.opts.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Hub.Bind(conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn, pongWait)
}

func (ctl *WSController) writePump(ctx context.Context, c *Conn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "adapters.relay").Str("sid", string(c.sid)).Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "adapters.relay").Str("sid", string(c.sid)).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.relay").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.relay").Str("sid", string(c.sid)).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, c *Conn, pongWait time.Duration) {
	defer func() {
		log.Info().Str("module", "adapters.relay").Str("sid", string(c.sid)).Msg("readPump closing")
		ctl.Hub.Unbind(c)
		c.Close()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "adapters.relay").Str("sid", string(c.sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleMessage(c, data)
	}
}

func (ctl *WSController) handleMessage(c *Conn, data []byte) {
	var m signal.RelayMessage
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn().Err(err).Str("module", "adapters.relay").Str("sid", string(c.sid)).Msg("bad json")
		ctl.sendError(c, "", "bad json")
		return
	}

	switch m.Type {
	case signal.TypeSubscribe:
		if err := ctl.Hub.Subscribe(c.sid, m.Channel); err != nil {
			ctl.sendError(c, m.Channel, err.Error())
		}
	case signal.TypeUnsubscribe:
		ctl.Hub.Unsubscribe(c.sid, m.Channel)
	case signal.TypePublish:
		if len(m.Data) == 0 {
			ctl.sendError(c, m.Channel, "empty data")
			return
		}
		if err := ctl.Hub.Publish(c.sid, m.Channel, m.Data); err != nil {
			ctl.sendError(c, m.Channel, err.Error())
		}
	case signal.TypePing:
		ctl.sendJSON(c, signal.RelayMessage{Type: signal.TypePong})
	case signal.TypePong:
	default:
		log.Warn().Str("module", "adapters.relay").Str("type", m.Type).Msg("unknown message")
		ctl.sendError(c, m.Channel, "unknown type "+m.Type)
	}
}

func (ctl *WSController) sendError(c *Conn, channel, msg string) {
	ctl.sendJSON(c, signal.RelayMessage{Type: signal.TypeError, Channel: channel, Message: msg})
}

func (ctl *WSController) sendJSON(c *Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.relay").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
