package relay

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type RouterConfig struct {
	Mode   string
	Secret string
	WS     WSOptions
}

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every client a stable session id. The id
// lives in the signed session and is mirrored in the "ct" cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get("client_token").(string)
		if token == "" {
			token, _ = c.Cookie("ct")
		}
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		if stored, _ := sess.Get("client_token").(string); stored != token {
			sess.Set("client_token", token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.relay").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg RouterConfig, hub *Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConnectraRelay", store))
	r.Use(ClientTokenMiddleware())

	ctrl := NewWSController(hub, cfg.WS)
	r.GET("/ws", func(c *gin.Context) {
		ctrl.HandleWS(ctx, c)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "connections": hub.ConnCount()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"channels": hub.Channels()})
	})
	api.DELETE("/sessions/:sid", func(c *gin.Context) {
		if !hub.Cancel(SessionID(c.Param("sid"))) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	log.Info().Str("module", "adapters.relay").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
