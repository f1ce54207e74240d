// Package control exposes a running room to a local UI over HTTP and a
// state push websocket.
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/app/messaging"
	"github.com/connectra/meeting-client/internal/app/room"
	"github.com/connectra/meeting-client/internal/app/session"
	"github.com/connectra/meeting-client/internal/core"
)

// Room is the part of room.Controller the UI drives.
type Room interface {
	View() room.View
	Watch() (<-chan struct{}, func())
	Leave(ctx context.Context)
	MuteAll(ctx context.Context, muted bool) error
	RaiseHand(ctx context.Context) error
	LowerHand(ctx context.Context) error
}

// Media is the part of session.Coordinator the UI drives.
type Media interface {
	ToggleMic() (bool, error)
	ToggleCam(ctx context.Context) (bool, error)
	StartScreenShare(ctx context.Context, sourceID string) error
	StopScreenShare(ctx context.Context) error
}

type Config struct {
	Mode       string
	StaticPath string
	ReadLimit  int64
	PingPeriod time.Duration
}

type server struct {
	cfg     Config
	room    Room
	media   Media
	sources core.ScreenSourceLister
}

// SetupRouter wires the control routes. sources may be nil.
func SetupRouter(ctx context.Context, cfg Config, rm Room, media Media, sources core.ScreenSourceLister) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 4096
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	s := &server{cfg: cfg, room: rm, media: media, sources: sources}

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/state", func(c *gin.Context) {
		s.handleState(ctx, c)
	})

	api := r.Group("/api")
	api.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, rm.View())
	})
	api.GET("/screen-sources", s.listSources)

	api.POST("/mic/toggle", func(c *gin.Context) {
		muted, err := media.ToggleMic()
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"muted": muted})
	})
	api.POST("/cam/toggle", func(c *gin.Context) {
		off, err := media.ToggleCam(c.Request.Context())
		if err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cameraOff": off})
	})
	api.POST("/screen/start", func(c *gin.Context) {
		var req struct {
			SourceID string `json:"sourceId"`
		}
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
				return
			}
		}
		if err := media.StartScreenShare(c.Request.Context(), req.SourceID); err != nil {
			abort(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/screen/stop", func(c *gin.Context) {
		if err := media.StopScreenShare(c.Request.Context()); err != nil {
			abort(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/mute-all", func(c *gin.Context) {
		var req struct {
			Muted *bool `json:"muted"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Muted == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing muted"})
			return
		}
		if err := rm.MuteAll(c.Request.Context(), *req.Muted); err != nil {
			abort(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/hand/raise", func(c *gin.Context) {
		if err := rm.RaiseHand(c.Request.Context()); err != nil {
			abort(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/hand/lower", func(c *gin.Context) {
		if err := rm.LowerHand(c.Request.Context()); err != nil {
			abort(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/leave", func(c *gin.Context) {
		rm.Leave(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	log.Info().Str("module", "adapters.control").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

func (s *server) listSources(c *gin.Context) {
	if s.sources == nil {
		c.JSON(http.StatusOK, gin.H{"sources": []core.ScreenSource{}})
		return
	}
	list, err := s.sources.ListScreenSources(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	if list == nil {
		list = []core.ScreenSource{}
	}
	c.JSON(http.StatusOK, gin.H{"sources": list})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, room.ErrNotHost), errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotJoined),
		errors.Is(err, session.ErrNoTrack),
		errors.Is(err, session.ErrAlreadySharing),
		errors.Is(err, session.ErrNotSharing),
		errors.Is(err, messaging.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.control").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
