package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/connectra/meeting-client/internal/adapters/api"
	"github.com/connectra/meeting-client/internal/adapters/control"
	"github.com/connectra/meeting-client/internal/adapters/rtc"
	sidechannel "github.com/connectra/meeting-client/internal/adapters/signal"
	"github.com/connectra/meeting-client/internal/app/messaging"
	"github.com/connectra/meeting-client/internal/app/room"
	"github.com/connectra/meeting-client/internal/app/session"
	"github.com/connectra/meeting-client/internal/config"
	"github.com/connectra/meeting-client/internal/core"
)

var (
	joinCommand = &cli.Command{
		Name:   "join",
		Usage:  "join a meeting and serve the control API until it ends",
		Action: joinMeeting,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "meeting",
				Usage:    "id of the meeting to join",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "display name until the backend reports one",
			},
		},
	}

	sourcesCommand = &cli.Command{
		Name:   "sources",
		Usage:  "list shareable screen sources",
		Action: listSources,
	}
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
	return cfg, nil
}

func newEngine(cfg *config.Config) *rtc.Engine {
	return rtc.NewEngine(rtc.Config{
		SignalURL:      cfg.Media.SignalURL,
		ICEServers:     cfg.Media.ICEServers,
		CameraFile:     cfg.Media.CameraFile,
		MicrophoneFile: cfg.Media.MicrophoneFile,
		ScreenDir:      cfg.Media.ScreenDir,
		Synthetic:      cfg.Media.Synthetic,
	})
}

// newTransport connects the side-channel. It never fails the join: a
// transport that cannot connect leaves the room without a side-channel.
func newTransport(ctx context.Context, cfg *config.Config) core.Transport {
	switch cfg.Messaging.Transport {
	case config.TransportRedis:
		rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.Messaging.RedisAddr}})
		return sidechannel.NewRedis(rc, cfg.Messaging.RedisPrefix)
	case config.TransportLoopback:
		return sidechannel.NewLoopback()
	default:
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		header := http.Header{}
		if cfg.Backend.AccessToken != "" {
			header.Set("Authorization", "Bearer "+cfg.Backend.AccessToken)
		}
		t, err := sidechannel.DialWS(dctx, cfg.Messaging.URL, header)
		if err != nil {
			log.Warn().Err(err).Str("module", "main").Str("url", cfg.Messaging.URL).Msg("side-channel unavailable")
			return nil
		}
		return t
	}
}

func joinMeeting(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := api.New(api.Config{
		BaseURL:     cfg.Backend.BaseURL,
		AccessToken: cfg.Backend.AccessToken,
		Timeout:     cfg.Backend.Timeout,
	})
	if err != nil {
		return err
	}
	engine := newEngine(cfg)

	meetingID := c.String("meeting")
	coord := session.New(meetingID, backend, engine, session.Options{
		JoinTimeout:   cfg.Session.JoinTimeout,
		DeviceTimeout: cfg.Session.DeviceTimeout,
		LeaveTimeout:  cfg.Session.LeaveTimeout,
	})

	var channel *messaging.Channel
	if transport := newTransport(ctx, cfg); transport != nil {
		defer transport.Close()
		channel = messaging.NewChannel(transport)
	}

	ctrl := room.New(room.Deps{
		Meetings:   backend,
		Attendance: backend,
		Session:    coord,
		Channel:    channel,
	}, room.Options{
		StatusInterval:      cfg.Room.StatusInterval,
		RosterInterval:      cfg.Room.RosterInterval,
		TickInterval:        cfg.Room.TickInterval,
		RosterDegradedAfter: cfg.Room.RosterDegradedAfter,
		LeaveTimeout:        cfg.Session.LeaveTimeout,
		UserName:            c.String("name"),
	})

	var sources core.ScreenSourceLister
	if cfg.Media.ScreenDir != "" {
		sources = rtc.FileScreenSources{Dir: cfg.Media.ScreenDir}
	}
	r := control.SetupRouter(ctx, control.Config{
		Mode:       cfg.Mode,
		StaticPath: cfg.Control.StaticPath,
		ReadLimit:  cfg.Control.ReadLimit,
		PingPeriod: cfg.Control.PingPeriod,
	}, ctrl, coord, sources)
	srv := &http.Server{
		Addr:    cfg.Control.Listen,
		Handler: r,
	}
	go func() {
		log.Info().Str("module", "main").Str("addr", cfg.Control.Listen).Msg("control API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("module", "main").Msg("control API error")
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("control API forced to shutdown")
		}
	}()

	log.Info().Str("module", "main").Str("meeting", meetingID).Msg("joining")
	runErr := ctrl.Run(ctx)

	var je *session.JoinError
	switch {
	case errors.As(runErr, &je):
		return cli.Exit(je.Message(), 2)
	case runErr != nil:
		return runErr
	}
	log.Info().Str("module", "main").Str("meeting", meetingID).Str("reason", ctrl.EndReason()).Msg("room closed")
	return nil
}

func listSources(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Media.ScreenDir == "" {
		return cli.Exit("media.screen_dir is not configured", 1)
	}
	list, err := rtc.FileScreenSources{Dir: cfg.Media.ScreenDir}.ListScreenSources(c.Context)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}
