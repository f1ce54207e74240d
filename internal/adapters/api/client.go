// Package api is the HTTP client of the meeting backend.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/domain"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// StatusError is a non-2xx backend reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend status %d", e.Code)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// envelope wraps every backend body.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client implements the session gateway, meeting service and attendance
// recorder against one backend.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q: scheme and host required", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:  base,
		token: cfg.AccessToken,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) meetingPath(meetingID string, rest ...string) string {
	p := "/api/meeting/" + url.PathEscape(meetingID)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *Client) JoinSession(ctx context.Context, meetingID string) (*domain.MediaSessionDescriptor, error) {
	var desc domain.MediaSessionDescriptor
	if err := c.do(ctx, http.MethodPost, c.meetingPath(meetingID, "join"), nil, &desc); err != nil {
		return nil, fmt.Errorf("join session: %w", err)
	}
	if desc.UID.IsZero() || desc.ChannelName == "" {
		return nil, fmt.Errorf("join session: incomplete descriptor")
	}
	return &desc, nil
}

func (c *Client) LeaveSession(ctx context.Context, meetingID string) error {
	if err := c.do(ctx, http.MethodPut, c.meetingPath(meetingID, "leave"), nil, nil); err != nil {
		return fmt.Errorf("leave session: %w", err)
	}
	return nil
}

func (c *Client) GetMeeting(ctx context.Context, meetingID string) (*domain.Meeting, error) {
	var m domain.Meeting
	if err := c.do(ctx, http.MethodGet, c.meetingPath(meetingID), nil, &m); err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	return &m, nil
}

func (c *Client) Roster(ctx context.Context, meetingID string) ([]domain.RosterEntry, error) {
	var entries []domain.RosterEntry
	if err := c.do(ctx, http.MethodGet, c.meetingPath(meetingID, "participants"), nil, &entries); err != nil {
		return nil, fmt.Errorf("get roster: %w", err)
	}
	return entries, nil
}

// RecordJoin marks the caller present. The backend records attendance on
// the join endpoint; the descriptor it returns is discarded.
func (c *Client) RecordJoin(ctx context.Context, meetingID string) error {
	if err := c.do(ctx, http.MethodPost, c.meetingPath(meetingID, "join"), nil, nil); err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	return nil
}

func (c *Client) RecordLeave(ctx context.Context, meetingID string) error {
	if err := c.do(ctx, http.MethodPut, c.meetingPath(meetingID, "leave"), nil, nil); err != nil {
		return fmt.Errorf("record leave: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	u := *c.base
	u.Path += path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	log.Debug().Str("module", "adapters.api").Str("method", method).Str("path", path).
		Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("backend call")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode envelope: %w", err)
		}
	}
	if resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: env.Message}
	}
	if len(raw) > 0 && !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request rejected"
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
