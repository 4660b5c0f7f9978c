package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dimitrije/teamboard/pkg/dto"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	feedHandshakeTimeout = 10 * time.Second
	feedChangeBuffer     = 64
)

// Feed follows a team's task changes over the /sync websocket.
type Feed struct {
	client *Client
	dialer *websocket.Dialer
	log    *slog.Logger
}

func (c *Client) Feed(log *slog.Logger) *Feed {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Feed{
		client: c,
		dialer: &websocket.Dialer{HandshakeTimeout: feedHandshakeTimeout},
		log:    log,
	}
}

func (f *Feed) url() string {
	u := *f.client.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/sync"
	q := u.Query()
	q.Set("token", f.client.Token())
	u.RawQuery = q.Encode()
	return u.String()
}

// Subscribe opens a connection, subscribes to teamID and returns its task
// changes. The channel is closed when ctx ends or the connection drops.
func (f *Feed) Subscribe(ctx context.Context, teamID uuid.UUID) (<-chan dto.Change, error) {
	conn, resp, err := f.dialer.DialContext(ctx, f.url(), nil)
	if err != nil {
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, &APIError{Status: resp.StatusCode, Message: "websocket handshake rejected"}
			}
		}
		return nil, fmt.Errorf("failed to connect change feed: %w", err)
	}

	early, err := f.handshake(conn, teamID)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	changes := make(chan dto.Change, feedChangeBuffer)
	stop := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	go func() {
		defer close(changes)
		defer close(stop)
		defer func() { _ = conn.Close() }()

		for _, change := range early {
			select {
			case changes <- change:
			case <-ctx.Done():
				return
			}
		}

		for {
			var event dto.Event
			if err := conn.ReadJSON(&event); err != nil {
				if ctx.Err() == nil {
					f.log.Warn("change feed closed", slog.String("team_id", teamID.String()), slog.Any("error", err))
				}
				return
			}
			change, ok := f.teamChange(event, teamID)
			if !ok {
				continue
			}

			select {
			case changes <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return changes, nil
}

// teamChange decodes a task_change frame for teamID.
func (f *Feed) teamChange(event dto.Event, teamID uuid.UUID) (dto.Change, bool) {
	var change dto.Change
	if event.Type != dto.EventTaskChange || event.TeamID == nil || *event.TeamID != teamID {
		return change, false
	}
	if err := json.Unmarshal(event.Data, &change); err != nil {
		f.log.Warn("bad task_change frame", slog.Any("error", err))
		return change, false
	}
	return change, true
}

// handshake sends the subscribe action and waits for its acknowledgement.
// Changes for the team that overtake the acknowledgement are returned so
// the caller can deliver them first.
func (f *Feed) handshake(conn *websocket.Conn, teamID uuid.UUID) ([]dto.Change, error) {
	if err := conn.WriteJSON(dto.FeedAction{Action: dto.ActionSubscribe, TeamID: teamID.String()}); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(feedHandshakeTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var early []dto.Change
	for {
		var event dto.Event
		if err := conn.ReadJSON(&event); err != nil {
			return nil, fmt.Errorf("failed to subscribe: %w", err)
		}
		if change, ok := f.teamChange(event, teamID); ok {
			early = append(early, change)
			continue
		}
		switch {
		case event.Type == dto.EventSubscribed && event.TeamID != nil && *event.TeamID == teamID:
			return early, nil
		case event.Type == dto.EventError && event.RefAction == dto.ActionSubscribe:
			return nil, &APIError{Status: http.StatusNotFound, Message: event.Message}
		case event.Type == dto.EventError && event.RefAction == "":
			return nil, errors.New(event.Message)
		}
	}
}
