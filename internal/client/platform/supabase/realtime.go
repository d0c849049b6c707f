package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/common"
)

// Phoenix channel events used by the realtime service.
const (
	phxJoin         = "phx_join"
	phxLeave        = "phx_leave"
	phxReply        = "phx_reply"
	phxError        = "phx_error"
	phxClose        = "phx_close"
	heartbeatEvent  = "heartbeat"
	accessTokenEvt  = "access_token"
	postgresChanges = "postgres_changes"
)

const joinTimeout = 10 * time.Second

var dialer = websocket.DefaultDialer

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type phxReplyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type  platform.EventType `json:"type"`
		Table string             `json:"table"`
	} `json:"data"`
}

func (c *Client) socketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {c.apiKey}, "vsn": {"1.0.0"}}.Encode()
	return u.String()
}

// Subscribe joins the postgres_changes channel of table. The first join is
// synchronous; afterwards the feed reconnects on its own with exponential
// backoff and emits one UPDATE event after each reconnect so consumers
// re-query whatever they missed.
func (c *Client) Subscribe(ctx context.Context, table string) (platform.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &channel{
		c:      c,
		table:  table,
		topic:  "realtime:public:" + table,
		events: make(chan platform.ChangeEvent, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	conn, err := s.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	go s.run(ctx, conn)
	return s, nil
}

type channel struct {
	c      *Client
	table  string
	topic  string
	events chan platform.ChangeEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	ref   int
	token string
}

func (s *channel) Events() <-chan platform.ChangeEvent { return s.events }

// Close leaves the channel and waits for the connection to shut down.
func (s *channel) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

func (s *channel) nextRef() *string {
	s.ref++
	r := strconv.Itoa(s.ref)
	return &r
}

func (s *channel) send(conn *websocket.Conn, topic, event string, payload any, joinRef *string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(phxMessage{Topic: topic, Event: event, Payload: raw, Ref: s.nextRef(), JoinRef: joinRef})
}

// connect dials the socket and joins the channel, waiting for the reply.
func (s *channel) connect(ctx context.Context) (*websocket.Conn, error) {
	token, err := s.c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	conn, resp, err := dialer.DialContext(ctx, s.c.socketURL(), nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		re := &common.RemoteError{Err: fmt.Errorf("realtime dial: %w", err)}
		if resp != nil {
			re.Status = resp.StatusCode
		}
		return nil, re
	}

	join := map[string]any{
		"config": map[string]any{
			"broadcast": map[string]any{"self": false},
			"presence":  map[string]any{"key": ""},
			"postgres_changes": []map[string]string{
				{"event": "*", "schema": "public", "table": s.table},
			},
		},
		"access_token": token,
	}
	joinRef := s.nextRef()
	raw, _ := json.Marshal(join)
	if err := conn.WriteJSON(phxMessage{Topic: s.topic, Event: phxJoin, Payload: raw, Ref: joinRef, JoinRef: joinRef}); err != nil {
		conn.Close()
		return nil, &common.RemoteError{Err: err}
	}

	_ = conn.SetReadDeadline(time.Now().Add(joinTimeout))
	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return nil, &common.RemoteError{Err: fmt.Errorf("realtime join: %w", err)}
		}
		if msg.Event != phxReply || msg.Ref == nil || *msg.Ref != *joinRef {
			continue
		}
		var reply phxReplyPayload
		_ = json.Unmarshal(msg.Payload, &reply)
		if reply.Status != "ok" {
			conn.Close()
			return nil, &common.RemoteError{Code: reply.Status, Message: "realtime join rejected: " + string(reply.Response)}
		}
		break
	}
	_ = conn.SetReadDeadline(time.Time{})
	s.token = token
	return conn, nil
}

func (s *channel) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)
	defer close(s.events)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second

	for {
		err := s.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		s.c.logger.Warn(ctx, "realtime connection lost", "table", s.table, "error", err)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
			}
			conn, err = s.connect(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			s.c.logger.Warn(ctx, "realtime reconnect failed", "table", s.table, "error", err)
		}
		bo.Reset()
		s.c.logger.Info(ctx, "realtime reconnected", "table", s.table)

		if !s.emit(ctx, platform.ChangeEvent{Table: s.table, Type: platform.EventUpdate}) {
			conn.Close()
			return
		}
	}
}

func (s *channel) emit(ctx context.Context, ev platform.ChangeEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// serve pumps one connection until it fails or ctx ends. Only this goroutine
// writes to conn.
func (s *channel) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	msgs := make(chan phxMessage)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			var msg phxMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- msg:
			case <-stop:
				return
			}
		}
	}()

	ticker := time.NewTicker(s.c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.send(conn, s.topic, phxLeave, map[string]any{}, nil)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return nil

		case err := <-readErr:
			return err

		case <-ticker.C:
			if err := s.send(conn, "phoenix", heartbeatEvent, map[string]any{}, nil); err != nil {
				return err
			}
			s.refreshToken(ctx, conn)

		case msg := <-msgs:
			if msg.Topic != s.topic {
				continue
			}
			switch msg.Event {
			case postgresChanges:
				var p changePayload
				if err := json.Unmarshal(msg.Payload, &p); err != nil {
					s.c.logger.Warn(ctx, "realtime: malformed change", "error", err)
					continue
				}
				ev := platform.ChangeEvent{Table: p.Data.Table, Type: p.Data.Type}
				if ev.Table == "" {
					ev.Table = s.table
				}
				if !s.emit(ctx, ev) {
					return nil
				}
			case phxError, phxClose:
				return errors.New("realtime channel " + msg.Event)
			}
		}
	}
}

// refreshToken pushes a rotated access token to the channel.
func (s *channel) refreshToken(ctx context.Context, conn *websocket.Conn) {
	tok, err := s.c.bearer(ctx)
	if err != nil || tok == s.token {
		return
	}
	if err := s.send(conn, s.topic, accessTokenEvt, map[string]string{"access_token": tok}, nil); err == nil {
		s.token = tok
	}
}
