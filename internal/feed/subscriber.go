package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shelf-sh/shelf/internal/logger"
	"github.com/shelf-sh/shelf/internal/reconcile"
	"github.com/shelf-sh/shelf/internal/session"
	"github.com/shelf-sh/shelf/internal/supabase"
	"github.com/shelf-sh/shelf/internal/utils"
)

const (
	heartbeatInterval = 25 * time.Second
	readTimeout       = 60 * time.Second
	channelTopic      = "realtime:bookmarks"
)

// Config holds the realtime transport settings.
type Config struct {
	BaseURL      string // project URL, e.g. https://abc.supabase.co
	AnonKey      string
	Table        string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Subscriber keeps one realtime subscription alive for the session's
// owner and forwards insert/delete notifications to the reconciliation
// loop.
//
// Delivery gaps are tolerated, not replayed: every successful (re)join
// requests a full resync through the shared trigger channel, so the
// list converges even when notifications were missed while offline.
type Subscriber struct {
	cfg      Config
	sessions *session.Manager
	loop     *reconcile.Loop
	resync   chan<- struct{}
	logger   logger.Logger

	tokenCh chan string

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates the subscriber and registers for session changes: every
// token refresh is pushed onto the live socket, and the next reconnect
// joins with the fresh token.
func New(cfg Config, sessions *session.Manager, loop *reconcile.Loop, resync chan<- struct{}, log logger.Logger) *Subscriber {
	s := &Subscriber{
		cfg:      cfg,
		sessions: sessions,
		loop:     loop,
		resync:   resync,
		logger:   log,
		tokenCh:  make(chan string, 1),
		stopCh:   make(chan struct{}),
	}

	sessions.OnChange(func(sess supabase.Session) {
		// Keep only the latest token when refreshes outpace the socket.
		select {
		case s.tokenCh <- sess.AccessToken:
		default:
			select {
			case <-s.tokenCh:
			default:
			}
			select {
			case s.tokenCh <- sess.AccessToken:
			default:
			}
		}
	})

	return s
}

// Start runs the connect/consume/reconnect cycle until the context is
// cancelled or Stop is called.
func (s *Subscriber) Start(ctx context.Context) {
	go func() {
		backoff := s.cfg.ReconnectMin
		for {
			err := s.runOnce(ctx)
			if ctx.Err() != nil || s.stopped() {
				return
			}

			if err != nil {
				s.logger.Warn("change feed disconnected, reconnecting",
					logger.Duration("backoff", backoff),
					logger.Error(err))
			} else {
				backoff = s.cfg.ReconnectMin
			}

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-s.stopCh:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}

			backoff *= 2
			if backoff > s.cfg.ReconnectMax {
				backoff = s.cfg.ReconnectMax
			}
		}
	}()
}

// Stop terminates the subscription cycle.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Subscriber) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// runOnce holds one socket session: dial, join, then consume until the
// connection breaks or shutdown is requested.
func (s *Subscriber) runOnce(ctx context.Context) error {
	sess := s.sessions.Current()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, socketURL(s.cfg.BaseURL, s.cfg.AnonKey), nil)
	if err != nil {
		return fmt.Errorf("dial realtime socket: %w", err)
	}
	defer utils.Close(conn)

	refs := 0
	nextRef := func() string {
		refs++
		return strconv.Itoa(refs)
	}

	if err := s.join(conn, sess, nextRef()); err != nil {
		return err
	}

	s.logger.Info("change feed subscribed",
		logger.String("table", s.cfg.Table),
		logger.String("user", sess.UserID))

	// The subscription may have missed notifications while down; fall
	// back to a full resync rather than trusting local state.
	s.requestResync()

	msgCh := make(chan phxMessage)
	errCh := make(chan error, 1)
	go func() {
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			var msg phxMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- msg:
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-heartbeat.C:
			hb := phxMessage{
				Topic:   topicHeartbeat,
				Event:   eventHeartbeat,
				Payload: json.RawMessage("{}"),
				Ref:     nextRef(),
			}
			if err := conn.WriteJSON(hb); err != nil {
				return fmt.Errorf("write heartbeat: %w", err)
			}

		case token := <-s.tokenCh:
			payload, _ := json.Marshal(tokenPayload{AccessToken: token})
			msg := phxMessage{
				Topic:   channelTopic,
				Event:   eventToken,
				Payload: payload,
				Ref:     nextRef(),
			}
			if err := conn.WriteJSON(msg); err != nil {
				return fmt.Errorf("push refreshed token: %w", err)
			}
			s.logger.Debug("refreshed token pushed to change feed")

		case msg := <-msgCh:
			if err := s.handle(msg); err != nil {
				return err
			}

		case err := <-errCh:
			return fmt.Errorf("read realtime socket: %w", err)

		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Subscriber) join(conn *websocket.Conn, sess supabase.Session, ref string) error {
	payload, err := json.Marshal(joinPayload{
		Config: joinConfig{
			PostgresChanges: []changeSpec{
				{Event: "INSERT", Schema: "public", Table: s.cfg.Table,
					Filter: "owner=eq." + sess.UserID},
				{Event: "DELETE", Schema: "public", Table: s.cfg.Table,
					Filter: "owner=eq." + sess.UserID},
			},
		},
		AccessToken: sess.AccessToken,
	})
	if err != nil {
		return fmt.Errorf("encode join payload: %w", err)
	}

	msg := phxMessage{
		Topic:   channelTopic,
		Event:   eventJoin,
		Payload: payload,
		Ref:     ref,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("join realtime channel: %w", err)
	}
	return nil
}

func (s *Subscriber) handle(msg phxMessage) error {
	switch msg.Event {
	case eventChanges:
		ev, ok, err := translate(msg.Payload)
		if err != nil {
			s.logger.Warn("ignoring malformed change notification",
				logger.Error(err))
			return nil
		}
		if ok {
			s.loop.Deliver(ev)
		}
		return nil

	case eventReply:
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err == nil && reply.Status == "error" {
			return fmt.Errorf("realtime channel rejected request (topic %s)", msg.Topic)
		}
		return nil

	case eventError, eventClose:
		return fmt.Errorf("realtime channel closed by server (topic %s)", msg.Topic)

	default:
		return nil
	}
}

func (s *Subscriber) requestResync() {
	select {
	case s.resync <- struct{}{}:
	default:
		// A resync is already queued.
	}
}

// socketURL derives the realtime websocket endpoint from the project
// URL.
func socketURL(baseURL, anonKey string) string {
	u := strings.TrimRight(baseURL, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/realtime/v1/websocket?apikey=" + anonKey + "&vsn=1.0.0"
}
