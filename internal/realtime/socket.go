// Package realtime implements the engine's push transport over a websocket
// subscription keyed by user identity and role.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Molemo21/ConnectSA-k9-sub010/internal/wire"
	"github.com/Molemo21/ConnectSA-k9-sub010/pkg/syncengine"
)

const (
	defaultEventBuffer = 16
	handshakeTimeout   = 10 * time.Second
)

// Subscriber dials the realtime endpoint and turns frames into engine events.
// One Subscribe call produces one connection; when the connection drops the
// event channel closes and the engine's channel loop decides when to redial.
type Subscriber struct {
	endpoint *url.URL
	dialer   *websocket.Dialer
	header   http.Header
	logger   *zap.Logger
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithLogger attaches a zap logger for dropped-frame diagnostics.
func WithLogger(logger *zap.Logger) SubscriberOption {
	return func(subscriber *Subscriber) {
		subscriber.logger = logger
	}
}

// WithSessionCookie sends a session cookie with the websocket handshake.
func WithSessionCookie(name string, value string) SubscriberOption {
	return func(subscriber *Subscriber) {
		subscriber.header.Set("Cookie", name+"="+value)
	}
}

// New wires a subscriber for the given endpoint; http(s) schemes are rewritten
// to their websocket equivalents.
func New(endpoint string, options ...SubscriberOption) (*Subscriber, error) {
	parsed, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse realtime endpoint: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return nil, fmt.Errorf("realtime endpoint %q must be ws(s) or http(s)", endpoint)
	}
	subscriber := &Subscriber{
		endpoint: parsed,
		dialer:   &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		header:   http.Header{},
		logger:   zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(subscriber)
		}
	}
	return subscriber, nil
}

// Subscribe dials the endpoint for the identity and streams decoded events
// until the connection drops or the context ends; either way the returned
// channel closes.
func (subscriber *Subscriber) Subscribe(ctx context.Context, identity syncengine.Identity) (<-chan syncengine.RealtimeEvent, error) {
	target := *subscriber.endpoint
	query := target.Query()
	query.Set("userId", identity.UserID)
	query.Set("role", identity.Role)
	target.RawQuery = query.Encode()

	conn, _, err := subscriber.dialer.DialContext(ctx, target.String(), subscriber.header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	events := make(chan syncengine.RealtimeEvent, defaultEventBuffer)
	go subscriber.readLoop(ctx, conn, events)
	return events, nil
}

func (subscriber *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- syncengine.RealtimeEvent) {
	defer close(events)
	defer conn.Close()

	// A blocked ReadJSON only unblocks when the connection closes, so a
	// watcher ties the connection's life to the context.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-watcherDone:
		}
	}()

	for {
		var frame wire.EventFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				subscriber.logger.Info("realtime connection dropped", zap.Error(err))
			}
			return
		}
		event, err := frame.ToEvent()
		if err != nil {
			subscriber.logger.Warn("dropping undecodable realtime frame", zap.Error(err))
			continue
		}
		select {
		case events <- event:
		case <-ctx.Done():
			return
		}
	}
}

var _ syncengine.PushTransport = (*Subscriber)(nil)
