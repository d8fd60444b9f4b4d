package syncengine

import (
	"context"
	"time"
)

// PushTransport delivers server-pushed events for the authenticated identity.
// The returned channel closes when the subscription drops; the caller decides
// whether to resubscribe. A nil transport leaves the engine poll-only.
type PushTransport interface {
	Subscribe(ctx context.Context, identity Identity) (<-chan RealtimeEvent, error)
}

// Channel unifies best-effort push delivery with an interval poll backstop.
// The poll runs regardless of push connectivity — push is never solely relied
// upon — and goes through the cached fetch path with force off, so a tick that
// races a push-driven refresh joins it instead of duplicating it.
type Channel struct {
	store         *Store
	session       *SessionGuard
	transport     PushTransport
	refresh       func(ctx context.Context, force bool) error
	pollInterval  time.Duration
	reconnectBase time.Duration
	reconnectMax  time.Duration
	nowFn         func() time.Time
	logger        OperationLogger
}

// NewChannel wires a channel. transport may be nil.
func NewChannel(store *Store, session *SessionGuard, transport PushTransport, refresh func(ctx context.Context, force bool) error, cfg Config, now func() time.Time, logger OperationLogger) *Channel {
	if now == nil {
		now = time.Now
	}
	return &Channel{
		store:         store,
		session:       session,
		transport:     transport,
		refresh:       refresh,
		pollInterval:  cfg.PollInterval,
		reconnectBase: cfg.BackoffBase,
		reconnectMax:  cfg.ReconnectBackoffMax,
		nowFn:         now,
		logger:        logger,
	}
}

// Run drives the poll ticker and the push subscription until the context ends.
// All timers stop with the context, so nothing fires after teardown.
func (channel *Channel) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		channel.pushLoop(ctx)
	}()
	channel.pollLoop(ctx)
	<-done
}

func (channel *Channel) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(channel.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !channel.session.Authenticated() {
				continue
			}
			if err := channel.refresh(ctx, false); err != nil {
				// Background read failure: the store keeps its last-known-good
				// snapshot, so this surfaces as a quiet retry on the next tick.
				channel.logEvent(ctx, "poll.tick", err)
			}
		}
	}
}

func (channel *Channel) pushLoop(ctx context.Context) {
	if channel.transport == nil {
		return
	}
	delay := channel.reconnectBase
	for {
		if ctx.Err() != nil {
			return
		}
		identity, authenticated := channel.session.CurrentIdentity()
		if !authenticated {
			if sleepContext(ctx, delay) != nil {
				return
			}
			delay = channel.escalate(delay)
			continue
		}
		events, err := channel.transport.Subscribe(ctx, identity)
		if err != nil {
			channel.logEvent(ctx, "push.subscribe", err)
			if sleepContext(ctx, delay) != nil {
				return
			}
			delay = channel.escalate(delay)
			continue
		}
		delay = channel.reconnectBase
		channel.consume(ctx, events)
	}
}

func (channel *Channel) consume(ctx context.Context, events <-chan RealtimeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			channel.ingest(ctx, event)
		}
	}
}

// ingest normalizes one event from either source and proposes it to the store;
// the store's timestamp rule is what prevents double application when push and
// poll deliver the same change.
func (channel *Channel) ingest(ctx context.Context, event RealtimeEvent) {
	event.ReceivedAt = channel.nowFn()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = event.ReceivedAt
	}
	applied := channel.store.ApplyEvent(event)
	if channel.logger != nil {
		status := "dropped"
		if applied {
			status = "applied"
		}
		channel.logger.LogOperation(ctx, OperationLog{
			Operation: "realtime.event",
			Resource:  string(event.Resource),
			Status:    status,
		})
	}
}

func (channel *Channel) escalate(delay time.Duration) time.Duration {
	next := delay * 2
	if next > channel.reconnectMax {
		return channel.reconnectMax
	}
	return next
}

func (channel *Channel) logEvent(ctx context.Context, operation string, err error) {
	if channel.logger == nil {
		return
	}
	channel.logger.LogOperation(ctx, OperationLog{
		Operation: operation,
		Status:    operationStatusError,
		Error:     err,
	})
}
