// Package realtime keeps the single websocket connection a client session uses
// for room-scoped chat events.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/adi-253/Talkie/chatsync/internal/config"
	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024

	sendBufferSize = 256
)

var (
	ErrClosed             = errors.New("realtime channel closed")
	ErrNotConnected       = errors.New("realtime channel not connected")
	ErrSendBufferFull     = errors.New("realtime send buffer full")
	ErrDisconnected       = errors.New("realtime connection lost")
	ErrReconnectExhausted = errors.New("realtime reconnection attempts exhausted")
)

// TokenSource supplies the bearer token presented in the handshake.
type TokenSource interface {
	Token() string
}

// Option customises a Channel.
type Option func(*Channel)

// WithClock replaces the clock used for reconnect backoff.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Channel) { c.clock = clock }
}

// WithMetrics records reconnects and received events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

type subscriber struct {
	id int
	fn func(events.Event)
}

// link is one physical connection and its write pump.
type link struct {
	conn     *websocket.Conn
	send     chan []byte
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func (l *link) stop() {
	l.quitOnce.Do(func() { close(l.quit) })
}

// Channel is a reusable, authenticated realtime connection. Rooms are joined
// by reference count so several consumers can share one room, and are joined
// again after every reconnect.
type Channel struct {
	url      string
	userName string
	auth     TokenSource
	attempts int
	backoff  time.Duration
	dialer   *websocket.Dialer
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	// connectMu serialises dialing; mu guards the fields below it
	connectMu sync.Mutex
	mu        sync.Mutex
	link      *link
	rooms     map[string]int
	subs      []subscriber
	nextSub   int
	onError   func(error)
	closed    bool
	closing   chan struct{}
}

// NewChannel creates a channel for the configured realtime endpoint. It does
// not connect until Connect is called.
func NewChannel(cfg *config.Config, auth TokenSource, opts ...Option) *Channel {
	c := &Channel{
		url:      cfg.RealtimeURL,
		userName: cfg.UserName,
		auth:     auth,
		attempts: cfg.ReconnectAttempts,
		backoff:  cfg.ReconnectBackoff,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: writeWait,
		},
		clock:   clockwork.NewRealClock(),
		logger:  log.With().Str("component", "realtime").Logger(),
		rooms:   make(map[string]int),
		closing: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnError registers the handler for non-fatal connection errors.
func (c *Channel) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Connected reports whether a live connection exists.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// Connect dials the realtime endpoint. It is a no-op while a live connection
// exists. Rooms already joined are re-joined on the new connection.
func (c *Channel) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.link != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header := http.Header{}
	if c.auth != nil {
		header.Set("Authorization", "Bearer "+c.auth.Token())
	}
	if c.userName != "" {
		header.Set("X-User-Name", c.userName)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s (status %d): %w", c.url, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	l := &link{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.link = l
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	go c.writePump(l)
	go c.readPump(l)

	sort.Strings(rooms)
	for _, room := range rooms {
		if err := c.enqueue(l, events.JoinChat{ChatID: room}); err != nil {
			return err
		}
	}

	c.logger.Info().Str("url", c.url).Int("rooms", len(rooms)).Msg("Realtime connected")
	return nil
}

// Join subscribes the connection to a room. Only the first reference emits
// join_chat; while disconnected the room is joined on the next connect.
func (c *Channel) Join(chatID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.rooms[chatID]++
	first := c.rooms[chatID] == 1
	l := c.link
	c.mu.Unlock()

	if !first || l == nil {
		return nil
	}
	return c.enqueue(l, events.JoinChat{ChatID: chatID})
}

// Leave drops one reference to a room and emits leave_chat on the last one.
func (c *Channel) Leave(chatID string) error {
	c.mu.Lock()
	n, ok := c.rooms[chatID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	last := n <= 1
	if last {
		delete(c.rooms, chatID)
	} else {
		c.rooms[chatID] = n - 1
	}
	l := c.link
	c.mu.Unlock()

	if !last || l == nil {
		return nil
	}
	return c.enqueue(l, events.LeaveChat{ChatID: chatID})
}

// Emit sends an outbound event on the live connection.
func (c *Channel) Emit(e events.Event) error {
	c.mu.Lock()
	l, closed := c.link, c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if l == nil {
		return ErrNotConnected
	}
	return c.enqueue(l, e)
}

// Subscribe registers fn for every inbound event, in delivery order. fn runs
// on the read pump and must not block. The returned func unsubscribes.
func (c *Channel) Subscribe(fn func(events.Event)) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Close leaves every joined room, then closes the connection. Reconnection
// stops for good.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closing)
	l := c.link
	c.link = nil
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.rooms = make(map[string]int)
	c.mu.Unlock()

	if l == nil {
		return nil
	}

	sort.Strings(rooms)
	for _, room := range rooms {
		if err := c.enqueue(l, events.LeaveChat{ChatID: room}); err != nil {
			c.logger.Warn().Err(err).Str("chat_id", room).Msg("Failed to queue leave")
		}
	}
	l.stop()

	select {
	case <-l.done:
	case <-time.After(writeWait):
		l.conn.Close()
	}
	c.logger.Info().Msg("Realtime closed")
	return nil
}

func (c *Channel) enqueue(l *link, e events.Event) error {
	data, err := events.Encode(e)
	if err != nil {
		return err
	}
	select {
	case l.send <- data:
		return nil
	case <-l.quit:
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

func (c *Channel) report(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Channel) dispatch(e events.Event) {
	c.mu.Lock()
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// readPump decodes inbound frames and fans them out to subscribers.
// This runs in its own goroutine per connection.
func (c *Channel) readPump(l *link) {
	defer func() {
		l.stop()
		c.dropped(l)
	}()

	l.conn.SetReadLimit(maxMessageSize)
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Realtime read error")
			}
			return
		}

		e, err := events.Decode(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed realtime frame")
			continue
		}
		c.metrics.EventReceived(string(e.Type()))
		c.dispatch(e)
	}
}

// writePump drains the send buffer onto the connection and keeps it alive
// with pings. Queued frames are flushed before a requested close.
func (c *Channel) writePump(l *link) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
		close(l.done)
	}()

	for {
		select {
		case data := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-l.quit:
			for {
				select {
				case data := <-l.send:
					l.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					l.conn.SetWriteDeadline(time.Now().Add(writeWait))
					l.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// dropped runs when a connection's read side ends. Unless the channel was
// closed on purpose, the loss is reported and reconnection starts.
func (c *Channel) dropped(l *link) {
	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	c.logger.Warn().Msg("Realtime connection lost")
	c.report(ErrDisconnected)
	go c.reconnect()
}

// reconnect retries Connect a bounded number of times with a fixed backoff.
func (c *Channel) reconnect() {
	for attempt := 1; attempt <= c.attempts; attempt++ {
		select {
		case <-c.clock.After(c.backoff):
		case <-c.closing:
			return
		}

		c.metrics.Reconnecting()
		c.logger.Warn().Int("attempt", attempt).Int("max", c.attempts).Msg("Reconnecting realtime")

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := c.Connect(ctx)
		cancel()
		if err == nil || errors.Is(err, ErrClosed) {
			return
		}
		c.report(fmt.Errorf("reconnect attempt %d/%d: %w", attempt, c.attempts, err))
	}
	c.report(ErrReconnectExhausted)
}
