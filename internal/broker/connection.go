// Connection actor: one per live socket. Parses inbound frames, drives the
// per-connection state machine, forwards outbound frames, and reports
// lifecycle events to the registry. Grounded on the teacher's
// websocket.Client/Hub split (readPump/writePump running as two goroutines
// per connection, a buffered send channel as the mailbox), generalized to
// the (topic, session) registry and the explicit NEW/OPEN/CLOSING/GONE
// state machine this broker's spec requires.
package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sessionbroker/broker/internal/logger"
	"github.com/sessionbroker/broker/internal/registry"
)

// State is the connection actor's lifecycle state (spec §4.3).
type State int32

const (
	StateNew State = iota
	StateOpen
	StateClosing
	StateGone
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateGone:
		return "gone"
	default:
		return "unknown"
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

var nextConnectionID uint64

// Connection is a single live socket's actor. Only its own reader and
// writer goroutines read from or write to the socket and drain the
// mailbox; other goroutines reach it only through Enqueue, which may fill
// the mailbox or close the socket of a slow consumer.
type Connection struct {
	id    uint64
	conn  *websocket.Conn
	state atomic.Int32

	mailbox       chan []byte
	sendMu        sync.Mutex
	mailboxClosed bool

	registry   *registry.Registry
	dispatcher *Dispatcher

	// Identity and session resolution (spec §4.3). tokenSubject and
	// tokenSession are set once, at construction, from the upgrade
	// gate's verified claims and never change afterward.
	tokenSubject string
	tokenSession string // empty when the token carried no sid

	// registeredName/registeredSession are mutated only from the
	// reader goroutine, so no lock is needed for them.
	registeredName    string
	registeredSession string
}

// NewConnection constructs a Connection in state NEW. tokenSubject and
// tokenSession come from the upgrade gate (tokenSession is "" when the
// token carried no sid, or when the upgrade was anonymous).
func NewConnection(conn *websocket.Conn, reg *registry.Registry, disp *Dispatcher, tokenSubject, tokenSession string, mailboxCapacity int) *Connection {
	id := atomic.AddUint64(&nextConnectionID, 1)
	c := &Connection{
		id:           id,
		conn:         conn,
		mailbox:      make(chan []byte, mailboxCapacity),
		registry:     reg,
		dispatcher:   disp,
		tokenSubject: tokenSubject,
		tokenSession: tokenSession,
	}
	c.state.Store(int32(StateNew))
	return c
}

// ID returns the connection's monotonically assigned local id. Satisfies
// registry.Subscriber.
func (c *Connection) ID() uint64 { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Session resolves the connection's current, authoritative session
// (spec §4.3 resolution order):
//  1. token sid, if the token carried one — immutable.
//  2. the most recent register-session.
//  3. "session-" + the registered name.
//  4. "session-anonymous-" + local id.
func (c *Connection) Session() string {
	if c.tokenSession != "" {
		return c.tokenSession
	}
	if c.registeredSession != "" {
		return c.registeredSession
	}
	if c.registeredName != "" {
		return "session-" + c.registeredName
	}
	return "session-anonymous-" + uitoa(c.id)
}

// Subject returns the authenticated subject, or "" for an anonymous
// connection.
func (c *Connection) Subject() string { return c.tokenSubject }

// DisplayName returns the advisory name used as publisher_name, falling
// back to an anonymous label.
func (c *Connection) DisplayName() string {
	if c.registeredName != "" {
		return c.registeredName
	}
	return "anonymous-" + uitoa(c.id)
}

// Run starts the connection's reader and writer loops and blocks until
// both finish. Callers spawn this in its own goroutine per connection. A
// panic in either loop is caught at this boundary and treated as a
// transport failure for this connection only: it is logged, the
// connection is torn down, and the process keeps running.
func (c *Connection) Run(ctx context.Context) {
	c.state.CompareAndSwap(int32(StateNew), int32(StateOpen))

	done := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WebSocket().Error().Uint64("conn_id", c.id).Interface("panic", r).Msg("write loop panicked")
			}
			close(done)
		}()
		c.writeLoop()
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WebSocket().Error().Uint64("conn_id", c.id).Interface("panic", r).Msg("read loop panicked")
			}
		}()
		c.readLoop(ctx)
	}()

	c.transitionToClosing()
	c.closeMailbox()
	<-done

	c.state.Store(int32(StateGone))
	c.registry.Remove(c)
}

// Enqueue appends frame to the outbound mailbox without blocking. Returns
// false if the mailbox is full (slow consumer) or the connection is no
// longer accepting writes; the caller (the dispatcher) treats false as the
// signal to drop this subscriber.
func (c *Connection) Enqueue(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.mailboxClosed || c.State() != StateOpen {
		return false
	}
	select {
	case c.mailbox <- frame:
		return true
	default:
		c.transitionToClosing()
		// Force the blocked reader loop to unblock immediately rather than
		// waiting for the next inbound frame (which may never arrive from
		// a slow consumer that stopped reading its own socket).
		c.conn.Close()
		return false
	}
}

// closeMailbox closes the mailbox channel exactly once, synchronized with
// Enqueue so no send ever races a close.
func (c *Connection) closeMailbox() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.mailboxClosed {
		return
	}
	c.mailboxClosed = true
	close(c.mailbox)
}

func (c *Connection) transitionToClosing() {
	c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
	c.state.CompareAndSwap(int32(StateNew), int32(StateClosing))
}

// readLoop drains the socket, parses frames, and drives the state
// machine. It owns the socket's read side exclusively.
func (c *Connection) readLoop(ctx context.Context) {
	log := logger.WebSocket()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Uint64("conn_id", c.id).Err(err).Msg("unexpected close")
			}
			return
		}
		if c.State() != StateOpen {
			return
		}
		c.handleFrame(ctx, string(data))
	}
}

func (c *Connection) handleFrame(ctx context.Context, frame string) {
	log := logger.WebSocket()

	cmd, ok := ParseCommand(frame)
	if !ok {
		log.Debug().Uint64("conn_id", c.id).Str("frame", frame).Msg("dropping malformed command")
		return
	}

	switch cmd.Kind {
	case CmdPing:
		c.Enqueue([]byte(pongFrame))

	case CmdRegisterName:
		c.registeredName = sanitizeName(cmd.Name)

	case CmdRegisterSession:
		if c.tokenSession != "" {
			log.Warn().Uint64("conn_id", c.id).Msg("ignoring register-session: token already set the session")
			return
		}
		c.registeredSession = cmd.Session

	case CmdSubscribe:
		session := c.resolveExplicitOrCurrent(cmd.ExplicitSID, cmd.HasExplicitSID)
		c.registry.Subscribe(c, cmd.Topic, session)

	case CmdUnsubscribe:
		session := c.resolveExplicitOrCurrent(cmd.ExplicitSID, cmd.HasExplicitSID)
		c.registry.Unsubscribe(c, cmd.Topic, session)

	case CmdPublishLegacy:
		env := Envelope{
			PublisherName: c.DisplayName(),
			Topic:         cmd.LegacyTopic,
			Payload:       cmd.LegacyPayload,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			SessionID:     c.Session(),
		}
		c.dispatcher.Publish(ctx, c, env)

	case CmdPublishJSON:
		env, err := DecodePublishJSON(cmd.RawJSON)
		if err != nil {
			log.Debug().Uint64("conn_id", c.id).Err(err).Msg("dropping malformed publish-json")
			return
		}
		env.PublisherName = c.DisplayName()
		env.Timestamp = time.Now().UTC().Format(time.RFC3339)
		env.SessionID = c.Session()
		c.dispatcher.Publish(ctx, c, env)
	}
}

// resolveExplicitOrCurrent returns sid when the subscribe/unsubscribe
// command named an explicit session, otherwise the connection's current
// resolved session.
func (c *Connection) resolveExplicitOrCurrent(sid string, has bool) string {
	if has {
		return sid
	}
	return c.Session()
}

// writeLoop drains the mailbox and writes frames, interleaved with
// periodic pings. It owns the socket's write side exclusively.
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case frame, ok := <-c.mailbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
