// Package client is the broker's reference client: a symmetric library
// that speaks the same wire protocol (§4.7) the broker parses, so its
// framing must stay bit-compatible with the server side. Grounded on the
// teacher's websocket.Client read-loop/callback dispatch shape, adapted
// from a server-side connection handle into a client-side library.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sessionbroker/broker/internal/envelope"
)

// MessageHandler is invoked once per inbound envelope matching a
// subscribed topic. At-most-one concurrent invocation per Client is
// guaranteed: callbacks run serially on the client's read loop.
type MessageHandler func(Envelope)

// Envelope mirrors the broker's wire envelope (spec §3).
type Envelope struct {
	PublisherName string `json:"publisher_name"`
	Topic         string `json:"topic"`
	Payload       string `json:"payload"`
	Timestamp     string `json:"timestamp"`
	SessionID     string `json:"session_id"`
}

// Client is a single connection to the broker, mirroring its wire
// protocol.
type Client struct {
	conn *websocket.Conn

	mu       sync.Mutex
	handlers map[string]MessageHandler

	authURL  string
	username string
	password string
	token    string
	expiry   time.Time

	// encKeys/peerKey are set by EnableEncryption. When encKeys is
	// non-nil, Publish seals outbound payloads and the read loop
	// attempts to open inbound ones before handing them to handlers.
	encKeys *envelope.KeyPair
	peerKey []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// Connect opens an anonymous connection to url and registers name as the
// advisory display name.
func Connect(name, wsURL string) (*Client, error) {
	return dial(name, wsURL, "")
}

// ConnectWithSession opens a connection and immediately sets the current
// session via register-session.
func ConnectWithSession(name, session, wsURL string) (*Client, error) {
	c, err := dial(name, wsURL, "")
	if err != nil {
		return nil, err
	}
	if err := c.send("register-session:" + session); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// ConnectWithAuth fetches a token from authURL using user/pass (and an
// optional session), then opens the WebSocket connection with that token
// attached as ?token=. The client schedules a refresh at exp-5min.
func ConnectWithAuth(name, wsURL, authURL, user, pass, session string) (*Client, error) {
	token, ttl, err := fetchToken(authURL, user, pass, session)
	if err != nil {
		return nil, err
	}

	withToken, err := addQueryParam(wsURL, "token", token)
	if err != nil {
		return nil, err
	}

	c, err := dial(name, withToken, token)
	if err != nil {
		return nil, err
	}
	c.authURL = authURL
	c.username = user
	c.password = pass
	c.expiry = time.Now().Add(time.Duration(ttl) * time.Second)

	go c.refreshLoop(session)

	return c, nil
}

func dial(name, wsURL, token string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	c := &Client{
		conn:     conn,
		handlers: make(map[string]MessageHandler),
		token:    token,
		closed:   make(chan struct{}),
	}

	if name != "" {
		if err := c.send("register-name:" + name); err != nil {
			conn.Close()
			return nil, err
		}
	}

	go c.readLoop()

	return c, nil
}

// Subscribe sends subscribe:<topic> to the broker. Inbound envelopes on
// topic reach a callback only if one was registered with OnMessage.
func (c *Client) Subscribe(topic string) error {
	return c.send("subscribe:" + topic)
}

// Unsubscribe mirrors Subscribe.
func (c *Client) Unsubscribe(topic string) error {
	return c.send("unsubscribe:" + topic)
}

// OnMessage registers the callback invoked for inbound envelopes matching
// topic. Replaces any previously registered callback for that topic.
func (c *Client) OnMessage(topic string, cb MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = cb
}

// Publish sends a publish-json command carrying topic/payload/timestamp.
// session_id is set for wire-format completeness; the broker ignores it
// for routing and uses the connection's own current session instead.
func (c *Client) Publish(topic, payload, timestamp string) error {
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	c.mu.Lock()
	keys, peerKey := c.encKeys, c.peerKey
	c.mu.Unlock()
	if keys != nil {
		sealed, err := keys.Seal(peerKey, []byte(payload))
		if err != nil {
			return fmt.Errorf("sealing payload: %w", err)
		}
		payload = base64.StdEncoding.EncodeToString(sealed)
	}

	env := Envelope{Topic: topic, Payload: payload, Timestamp: timestamp}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding publish envelope: %w", err)
	}
	return c.send("publish-json:" + string(data))
}

// GenerateEncryptionKeys creates this client's own envelope key pair
// (ECDH P-256) and returns its public key, base64-encoded, for handing to
// a peer. Call SetPeerPublicKey next, with the peer's public key, to
// start sealing and opening payloads.
func (c *Client) GenerateEncryptionKeys() (string, error) {
	keys, err := envelope.GenerateKeyPair()
	if err != nil {
		return "", fmt.Errorf("generating client key pair: %w", err)
	}
	c.mu.Lock()
	c.encKeys = keys
	c.mu.Unlock()
	return keys.PublicKeyBase64(), nil
}

// SetPeerPublicKey pairs this client with a peer's envelope public key
// (as served from GET /enc/public-key, or obtained from the peer's own
// GenerateEncryptionKeys call). Must follow GenerateEncryptionKeys.
func (c *Client) SetPeerPublicKey(peerPublicKeyBase64 string) error {
	peerKey, err := base64.StdEncoding.DecodeString(peerPublicKeyBase64)
	if err != nil {
		return fmt.Errorf("decoding peer public key: %w", err)
	}
	c.mu.Lock()
	c.peerKey = peerKey
	c.mu.Unlock()
	return nil
}

// EnableEncryption wires the envelope package's ECDH P-256 + AES-256-GCM
// format into this client without touching the wire command grammar:
// Publish still sends publish-json, only the payload string's contents
// change. It is a convenience over GenerateEncryptionKeys +
// SetPeerPublicKey for the common case where the peer's public key is
// already known (e.g. fetched from GET /enc/public-key). From this point,
// Publish seals outgoing payloads and the read loop transparently opens
// payloads it can decrypt with the derived key.
func (c *Client) EnableEncryption(peerPublicKeyBase64 string) error {
	if _, err := c.GenerateEncryptionKeys(); err != nil {
		return err
	}
	return c.SetPeerPublicKey(peerPublicKeyBase64)
}

// PublicKeyBase64 returns this client's own envelope public key, for a
// peer to pass to their own SetPeerPublicKey call. Returns an error if
// GenerateEncryptionKeys/EnableEncryption has not been called yet.
func (c *Client) PublicKeyBase64() (string, error) {
	c.mu.Lock()
	keys := c.encKeys
	c.mu.Unlock()
	if keys == nil {
		return "", fmt.Errorf("encryption not enabled")
	}
	return keys.PublicKeyBase64(), nil
}

// Close terminates the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) send(frame string) error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if string(data) == "pong" {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		c.mu.Lock()
		keys, peerKey := c.encKeys, c.peerKey
		c.mu.Unlock()
		if keys != nil {
			if raw, err := base64.StdEncoding.DecodeString(env.Payload); err == nil {
				if opened, err := keys.Open(peerKey, raw); err == nil {
					env.Payload = string(opened)
				}
			}
		}

		c.mu.Lock()
		handler, ok := c.handlers[env.Topic]
		c.mu.Unlock()
		if ok {
			handler(env)
		}
	}
}

func (c *Client) refreshLoop(session string) {
	for {
		wait := time.Until(c.expiry.Add(-5 * time.Minute))
		if wait < 0 {
			wait = 0
		}
		select {
		case <-c.closed:
			return
		case <-time.After(wait):
		}

		token, ttl, err := fetchToken(c.authURL, c.username, c.password, session)
		if err != nil {
			return
		}
		c.token = token
		c.expiry = time.Now().Add(time.Duration(ttl) * time.Second)
	}
}

func fetchToken(authURL, user, pass, session string) (token string, ttlSeconds int, err error) {
	body := map[string]string{"username": user, "password": pass}
	if session != "" {
		body["session_id"] = session
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", 0, fmt.Errorf("encoding token request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, bytes.NewReader(data))
	if err != nil {
		return "", 0, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var out struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decoding token response: %w", err)
	}
	return out.Token, out.ExpiresIn, nil
}

func addQueryParam(rawURL, key, value string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	q := parsed.Query()
	q.Set(key, value)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
