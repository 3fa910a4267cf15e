// Wire codec: parses the broker's text command grammar and serializes
// outbound JSON envelopes. The grammar is prefix-based — the first colon
// splits verb from body — except publish-json, whose body is a raw JSON
// object that may itself contain colons, and the legacy publish command,
// whose payload is "everything after the second colon" so a payload
// containing ':' is never truncated.
package broker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CommandKind enumerates the inbound text commands the codec recognizes.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdRegisterName
	CmdRegisterSession
	CmdSubscribe
	CmdUnsubscribe
	CmdPublishLegacy
	CmdPublishJSON
	CmdPing
)

// Command is a parsed inbound frame.
type Command struct {
	Kind CommandKind

	// RegisterName / RegisterSession
	Name    string
	Session string

	// Subscribe / Unsubscribe
	Topic          string
	ExplicitSID    string
	HasExplicitSID bool

	// PublishLegacy
	LegacyTopic   string
	LegacyPayload string

	// PublishJSON
	RawJSON string
}

// ParseCommand parses a single inbound text frame. Unknown or malformed
// frames return (Command{Kind: CmdUnknown}, false); the caller logs and
// drops them without affecting connection state (spec: Parse errors are
// non-fatal).
func ParseCommand(frame string) (Command, bool) {
	if frame == "ping" {
		return Command{Kind: CmdPing}, true
	}

	idx := strings.IndexByte(frame, ':')
	if idx < 0 {
		return Command{}, false
	}
	verb, body := frame[:idx], frame[idx+1:]

	switch verb {
	case "register-name":
		if body == "" {
			return Command{}, false
		}
		return Command{Kind: CmdRegisterName, Name: body}, true

	case "register-session":
		if body == "" {
			return Command{}, false
		}
		return Command{Kind: CmdRegisterSession, Session: body}, true

	case "subscribe":
		topic, sid, hasSID, ok := splitTopicSession(body)
		if !ok {
			return Command{}, false
		}
		return Command{Kind: CmdSubscribe, Topic: topic, ExplicitSID: sid, HasExplicitSID: hasSID}, true

	case "unsubscribe":
		topic, sid, hasSID, ok := splitTopicSession(body)
		if !ok {
			return Command{}, false
		}
		return Command{Kind: CmdUnsubscribe, Topic: topic, ExplicitSID: sid, HasExplicitSID: hasSID}, true

	case "publish":
		// Legacy form: publish:<topic>:<payload>. The payload is
		// everything after the second colon, so a payload containing
		// ':' is preserved verbatim.
		second := strings.IndexByte(body, ':')
		if second < 0 {
			return Command{}, false
		}
		topic, payload := body[:second], body[second+1:]
		if topic == "" {
			return Command{}, false
		}
		return Command{Kind: CmdPublishLegacy, LegacyTopic: topic, LegacyPayload: payload}, true

	case "publish-json":
		if body == "" {
			return Command{}, false
		}
		return Command{Kind: CmdPublishJSON, RawJSON: body}, true

	default:
		return Command{}, false
	}
}

// splitTopicSession handles the "<topic>" / "<topic>|<sid>" body shape
// shared by subscribe and unsubscribe.
func splitTopicSession(body string) (topic, sid string, hasSID, ok bool) {
	if body == "" {
		return "", "", false, false
	}
	if pipe := strings.IndexByte(body, '|'); pipe >= 0 {
		topic = body[:pipe]
		sid = body[pipe+1:]
		if topic == "" || sid == "" {
			return "", "", false, false
		}
		return topic, sid, true, true
	}
	return body, "", false, true
}

// Envelope is the JSON message exchanged on the wire for published
// messages (spec §3). Timestamp is not interpreted by the broker;
// SessionID is echoed but never used for routing.
type Envelope struct {
	PublisherName string `json:"publisher_name"`
	Topic         string `json:"topic"`
	Payload       string `json:"payload"`
	Timestamp     string `json:"timestamp"`
	SessionID     string `json:"session_id"`
}

// EncodeEnvelope serializes an Envelope to its wire form: a single JSON
// text frame.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

// DecodePublishJSON parses a publish-json command body into an Envelope.
// Only Topic and Payload are trusted from the client; PublisherName and
// SessionID are overwritten by the caller with authoritative values.
func DecodePublishJSON(raw string) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Envelope{}, fmt.Errorf("decoding publish-json body: %w", err)
	}
	if e.Topic == "" {
		return Envelope{}, fmt.Errorf("publish-json body missing topic")
	}
	return e, nil
}

const pongFrame = "pong"
