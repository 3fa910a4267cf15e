package broker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandPing(t *testing.T) {
	cmd, ok := ParseCommand("ping")
	require.True(t, ok)
	assert.Equal(t, CmdPing, cmd.Kind)
}

func TestParseCommandRegisterName(t *testing.T) {
	cmd, ok := ParseCommand("register-name:alice")
	require.True(t, ok)
	assert.Equal(t, CmdRegisterName, cmd.Kind)
	assert.Equal(t, "alice", cmd.Name)
}

func TestParseCommandRegisterNameRejectsEmptyBody(t *testing.T) {
	_, ok := ParseCommand("register-name:")
	assert.False(t, ok)
}

func TestParseCommandSubscribeImplicitSession(t *testing.T) {
	cmd, ok := ParseCommand("subscribe:room")
	require.True(t, ok)
	assert.Equal(t, CmdSubscribe, cmd.Kind)
	assert.Equal(t, "room", cmd.Topic)
	assert.False(t, cmd.HasExplicitSID)
}

func TestParseCommandSubscribeExplicitSession(t *testing.T) {
	cmd, ok := ParseCommand("subscribe:room|s-42")
	require.True(t, ok)
	assert.Equal(t, "room", cmd.Topic)
	assert.True(t, cmd.HasExplicitSID)
	assert.Equal(t, "s-42", cmd.ExplicitSID)
}

func TestParseCommandUnsubscribeMirrorsSubscribe(t *testing.T) {
	cmd, ok := ParseCommand("unsubscribe:room|s-42")
	require.True(t, ok)
	assert.Equal(t, CmdUnsubscribe, cmd.Kind)
	assert.Equal(t, "room", cmd.Topic)
	assert.Equal(t, "s-42", cmd.ExplicitSID)
}

func TestParseCommandLegacyPublishPayloadIsEverythingAfterSecondColon(t *testing.T) {
	cmd, ok := ParseCommand("publish:room:hello:world:12:34")
	require.True(t, ok)
	assert.Equal(t, CmdPublishLegacy, cmd.Kind)
	assert.Equal(t, "room", cmd.LegacyTopic)
	assert.Equal(t, "hello:world:12:34", cmd.LegacyPayload)
}

func TestParseCommandLegacyPublishEmptyPayload(t *testing.T) {
	cmd, ok := ParseCommand("publish:room:")
	require.True(t, ok)
	assert.Equal(t, "room", cmd.LegacyTopic)
	assert.Equal(t, "", cmd.LegacyPayload)
}

func TestParseCommandLegacyPublishRequiresSecondColon(t *testing.T) {
	_, ok := ParseCommand("publish:room")
	assert.False(t, ok)
}

func TestParseCommandPublishJSON(t *testing.T) {
	cmd, ok := ParseCommand(`publish-json:{"topic":"room","payload":"hi"}`)
	require.True(t, ok)
	assert.Equal(t, CmdPublishJSON, cmd.Kind)
	assert.Equal(t, `{"topic":"room","payload":"hi"}`, cmd.RawJSON)
}

func TestParseCommandUnknownVerb(t *testing.T) {
	_, ok := ParseCommand("frobnicate:whatever")
	assert.False(t, ok)
}

func TestParseCommandNoDelimiter(t *testing.T) {
	_, ok := ParseCommand("garbage")
	assert.False(t, ok)
}

func TestDecodePublishJSONRequiresTopic(t *testing.T) {
	_, err := DecodePublishJSON(`{"payload":"hi"}`)
	assert.Error(t, err)
}

func TestDecodePublishJSONRejectsInvalidJSON(t *testing.T) {
	_, err := DecodePublishJSON(`not json`)
	assert.Error(t, err)
}

func TestEncodeEnvelopeRoundTrips(t *testing.T) {
	e := Envelope{PublisherName: "alice", Topic: "room", Payload: "hi", Timestamp: "2026-07-30T00:00:00Z", SessionID: "s1"}
	data, err := EncodeEnvelope(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"topic":"room"`)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, e, decoded)
}
