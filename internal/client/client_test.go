package client_test

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbroker/broker/internal/auth"
	"github.com/sessionbroker/broker/internal/broker"
	"github.com/sessionbroker/broker/internal/client"
	"github.com/sessionbroker/broker/internal/config"
	"github.com/sessionbroker/broker/internal/envelope"
	"github.com/sessionbroker/broker/internal/registry"
)

func newTestBroker(t *testing.T) *httptest.Server {
	t.Helper()

	hash, err := auth.HashPassword("password")
	require.NoError(t, err)
	creds := auth.NewStaticCredentialCheck(hash)
	tokens := auth.NewTokenService(auth.Config{SecretKey: "test-secret", TokenDuration: time.Hour}, creds, nil)

	keys, err := envelope.GenerateKeyPair()
	require.NoError(t, err)

	reg := registry.New()
	disp := broker.NewDispatcher(reg)

	srv := broker.NewServer(config.Config{MailboxCapacity: 256}, tokens, reg, disp, nil, keys)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return httpSrv
}

func toWS(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestClientPublishSubscribeRoundTrip(t *testing.T) {
	httpSrv := newTestBroker(t)
	wsURL := toWS(httpSrv.URL) + "/ws"

	publisher, err := client.ConnectWithSession("pub", "room-1", wsURL)
	require.NoError(t, err)
	defer publisher.Close()

	subscriber, err := client.ConnectWithSession("sub", "room-1", wsURL)
	require.NoError(t, err)
	defer subscriber.Close()

	var mu sync.Mutex
	var received client.Envelope
	done := make(chan struct{})
	subscriber.OnMessage("greetings", func(e client.Envelope) {
		mu.Lock()
		received = e
		mu.Unlock()
		close(done)
	})
	require.NoError(t, subscriber.Subscribe("greetings"))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, publisher.Publish("greetings", "hello", ""))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", received.Payload)
	assert.Equal(t, "greetings", received.Topic)
}

func TestClientEnableEncryptionRoundTrip(t *testing.T) {
	httpSrv := newTestBroker(t)
	wsURL := toWS(httpSrv.URL) + "/ws"

	publisher, err := client.ConnectWithSession("pub", "secure-room", wsURL)
	require.NoError(t, err)
	defer publisher.Close()

	subscriber, err := client.ConnectWithSession("sub", "secure-room", wsURL)
	require.NoError(t, err)
	defer subscriber.Close()

	publisherKey, err := publisher.GenerateEncryptionKeys()
	require.NoError(t, err)
	subscriberKey, err := subscriber.GenerateEncryptionKeys()
	require.NoError(t, err)
	require.NoError(t, publisher.SetPeerPublicKey(subscriberKey))
	require.NoError(t, subscriber.SetPeerPublicKey(publisherKey))

	var mu sync.Mutex
	var received client.Envelope
	done := make(chan struct{})
	subscriber.OnMessage("secrets", func(e client.Envelope) {
		mu.Lock()
		received = e
		mu.Unlock()
		close(done)
	})
	require.NoError(t, subscriber.Subscribe("secrets"))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, publisher.Publish("secrets", "classified payload", ""))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "classified payload", received.Payload)
}

func TestClientConnectWithAuthMintsSession(t *testing.T) {
	httpSrv := newTestBroker(t)
	wsURL := toWS(httpSrv.URL) + "/ws"
	authURL := httpSrv.URL + "/auth/token"

	authed, err := client.ConnectWithAuth("alice-client", wsURL, authURL, "alice", "password", "s-99")
	require.NoError(t, err)
	defer authed.Close()

	peer, err := client.ConnectWithSession("peer", "s-99", wsURL)
	require.NoError(t, err)
	defer peer.Close()

	done := make(chan client.Envelope, 1)
	peer.OnMessage("chat", func(e client.Envelope) { done <- e })
	require.NoError(t, peer.Subscribe("chat"))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, authed.Publish("chat", "hi from authed", ""))

	select {
	case env := <-done:
		assert.Equal(t, "hi from authed", env.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}
