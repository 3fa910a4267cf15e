package broker

import (
	"context"

	"github.com/sessionbroker/broker/internal/logger"
	"github.com/sessionbroker/broker/internal/registry"
)

// Publisher is the minimal surface Publish needs from whoever is
// publishing: an identity for the self-delivery check and its currently
// resolved session. *Connection satisfies this.
type Publisher interface {
	registry.Subscriber
	Session() string
}

// mailboxEnqueuer is the minimal surface Publish needs from each
// subscriber snapshot entry. *Connection satisfies this.
type mailboxEnqueuer interface {
	registry.Subscriber
	Enqueue(frame []byte) bool
}

// Dispatcher resolves a publish's subscriber set under the registry's read
// discipline and enqueues the serialized frame onto each subscriber's
// mailbox. It holds no state of its own beyond the registry reference —
// all durable state lives in the registry and in each Connection.
type Dispatcher struct {
	registry *registry.Registry
}

// NewDispatcher builds a Dispatcher over reg.
func NewDispatcher(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Publish routes env, published by c under session c.Session(), to every
// current subscriber of (env.Topic, session). Per spec §4.5:
//  1. Snapshot the subscriber set under the registry's read lock.
//  2. The publisher receives its own message iff it is itself subscribed
//     to (topic, session) — self-delivery is opt-in via subscription, not
//     automatic.
//  3. Serialize once, enqueue the same bytes on every subscriber's
//     mailbox. A full mailbox drops that one subscriber (slow-consumer
//     policy); others are unaffected.
func (d *Dispatcher) Publish(ctx context.Context, c Publisher, env Envelope) {
	session := c.Session()
	subscribers := d.registry.Subscribers(env.Topic, session)
	if len(subscribers) == 0 {
		return
	}

	frame, err := EncodeEnvelope(env)
	if err != nil {
		logger.WebSocket().Error().Err(err).Msg("failed to encode envelope; dropping publish")
		return
	}

	for _, sub := range subscribers {
		target, ok := sub.(mailboxEnqueuer)
		if !ok {
			continue
		}
		// Self-delivery falls out naturally: the publisher receives env
		// exactly when it is itself among the snapshot's subscribers.
		if !target.Enqueue(frame) {
			logger.WebSocket().Debug().
				Uint64("conn_id", target.ID()).
				Str("topic", env.Topic).
				Msg("dropping slow consumer")
		}
	}
}
