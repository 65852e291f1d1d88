// Package pubsub fans session events out to observers. The local broker
// serves in-process hooks; the NATS broker carries the same events across
// process boundaries using their JSON wire form.
package pubsub

import (
	"context"

	"github.com/aiflow-go/aiflow/events"
)

type Broker interface {
	Topic(context.Context, string) Topic
}

type Topic interface {
	Publish(context.Context, events.Event) error
	Subscribe(context.Context, events.Hook) (Subscription, error)
}

type Subscription interface {
	ID() string
	Unsubscribe()
}
