// Package feed carries inserted messages from the store to subscribers, either
// in process (Hub) or over the gateway websocket (Remote).
package feed

import (
	"context"

	"parley/parley/utils/types"
)

// Subscription delivers messages of one conversation until Close. Events is
// closed once the subscription ends, whatever the reason.
type Subscription interface {
	Events() <-chan types.Message
	Close()
}

type Feed interface {
	Subscribe(ctx context.Context, conversationID string) (Subscription, error)
}

type Publisher interface {
	Publish(msg types.Message)
}

// Nop discards everything; used when the database announces inserts itself.
type Nop struct{}

func (Nop) Publish(types.Message) {}
