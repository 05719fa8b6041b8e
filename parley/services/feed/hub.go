package feed

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

const defaultBuffer = 64

// Hub fans published messages out to subscribers of the matching
// conversation. Publish never blocks: a subscriber whose buffer is full
// misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*hubSubscription]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*hubSubscription]struct{}), buffer: defaultBuffer}
}

// Subscribe ends the subscription when ctx is cancelled or Close is called.
func (h *Hub) Subscribe(ctx context.Context, conversationID string) (Subscription, error) {
	if conversationID == "" {
		return nil, errors.New("subscribe: conversation id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &hubSubscription{
		hub:            h,
		conversationID: conversationID,
		ch:             make(chan types.Message, h.buffer),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	s.stop = context.AfterFunc(ctx, s.release)
	return s, nil
}

func (h *Hub) Publish(msg types.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.conversationID != msg.ConversationID {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			logging.ErrorLogger.Warn("feed subscriber is full, dropping event",
				zap.String("conversation_id", msg.ConversationID),
				zap.String("message_id", msg.ID))
		}
	}
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type hubSubscription struct {
	hub            *Hub
	conversationID string
	ch             chan types.Message
	once           sync.Once
	stop           func() bool
}

func (s *hubSubscription) Events() <-chan types.Message {
	return s.ch
}

func (s *hubSubscription) Close() {
	s.stop()
	s.release()
}

func (s *hubSubscription) release() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}
