package session

import (
	"go.uber.org/zap"

	"parley/parley/services/feed"
	"parley/parley/utils/logging"
)

// subscribe points live sync at conversationID, replacing any subscription
// for another conversation. Must be called with lifecycle held.
func (s *Session) subscribe(conversationID string) {
	if s.feed == nil {
		return
	}
	s.mu.Lock()
	current := s.sub != nil && s.subID == conversationID
	s.mu.Unlock()
	if current {
		return
	}
	s.unsubscribe()

	sub, err := s.feed.Subscribe(s.ctx, conversationID)
	if err != nil {
		logging.ErrorLogger.Warn("live sync unavailable",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	done := make(chan struct{})
	s.mu.Lock()
	s.sub, s.subID, s.subDone = sub, conversationID, done
	s.mu.Unlock()
	go s.consume(sub, conversationID, done)
	logger().Info("live sync subscribed", zap.String("conversation_id", conversationID))
}

// unsubscribe closes the current subscription and waits for its goroutine.
func (s *Session) unsubscribe() {
	s.mu.Lock()
	sub, done := s.sub, s.subDone
	s.sub, s.subID, s.subDone = nil, "", nil
	s.mu.Unlock()
	if sub == nil {
		return
	}
	sub.Close()
	<-done
}

// consume applies events until the subscription ends. A feed that ends on
// its own (dropped connection) is forgotten, so the next Bootstrap or
// RefreshIdentity subscribes again.
func (s *Session) consume(sub feed.Subscription, conversationID string, done chan struct{}) {
	defer close(done)
	for msg := range sub.Events() {
		s.appendIfAbsent(conversationID, msg)
	}

	s.mu.Lock()
	orphaned := s.subDone == done
	if orphaned {
		s.sub, s.subID, s.subDone = nil, "", nil
	}
	s.mu.Unlock()
	if orphaned {
		logger().Warn("live sync ended", zap.String("conversation_id", conversationID))
		sub.Close()
	}
}
