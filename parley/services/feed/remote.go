package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

// Remote subscribes to the gateway's realtime websocket.
type Remote struct {
	baseURL    string
	token      func() string
	HTTPClient *http.Client
}

// NewRemote reads the session token through token at every Subscribe so a
// sign-in between subscriptions is picked up.
func NewRemote(baseURL string, token func() string) *Remote {
	return &Remote{baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

func (r *Remote) Subscribe(ctx context.Context, conversationID string) (Subscription, error) {
	if conversationID == "" {
		return nil, errors.New("subscribe: conversation id is required")
	}
	u, err := url.Parse(r.baseURL + "/realtime/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("conversation_id", conversationID)
	u.RawQuery = q.Encode()

	opts := &websocket.DialOptions{HTTPClient: r.HTTPClient}
	if r.token != nil {
		if tok := r.token(); tok != "" {
			opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + tok}}
		}
	}
	conn, _, err := websocket.Dial(ctx, u.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("dial realtime feed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &remoteSubscription{
		conn:           conn,
		conversationID: conversationID,
		ch:             make(chan types.Message, defaultBuffer),
		done:           make(chan struct{}),
		cancel:         cancel,
	}
	go s.run(runCtx)
	return s, nil
}

type remoteSubscription struct {
	conn           *websocket.Conn
	conversationID string
	ch             chan types.Message
	done           chan struct{}
	cancel         context.CancelFunc
	once           sync.Once
}

func (s *remoteSubscription) Events() <-chan types.Message {
	return s.ch
}

func (s *remoteSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.conn.Close(websocket.StatusNormalClosure, "")
	})
}

func (s *remoteSubscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)
	for {
		var ev types.Event
		if err := wsjson.Read(ctx, s.conn, &ev); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logging.ErrorLogger.Warn("realtime feed closed",
					zap.String("conversation_id", s.conversationID), zap.Error(err))
			}
			return
		}
		if ev.Type != types.EventInsert || ev.Table != types.TableMessages {
			continue
		}
		// the gateway filters too; this guards against a stale server-side filter
		if ev.Record.ConversationID != s.conversationID {
			continue
		}
		select {
		case s.ch <- ev.Record:
		case <-ctx.Done():
			return
		}
	}
}
