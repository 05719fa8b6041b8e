// Package chatstore is the client's conversation store over the gateway
// REST API.
package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"parley/parley/utils/errs"
	httputils "parley/parley/utils/http"
	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

type Client struct {
	baseURL    string
	token      func() string
	HTTPClient *http.Client
}

// New reads the session token through token on every request; token may be nil.
func New(baseURL string, token func() string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

func (c *Client) headers() httputils.Headers {
	if c.token == nil {
		return nil
	}
	return httputils.Bearer(c.token())
}

func (c *Client) CreateConversation(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errs.Required("user_id")
	}
	var resp types.CreateConversationResponse
	err := httputils.PostJSON(ctx, c.HTTPClient, c.baseURL+"/conversations", c.headers(),
		types.CreateConversationRequest{UserID: userID}, &resp)
	if err != nil {
		err = classify("create conversation", err)
		logging.ErrorLogger.Error("create conversation failed", zap.String("user_id", userID), zap.Error(err))
		return "", err
	}
	if resp.ID == "" {
		return "", errs.Store("create conversation", errors.New("gateway returned no id"))
	}
	return resp.ID, nil
}

// LoadMessages degrades every failure to an empty history.
func (c *Client) LoadMessages(ctx context.Context, conversationID string) []types.Message {
	var msgs []types.Message
	u := c.baseURL + "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := httputils.GetJSON(ctx, c.HTTPClient, u, c.headers(), &msgs); err != nil {
		logging.ErrorLogger.Warn("load messages failed",
			zap.String("conversation_id", conversationID), zap.Error(classify("load messages", err)))
		return []types.Message{}
	}
	if msgs == nil {
		msgs = []types.Message{}
	}
	return msgs
}

func (c *Client) SaveMessage(ctx context.Context, msg types.Message) (types.Message, error) {
	if err := msg.Validate(); err != nil {
		return types.Message{}, err
	}
	var stored types.Message
	if err := httputils.PostJSON(ctx, c.HTTPClient, c.baseURL+"/messages", c.headers(), msg, &stored); err != nil {
		err = classify("save message", err)
		logging.ErrorLogger.Error("save message failed",
			zap.String("conversation_id", msg.ConversationID), zap.Error(err))
		return types.Message{}, err
	}
	return stored, nil
}

// classify maps a gateway error body back onto the errs taxonomy. Transport
// failures count as store errors.
func classify(op string, err error) error {
	var se *httputils.StatusError
	if !errors.As(err, &se) {
		return errs.Store(op, err)
	}
	var body types.ErrorResponse
	if json.Unmarshal(se.Body, &body) == nil && body.Code != "" {
		return errs.FromCode(body.Code, body.Error)
	}
	switch se.StatusCode {
	case http.StatusBadRequest:
		return errs.FromCode("validation", string(se.Body))
	case http.StatusUnauthorized:
		return errs.FromCode("unauthorized", string(se.Body))
	case http.StatusForbidden:
		return errs.FromCode("forbidden", string(se.Body))
	case http.StatusNotFound:
		return errs.FromCode("not_found", string(se.Body))
	}
	return errs.Store(op, err)
}
