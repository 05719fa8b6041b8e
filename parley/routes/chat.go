package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"parley/parley/controllers"
	"parley/parley/middlewares"
	"parley/parley/utils/errs"
	"parley/parley/utils/tokens"
	"parley/parley/utils/types"
)

func ConversationRoutes(ctrl *controllers.ConversationController, issuer *tokens.Issuer, revoked middlewares.RevocationChecker) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.OptionalAuthMiddleware(issuer, revoked))

	// POST /conversations : start a conversation for user_id
	r.Post("/conversations", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.CreateConversationRequest
		if err := decode(r, &req); err != nil {
			return nil, 0, err
		}
		resp, err := ctrl.Create(r.Context(), middlewares.UserID(r.Context()), req)
		if err != nil {
			return nil, 0, err
		}
		return resp, http.StatusCreated, nil
	}))

	// GET /conversations/{id}/messages : full history, oldest first
	r.Get("/conversations/{id}/messages", handleJSON(func(r *http.Request) (any, int, error) {
		msgs, err := ctrl.Messages(r.Context(), middlewares.UserID(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			return nil, 0, err
		}
		return msgs, http.StatusOK, nil
	}))

	// POST /messages : append one message
	r.Post("/messages", handleJSON(func(r *http.Request) (any, int, error) {
		var msg types.Message
		if err := decode(r, &msg); err != nil {
			return nil, 0, err
		}
		stored, err := ctrl.PostMessage(r.Context(), middlewares.UserID(r.Context()), msg)
		if err != nil {
			return nil, 0, err
		}
		return stored, http.StatusCreated, nil
	}))
	return r
}

func invalidBody(err error) error {
	return errs.Invalid("body", err.Error())
}
