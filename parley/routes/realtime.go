package routes

import (
	"github.com/go-chi/chi/v5"

	"parley/parley/controllers"
	"parley/parley/middlewares"
	"parley/parley/utils/tokens"
)

func RealtimeRoutes(ctrl *controllers.RealtimeController, issuer *tokens.Issuer, revoked middlewares.RevocationChecker) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.OptionalAuthMiddleware(issuer, revoked))
	r.Get("/ws", ctrl.Serve)
	return r
}
