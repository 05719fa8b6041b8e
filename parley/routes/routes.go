// parley/routes/routes.go
package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"parley/parley/controllers"
	"parley/parley/middlewares"
	httputils "parley/parley/utils/http"
	"parley/parley/utils/tokens"
)

type Deps struct {
	Auth         *controllers.AuthController
	Conversation *controllers.ConversationController
	Realtime     *controllers.RealtimeController
	Health       *controllers.HealthController
	Tokens       *tokens.Issuer
	Revoked      middlewares.RevocationChecker
}

// NewRouter assembles the gateway. The realtime route is mounted outside the
// request timeout since its connections are long-lived.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Mount("/realtime", RealtimeRoutes(d.Realtime, d.Tokens, d.Revoked))
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.Timeout(60 * time.Second))
		gr.Mount("/health", HealthRoutes(d.Health))
		gr.Mount("/auth", AuthRoutes(d.Auth, d.Tokens, d.Revoked))
		gr.Mount("/", ConversationRoutes(d.Conversation, d.Tokens, d.Revoked))
	})
	return r
}

// generic wrapper to reduce boilerplate
func handleJSON(handler func(r *http.Request) (any, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, status, err := handler(r)
		if err != nil {
			httputils.WriteError(w, err)
			return
		}
		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return
		}
		httputils.WriteJSON(w, status, res)
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalidBody(err)
	}
	return nil
}
