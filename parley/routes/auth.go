// parley/routes/auth.go
package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"parley/parley/controllers"
	"parley/parley/middlewares"
	httputils "parley/parley/utils/http"
	"parley/parley/utils/tokens"
	"parley/parley/utils/types"
)

func AuthRoutes(ctrl *controllers.AuthController, issuer *tokens.Issuer, revoked middlewares.RevocationChecker) chi.Router {
	r := chi.NewRouter()

	r.Get("/login", func(w http.ResponseWriter, r *http.Request) {
		target, err := ctrl.LoginURL(r.URL.Query().Get("redirect_to"))
		if err != nil {
			httputils.WriteError(w, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	})

	r.Get("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "sign-in was cancelled: "+e, http.StatusUnauthorized)
			return
		}
		target, err := ctrl.Callback(r.Context(), q.Get("code"), q.Get("state"))
		if err != nil {
			httputils.WriteError(w, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	})

	r.Post("/token", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.DevLoginRequest
		if err := decode(r, &req); err != nil {
			return nil, 0, err
		}
		token, err := ctrl.DevLogin(r.Context(), req)
		if err != nil {
			return nil, 0, err
		}
		return types.TokenResponse{Token: token}, http.StatusOK, nil
	}))

	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(issuer, revoked))

		gr.Get("/me", handleJSON(func(r *http.Request) (any, int, error) {
			id, err := ctrl.Me(r.Context(), middlewares.UserID(r.Context()))
			if err != nil {
				return nil, 0, err
			}
			return id, http.StatusOK, nil
		}))

		gr.Post("/logout", handleJSON(func(r *http.Request) (any, int, error) {
			if err := ctrl.Logout(r.Context(), middlewares.Claims(r.Context())); err != nil {
				return nil, 0, err
			}
			return nil, http.StatusNoContent, nil
		}))
	})
	return r
}
