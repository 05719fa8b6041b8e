package routes

import (
	"github.com/go-chi/chi/v5"

	"parley/parley/config"
	"parley/parley/controllers"
	"parley/parley/services/chat"
	"parley/parley/services/feed"
	"parley/parley/sources/psql"
	"parley/parley/sources/psql/dao"
	"parley/parley/utils/tokens"
)

// Gateway wires the DAOs, chat service and controllers over db. Inserts
// reach hub directly unless db announces them itself (postgres NOTIFY), in
// which case the caller runs a psql.Listener into hub.
func Gateway(cfg config.Config, db *psql.Database, hub *feed.Hub) (chi.Router, error) {
	issuer, err := tokens.NewIssuer(cfg.JWTSecret, 0)
	if err != nil {
		return nil, err
	}

	var publisher feed.Publisher = hub
	if db.Notifies {
		publisher = feed.Nop{}
	}
	svc := chat.NewService(db.DB, chat.Options{
		Publisher:   publisher,
		GuestUserID: cfg.GuestUserID,
		AllowGuests: cfg.AllowGuests,
	})

	userDAO := dao.NewUserDAO(db.DB)
	revokedDAO := dao.NewRevokedTokenDAO(db.DB)

	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, err
	}

	return NewRouter(Deps{
		Auth:         controllers.NewAuthController(userDAO, revokedDAO, issuer, cfg),
		Conversation: controllers.NewConversationController(svc),
		Realtime:     controllers.NewRealtimeController(svc, hub),
		Health:       controllers.NewHealthController(sqlDB),
		Tokens:       issuer,
		Revoked:      revokedDAO,
	}), nil
}
