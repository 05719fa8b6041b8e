// Package identity resolves who the client user is. Failures never surface
// as errors: they are logged and the user is treated as a guest.
package identity

import (
	"context"

	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

type Provider interface {
	// SignIn starts the provider's sign-in flow. Completion is observed
	// through CurrentUser, not through a return value.
	SignIn(ctx context.Context)
	SignOut(ctx context.Context)
	// CurrentUser returns nil for guests and on any error.
	CurrentUser(ctx context.Context) *types.Identity
}

// Guest never has an identity.
type Guest struct{}

func (Guest) SignIn(ctx context.Context) {
	logging.AppLogger.Info("sign-in is not available for guest sessions")
}

func (Guest) SignOut(ctx context.Context) {
	logging.AppLogger.Info("sign-out is not available for guest sessions")
}

func (Guest) CurrentUser(ctx context.Context) *types.Identity {
	return nil
}
