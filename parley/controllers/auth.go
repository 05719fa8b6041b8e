// parley/controllers/auth.go
package controllers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"parley/parley/config"
	"parley/parley/sources/psql/dao"
	"parley/parley/utils/errs"
	httputils "parley/parley/utils/http"
	"parley/parley/utils/logging"
	"parley/parley/utils/tokens"
	"parley/parley/utils/types"
)

type AuthController struct {
	userDAO     *dao.UserDAO
	revokedDAO  *dao.RevokedTokenDAO
	tokens      *tokens.Issuer
	oauth       *oauth2.Config
	userInfoURL string
	cfg         config.Config
}

func NewAuthController(userDAO *dao.UserDAO, revokedDAO *dao.RevokedTokenDAO, issuer *tokens.Issuer, cfg config.Config) *AuthController {
	return &AuthController{
		userDAO:    userDAO,
		revokedDAO: revokedDAO,
		tokens:     issuer,
		oauth: &oauth2.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.OAuthAuthURL,
				TokenURL: cfg.OAuthTokenURL,
			},
			RedirectURL: cfg.PublicURL + "/auth/callback",
			Scopes:      []string{"openid", "email", "profile"},
		},
		userInfoURL: cfg.OAuthUserInfoURL,
		cfg:         cfg,
	}
}

// LoginURL is the provider consent page for a client that wants the session
// token delivered to redirectTo.
func (c *AuthController) LoginURL(redirectTo string) (string, error) {
	if c.oauth.ClientID == "" {
		return "", errs.Auth("login", errors.New("OAuth sign-in is not configured"))
	}
	if err := c.checkRedirect(redirectTo); err != nil {
		return "", err
	}
	state, err := c.tokens.IssueState(redirectTo)
	if err != nil {
		return "", err
	}
	return c.oauth.AuthCodeURL(state), nil
}

// checkRedirect accepts loopback targets and targets under an allow-listed
// URL: same scheme and host, path at or below the listed path.
func (c *AuthController) checkRedirect(redirectTo string) error {
	if redirectTo == "" {
		return errs.Required("redirect_to")
	}
	u, err := url.Parse(redirectTo)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.Invalid("redirect_to", "must be an absolute http(s) URL")
	}
	if ip := net.ParseIP(u.Hostname()); u.Hostname() == "localhost" || (ip != nil && ip.IsLoopback()) {
		return nil
	}
	for _, allowed := range c.cfg.AllowedRedirects {
		if redirectAllowed(u, allowed) {
			return nil
		}
	}
	return errs.Invalid("redirect_to", "target is not allowed")
}

func redirectAllowed(target *url.URL, allowed string) bool {
	a, err := url.Parse(allowed)
	if err != nil || a.Host == "" {
		return false
	}
	if !strings.EqualFold(target.Scheme, a.Scheme) || !strings.EqualFold(target.Host, a.Host) {
		return false
	}
	base := strings.TrimSuffix(a.Path, "/")
	return base == "" || target.Path == base || strings.HasPrefix(target.Path, base+"/")
}

type userInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Callback completes the OAuth exchange and returns where to send the
// browser, with the new session token attached.
func (c *AuthController) Callback(ctx context.Context, code, state string) (string, error) {
	defer logging.LogDuration(ctx, "auth_callback")()

	redirectTo, err := c.tokens.ParseState(state)
	if err != nil {
		return "", errs.Auth("callback", err)
	}
	if code == "" {
		return "", errs.Required("code")
	}
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", errs.Auth("exchange code", err)
	}

	var info userInfo
	err = httputils.GetJSON(ctx, c.oauth.Client(ctx, tok), c.userInfoURL, nil, &info)
	if err != nil {
		return "", errs.Auth("fetch userinfo", err)
	}
	if info.Email == "" {
		return "", errs.Auth("fetch userinfo", errors.New("provider returned no email"))
	}

	var name, picture *string
	if info.Name != "" {
		name = &info.Name
	}
	if info.Picture != "" {
		picture = &info.Picture
	}
	user, err := c.userDAO.UpsertUserByEmail(ctx, info.Email, name, picture)
	if err != nil {
		return "", errs.Store("upsert user", err)
	}
	session, err := c.tokens.Issue(user.ID, user.Email, info.Name)
	if err != nil {
		return "", err
	}
	logging.AppLogger.Info("user signed in", zap.String("user_id", user.ID))

	u, err := url.Parse(redirectTo)
	if err != nil {
		return "", fmt.Errorf("parse redirect: %w", err)
	}
	q := u.Query()
	q.Set("token", session)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DevLogin issues a token for any email without a provider round trip.
func (c *AuthController) DevLogin(ctx context.Context, req types.DevLoginRequest) (string, error) {
	if !c.cfg.DevLogin {
		return "", errs.ErrForbidden
	}
	if strings.TrimSpace(req.Email) == "" {
		return "", errs.Required("email")
	}
	var name *string
	if req.Name != "" {
		name = &req.Name
	}
	user, err := c.userDAO.UpsertUserByEmail(ctx, req.Email, name, nil)
	if err != nil {
		return "", errs.Store("upsert user", err)
	}
	return c.tokens.Issue(user.ID, user.Email, req.Name)
}

func (c *AuthController) Me(ctx context.Context, userID string) (types.Identity, error) {
	user, err := c.userDAO.GetUserByID(ctx, userID)
	if err != nil {
		return types.Identity{}, errs.Store("load user", err)
	}
	if user == nil {
		return types.Identity{}, errs.Auth("me", errors.New("user no longer exists"))
	}
	return user.Identity(), nil
}

// Logout revokes the presented token until it would have expired.
func (c *AuthController) Logout(ctx context.Context, claims *tokens.Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return errs.Auth("logout", errors.New("no session"))
	}
	if err := c.revokedDAO.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return errs.Store("revoke token", err)
	}
	logging.AppLogger.Info("user signed out", zap.String("user_id", claims.Subject))
	return nil
}
