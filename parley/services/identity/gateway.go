package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"parley/parley/sources/local"
	httputils "parley/parley/utils/http"
	"parley/parley/utils/logging"
	"parley/parley/utils/types"
)

const defaultSignInTimeout = 5 * time.Minute

// Gateway signs in through the gateway's OAuth redirect. The browser is sent
// back to a loopback listener which receives the session token.
type Gateway struct {
	baseURL string
	storage local.Storage

	// OpenURL shows the sign-in URL to the user. It must not block.
	OpenURL    func(string)
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewGateway(baseURL string, storage local.Storage) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		storage: storage,
		OpenURL: func(string) {},
		Timeout: defaultSignInTimeout,
	}
}

// Token is the stored session token, or "" when signed out.
func (g *Gateway) Token() string {
	tok, err := g.storage.Get(local.KeySessionToken)
	if err != nil {
		logging.ErrorLogger.Warn("read session token failed", zap.Error(err))
		return ""
	}
	return tok
}

func (g *Gateway) SignIn(ctx context.Context) {
	if err := g.signIn(ctx); err != nil {
		logging.ErrorLogger.Error("sign-in failed", zap.Error(err))
	}
}

func (g *Gateway) signIn(ctx context.Context) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("open callback listener: %w", err)
	}

	tokens := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("token")
		if tok == "" {
			http.Error(w, "Sign-in failed: no token received.", http.StatusBadRequest)
			return
		}
		select {
		case tokens <- tok:
		default:
		}
		fmt.Fprintln(w, "Signed in. You can close this window.")
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	redirect := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	g.OpenURL(g.baseURL + "/auth/login?redirect_to=" + url.QueryEscape(redirect))

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = defaultSignInTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case tok := <-tokens:
		if err := g.storage.Set(local.KeySessionToken, tok); err != nil {
			return fmt.Errorf("store session token: %w", err)
		}
		logging.AppLogger.Info("signed in")
		return nil
	case <-timer.C:
		return errors.New("timed out waiting for the browser")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SignOut revokes the token at the gateway and forgets it locally even if
// the gateway call fails.
func (g *Gateway) SignOut(ctx context.Context) {
	tok := g.Token()
	if tok == "" {
		return
	}
	err := httputils.DoJSON(ctx, g.HTTPClient, http.MethodPost, g.baseURL+"/auth/logout", httputils.Bearer(tok), nil, nil)
	if err != nil {
		logging.ErrorLogger.Warn("gateway sign-out failed", zap.Error(err))
	}
	if err := g.storage.Delete(local.KeySessionToken); err != nil {
		logging.ErrorLogger.Error("drop session token failed", zap.Error(err))
	}
}

func (g *Gateway) CurrentUser(ctx context.Context) *types.Identity {
	tok := g.Token()
	if tok == "" {
		return nil
	}
	var id types.Identity
	err := httputils.GetJSON(ctx, g.HTTPClient, g.baseURL+"/auth/me", httputils.Bearer(tok), &id)
	if err != nil {
		var se *httputils.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			// expired or revoked; keep the next call from retrying it
			_ = g.storage.Delete(local.KeySessionToken)
		}
		logging.ErrorLogger.Warn("current user lookup failed", zap.Error(err))
		return nil
	}
	if id.ID == "" {
		return nil
	}
	return &id
}
