package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Variant selects whether sending requires a signed-in identity.
type Variant string

const (
	VariantAnonymous     Variant = "anonymous"
	VariantAuthenticated Variant = "authenticated"
)

type Config struct {
	// Database
	DBDriver   string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	SQLitePath string

	// Gateway
	Addr             string
	PublicURL        string
	JWTSecret        string
	AllowGuests      bool
	DevLogin         bool
	AllowedRedirects []string

	// OAuth identity provider
	OAuthClientID     string
	OAuthClientSecret string
	OAuthAuthURL      string
	OAuthTokenURL     string
	OAuthUserInfoURL  string

	// Client
	GatewayURL  string
	Variant     Variant
	GuestUserID string
	StateDir    string
	LogDir      string

	// Responder
	LLMProvider  string
	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string
	SystemPrompt string
}

func LoadConfig() Config {
	// .env is optional; values already in the environment win
	_ = godotenv.Load()

	return Config{
		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     getEnv("DB_NAME", "parley"),
		SQLitePath: getEnv("SQLITE_PATH", "parley.db"),

		Addr:             getEnv("PARLEY_ADDR", ":8000"),
		PublicURL:        strings.TrimRight(getEnv("PARLEY_PUBLIC_URL", "http://localhost:8000"), "/"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		AllowGuests:      getBool("PARLEY_ALLOW_GUESTS", true),
		DevLogin:         getBool("PARLEY_DEV_LOGIN", false),
		AllowedRedirects: getList("PARLEY_ALLOWED_REDIRECTS"),

		OAuthClientID:     getEnv("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: getEnv("OAUTH_CLIENT_SECRET", ""),
		OAuthAuthURL:      getEnv("OAUTH_AUTH_URL", "https://accounts.google.com/o/oauth2/auth"),
		OAuthTokenURL:     getEnv("OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		OAuthUserInfoURL:  getEnv("OAUTH_USERINFO_URL", "https://www.googleapis.com/oauth2/v3/userinfo"),

		GatewayURL:  strings.TrimRight(getEnv("PARLEY_GATEWAY_URL", "http://localhost:8000"), "/"),
		Variant:     Variant(getEnv("PARLEY_VARIANT", string(VariantAnonymous))),
		GuestUserID: getEnv("PARLEY_GUEST_USER_ID", "guest"),
		StateDir:    getEnv("PARLEY_STATE_DIR", defaultStateDir()),
		LogDir:      getEnv("PARLEY_LOG_DIR", "./logs"),

		LLMProvider:  getEnv("PARLEY_LLM_PROVIDER", "ollama"),
		LLMBaseURL:   getEnv("PARLEY_LLM_BASE_URL", ""),
		LLMAPIKey:    getEnv("PARLEY_LLM_API_KEY", ""),
		LLMModel:     getEnv("PARLEY_LLM_MODEL", ""),
		SystemPrompt: getEnv("PARLEY_SYSTEM_PROMPT", "You are a helpful assistant. Answer concisely."),
	}
}

// Authenticated reports whether sending requires a resolved identity.
func (c Config) Authenticated() bool {
	return c.Variant == VariantAuthenticated
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".parley"
	}
	return filepath.Join(home, ".parley")
}
