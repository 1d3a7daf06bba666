package api

import (
	"log/slog"
	"net/http"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/middleware"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 64 << 10

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Engine *authgate.Engine
	Logger *slog.Logger
	// ClientIP resolves the caller's address for rate limits and credential
	// throttling. Defaults to middleware.ClientIP; use middleware.ForwardedIP
	// behind a proxy.
	ClientIP middleware.IPFunc
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
}

// NewMux builds the mux.
func NewMux(cfg MuxConfig) *http.ServeMux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clientIP := cfg.ClientIP
	if clientIP == nil {
		clientIP = middleware.ClientIP
	}
	byIP := func(r *http.Request, policy authgate.Policy) (authgate.Policy, string) {
		return policy, clientIP(r)
	}

	h := &handlers{engine: cfg.Engine, logger: logger}
	limited := middleware.Limit(cfg.Engine, authgate.PolicyIP, byIP, middleware.WithIPFunc(clientIP))
	guarded := middleware.Guard(cfg.Engine, authgate.PolicyIP, middleware.KeyByAPIKeyOr(byIP), middleware.WithIPFunc(clientIP))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("POST /auth/register", limited(http.HandlerFunc(h.register)))
	mux.Handle("POST /auth/login", limited(http.HandlerFunc(h.login)))
	mux.Handle("POST /auth/refresh", limited(http.HandlerFunc(h.refresh)))
	mux.Handle("POST /auth/logout", limited(http.HandlerFunc(h.logout)))
	mux.Handle("GET /auth/me", guarded(http.HandlerFunc(h.me)))
	mux.Handle("POST /auth/api-key", guarded(http.HandlerFunc(h.rotateAPIKey)))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
