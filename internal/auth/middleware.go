package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/inkpress/inkpress/internal/platform/httpx"
)

// Gate error codes, kept machine-readable for the client.
const (
	CodeAuthenticationRequired = "authentication_required"
	CodeInvalidAuthHeader      = "invalid_auth_header"
	CodeInvalidToken           = "invalid_token"
)

// DefaultPublicPrefixes lists the request paths the gate lets through with no
// identity attached: health, metrics, the unauthenticated auth endpoints, and
// static/media assets served by the edge.
var DefaultPublicPrefixes = []string{
	"/healthz",
	"/metrics",
	"/api/v1/auth/register",
	"/api/v1/auth/login",
	"/api/v1/auth/verify-email",
	"/api/v1/auth/forgot-password",
	"/api/v1/auth/reset-password",
	"/api/v1/auth/resend-verification",
	"/static/",
	"/media/",
}

// GateConfig carries the gate's collaborators.
type GateConfig struct {
	Codec  *TokenCodec
	Repo   Repository
	Logger *slog.Logger
	// PublicPrefixes overrides DefaultPublicPrefixes when non-nil.
	PublicPrefixes []string
}

// Gate returns the centralized per-request authentication middleware. Every
// non-public request must carry a currently valid bearer token for a
// currently active identity; the resolved user is attached to the request
// context. The gate holds no locks and caches nothing across requests.
func Gate(cfg GateConfig) func(http.Handler) http.Handler {
	public := cfg.PublicPrefixes
	if public == nil {
		public = DefaultPublicPrefixes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range public {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				httpx.Error(w, http.StatusUnauthorized, CodeAuthenticationRequired,
					"Authentication credentials were not provided.")
				return
			}

			parts := strings.Fields(header)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httpx.Error(w, http.StatusUnauthorized, CodeInvalidAuthHeader,
					"Invalid authentication header format.")
				return
			}

			claims, err := cfg.Codec.Validate(parts[1])
			if err != nil {
				// Expired and malformed are told apart only here, in the log.
				if errors.Is(err, ErrTokenExpired) {
					logger.Debug("rejected expired token", slog.String("path", r.URL.Path))
				} else {
					logger.Debug("rejected malformed token", slog.String("path", r.URL.Path))
				}
				httpx.Error(w, http.StatusUnauthorized, CodeInvalidToken,
					"Invalid or expired token.")
				return
			}

			userID, err := claims.UserID()
			if err != nil {
				httpx.Error(w, http.StatusUnauthorized, CodeInvalidToken,
					"Invalid or expired token.")
				return
			}

			// Re-resolving the identity on every request means deactivating a
			// user invalidates all outstanding tokens without a blacklist.
			user, err := cfg.Repo.FindByID(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, ErrNotFound) {
					logger.Error("gate identity lookup failed", slog.Any("error", err))
					httpx.Internal(w)
					return
				}
				httpx.Error(w, http.StatusUnauthorized, CodeInvalidToken,
					"Invalid or expired token.")
				return
			}
			if !user.IsActive {
				httpx.Error(w, http.StatusUnauthorized, CodeInvalidToken,
					"Invalid or expired token.")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}
