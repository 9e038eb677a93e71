package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/accounts"
	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/http/apiresponse"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// TokenVerifier resolves a bearer token to a live account.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*accounts.Account, error)
}

// Authenticate requires a valid bearer token and stores the caller as the
// request's actor.
func Authenticate(verifier TokenVerifier, logger *logging.Logger) func(http.Handler) http.Handler {
	if verifier == nil {
		panic("middleware: token verifier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				apiresponse.Error(w, r, logger, apperr.Unauthorized("Not authorized, no token"))
				return
			}
			account, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				apiresponse.Error(w, r, logger, err)
				return
			}
			ctx := access.WithActor(r.Context(), account.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize applies the role policy for op. It must run after Authenticate.
func Authorize(op access.Operation, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := access.RequireActor(r.Context())
			if err != nil {
				apiresponse.Error(w, r, logger, err)
				return
			}
			if err := access.Authorize(actor.Role, op); err != nil {
				apiresponse.Error(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
