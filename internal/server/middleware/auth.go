package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
	// ProjectKey is the context key for the project resolved from the URL.
	ProjectKey contextKeyAuth = "project"
)

// Principal represents the authenticated owner making the request.
type Principal struct {
	OwnerID string
	Email   string
}

// Authenticate returns an HTTP middleware that requires an owner session
// token in the Authorization header. On success, a Principal is attached to
// the request context. On failure, a 401 JSON error response is returned.
func Authenticate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Provide a Bearer session token.")
				return
			}

			p, err := authSvc.ValidateJWT(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, &Principal{
				OwnerID: p.OwnerID,
				Email:   p.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireProjectOwner returns an HTTP middleware that resolves the
// {projectId} URL parameter and rejects callers that do not own it. It must
// be used after Authenticate in the middleware chain.
func RequireProjectOwner(projects *service.ProjectService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			project, err := projects.Authorize(r.Context(), principal.OwnerID, chi.URLParam(r, "projectId"))
			if errors.Is(err, service.ErrForbidden) {
				writeAuthError(w, http.StatusForbidden, "Forbidden")
				return
			}
			if err != nil {
				writeAuthError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			ctx := context.WithValue(r.Context(), ProjectKey, project)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

// GetProject returns the project authorized by RequireProjectOwner, or nil.
func GetProject(ctx context.Context) *model.Project {
	if p, ok := ctx.Value(ProjectKey).(*model.Project); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
