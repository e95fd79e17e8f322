package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

// decision is any of the gate's header checks bound to its arguments
type decision func(r *http.Request) (*Principal, error)

// guard turns a decision into middleware. Allowed requests carry the
// principal in their context.
func (g *Gate) guard(name string, decide decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := decide(r)
			if err != nil {
				g.logger.Debug("request refused",
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.String("guard", name),
					zap.String("path", r.URL.Path),
					zap.String("error_type", string(services.GetErrorType(err))))
				writeGateError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Authenticate requires any valid session token
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return g.guard("authenticate", func(r *http.Request) (*Principal, error) {
		return g.VerifyBearer(r.Context(), r.Header)
	})(next)
}

// Context requires the caller to be acting as c
func (g *Gate) Context(c models.Context) func(http.Handler) http.Handler {
	return g.guard("context:"+string(c), func(r *http.Request) (*Principal, error) {
		return g.RequireContext(r.Context(), r.Header, c)
	})
}

// AdminLevel requires an admin level of at least min
func (g *Gate) AdminLevel(min models.AdminLevel) func(http.Handler) http.Handler {
	return g.guard("admin:"+string(min), func(r *http.Request) (*Principal, error) {
		return g.RequireAdminLevel(r.Context(), r.Header, min)
	})
}

// Roles requires one of roles
func (g *Gate) Roles(roles ...string) func(http.Handler) http.Handler {
	return g.guard("roles", func(r *http.Request) (*Principal, error) {
		return g.RequireAuth(r.Context(), r.Header, roles...)
	})
}

// Mentor requires a unified or legacy mentor
func (g *Gate) Mentor(next http.Handler) http.Handler {
	return g.guard("mentor", func(r *http.Request) (*Principal, error) {
		return g.RequireMentor(r.Context(), r.Header)
	})(next)
}

func writeGateError(w http.ResponseWriter, err error) {
	message := services.GetErrorMessage(err)
	switch {
	case services.IsUnauthenticatedError(err):
		_ = utils.WriteUnauthorized(w, message)
	case services.IsForbiddenError(err), services.IsAccessDeniedError(err):
		_ = utils.WriteForbidden(w, message)
	default:
		_ = utils.WriteInternalServerError(w, "internal server error")
	}
}
