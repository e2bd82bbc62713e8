package oauth2server

import (
	"context"
	"net/http"
	"strings"

	"github.com/leaonline/oauth2-server/internal/engine"
	"github.com/leaonline/oauth2-server/internal/httpx"
)

type contextKey string

const tokenContextKey contextKey = "oauth2.token"

// TokenFromContext recupera el token validado por AuthenticatedRoute.
func TokenFromContext(ctx context.Context) (*engine.Token, bool) {
	token, ok := ctx.Value(tokenContextKey).(*engine.Token)
	return token, ok
}

// bearerToken extrae el access token del request: header Authorization y,
// si la opción lo permite, el parámetro access_token de la query.
func (s *Server) bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if s.engine.Options().AllowBearerTokensInQueryString {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// AuthenticatedRoute protege un handler con autenticación bearer. El token
// validado queda disponible vía TokenFromContext. scope vacío no exige
// cobertura de scopes.
func (s *Server) AuthenticatedRoute(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opts := s.engine.Options()
		if scope != "" && opts.AddAcceptedScopesHeader {
			w.Header().Set("X-Accepted-OAuth-Scopes", scope)
		}
		token, err := s.engine.Authenticate(r.Context(), s.bearerToken(r), scope)
		if err != nil {
			engErr, _ := engine.AsError(err)
			s.respondError(w, httpx.ErrorOptions{
				Error:         engErr.Name,
				Description:   engErr.Description,
				Status:        engErr.Status,
				OriginalError: err,
			})
			return
		}
		if opts.AddAuthorizedScopesHeader {
			w.Header().Set("X-OAuth-Scopes", token.Scope)
		}
		ctx := context.WithValue(r.Context(), tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
