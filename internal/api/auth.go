package api

import (
	"errors"
	"net/http"

	"github.com/mattjoyce/unitd/internal/auth"
)

// authMiddleware resolves the bearer token to a principal.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r)
		if err != nil {
			msg := "missing API key"
			if errors.Is(err, auth.ErrMalformed) {
				msg = "invalid Authorization header format"
			}
			s.writeError(w, http.StatusUnauthorized, msg)
			return
		}

		principal, ok := s.keyring.Lookup(token)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func (s *Server) require(g auth.Grant) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := auth.FromContext(r.Context())
			if !principal.Can(g) {
				s.logger.Debug("insufficient scope", "principal", principal.Name, "path", r.URL.Path)
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
