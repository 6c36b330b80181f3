package middleware

import (
	"net/http"
	"strings"

	"github.com/mgalindo/storefront-backend/pkg/logger"
)

const (
	sessionHeader = "X-Session-Id"
	sessionCookie = "storefront_session"

	// AnonymousSession is the shared fallback identity used when a caller
	// supplies no session token at all.
	AnonymousSession = "anonymous"
)

// Session resolves the caller's opaque session identity: header first, then
// cookie, then the anonymous fallback. The value is never validated beyond
// trimming; it is purely a partition key.
func Session(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
			if sessionID == "" {
				if cookie, err := r.Cookie(sessionCookie); err == nil {
					sessionID = strings.TrimSpace(cookie.Value)
				}
			}
			if sessionID == "" {
				sessionID = AnonymousSession
			}

			ctx := WithSessionID(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
