package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const adminTokenHeader = "X-Admin-Token"

// AdminMiddleware gates the assignment management surface behind a shared
// admin token. When no token is configured the surface is disabled outright.
func (a *API) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.adminToken == "" {
			writeError(w, http.StatusForbidden, "admin interface disabled")
			return
		}

		presented := r.Header.Get(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(a.adminToken)) != 1 {
			a.audit.logFailure(AuditAdminDenied, r, "bad admin token")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
