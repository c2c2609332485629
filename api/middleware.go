/*
middleware.go - Role scoping for the API

The engine sits behind a gateway that authenticates users and injects
two headers: X-Role ("admin" or "rep") and X-Sales-Rep (the caller's
rep ID). This layer only enforces scope: configuration writes and
uploads need admin, and a rep can read their own figures but nobody
else's. It is NOT an authentication layer.
*/
package api

import (
	"net/http"
)

const (
	headerRole = "X-Role"
	headerRep  = "X-Sales-Rep"

	roleAdmin = "admin"
	roleRep   = "rep"
)

func callerRole(r *http.Request) string {
	if role := r.Header.Get(headerRole); role != "" {
		return role
	}
	return roleRep
}

func callerRep(r *http.Request) string {
	return r.Header.Get(headerRep)
}

// requireAdmin guards configuration writes and uploads.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callerRole(r) != roleAdmin {
			writeError(w, http.StatusForbidden, "Admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// canReadRep reports whether the caller may read a rep's figures:
// admins read anyone, reps read themselves.
func canReadRep(r *http.Request, rep string) bool {
	if callerRole(r) == roleAdmin {
		return true
	}
	return callerRep(r) == rep && rep != ""
}
