package main

import (
	"net/http"

	"github.com/example/jwtauth/internal/token"
)

// checkTokenResponse is the introspection view of a token: its claims plus
// the active flag. Inactive tokens carry no claims.
type checkTokenResponse struct {
	*token.Claims
	Active bool `json:"active"`
}

// HandleCheckToken lets a registered client introspect an access token.
// GET|POST /oauth/check_token?token=...
func (a *App) HandleCheckToken(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2/client"`)
		writeError(w, http.StatusUnauthorized, "invalid_client", "Full authentication is required to access this resource")
		return
	}
	if _, err := a.Store.AuthenticateClient(id, secret); err != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2/client"`)
		writeError(w, http.StatusUnauthorized, "invalid_client", "Bad client credentials")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	raw := r.Form.Get("token")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Token is required")
		return
	}

	claims, err := a.Guard.Introspect(raw)
	if err != nil {
		a.Log.Debugw("introspected inactive token", "client", id, "reason", err)
		writeJSON(w, http.StatusOK, checkTokenResponse{Active: false})
		return
	}
	writeJSON(w, http.StatusOK, checkTokenResponse{Claims: claims, Active: true})
}
