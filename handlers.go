package main

import (
	"errors"
	"net/http"

	"github.com/example/jwtauth/internal/oauth"
	"github.com/example/jwtauth/internal/token"
)

// HandleToken implements the password grant token endpoint
// POST /oauth/token
func (a *App) HandleToken(w http.ResponseWriter, r *http.Request) {
	req, err := tokenRequestFrom(r)
	if err != nil {
		a.Metrics.TokenRejected("invalid_request")
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	issued, err := a.Issuer.Issue(req)
	if err != nil {
		var oerr *oauth.Error
		if !errors.As(err, &oerr) {
			a.Log.Errorw("token issuance failed", "client", req.ClientID, "error", err)
		} else {
			a.Log.Infow("token request rejected", "client", req.ClientID, "error", oauth.Code(err), "reason", oauth.Description(err))
		}
		a.Metrics.TokenRejected(oauth.Code(err))
		writeTokenError(w, err)
		return
	}

	a.Metrics.TokenIssued(issued.Claims.ClientID)
	a.Log.Infow("token issued",
		"client", issued.Claims.ClientID,
		"user", issued.Claims.Subject,
		"scope", issued.Response.Scope,
		"jti", issued.Claims.ID,
	)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, issued.Response)
}

// HandleFoobar serves the protected resource
// GET /foobar
func (a *App) HandleFoobar(w http.ResponseWriter, r *http.Request, claims *token.Claims) {
	a.Log.Debugw("foobar accessed", "user", claims.Subject, "client", claims.ClientID, "authorities", claims.Authorities)
	w.Header().Set("Content-Type", "text/plain;charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("hello OAuth2!"))
}

func (a *App) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := a.DB.(interface{ ping() bool }); ok && !p.ping() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
