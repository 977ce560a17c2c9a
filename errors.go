package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/example/jwtauth/internal/oauth"
)

// APIError is the OAuth2 error response body.
type APIError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, APIError{Code: code, Description: description})
}

// writeTokenError reports a failed token request. Client authentication
// failures carry a Basic challenge.
func writeTokenError(w http.ResponseWriter, err error) {
	if errors.Is(err, oauth.ErrInvalidClient) {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2/client"`)
	}
	w.Header().Set("Cache-Control", "no-store")
	writeError(w, oauth.Status(err), oauth.Code(err), oauth.Description(err))
}

// writeAccessError reports a denied protected resource request with a Bearer challenge.
func writeAccessError(w http.ResponseWriter, realm string, err error) {
	code, desc := oauth.Code(err), oauth.Description(err)
	challenge := fmt.Sprintf(`Bearer realm=%q`, realm)
	if !errors.Is(err, oauth.ErrNoToken) {
		challenge += fmt.Sprintf(`, error=%q, error_description=%q`, code, desc)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeError(w, oauth.Status(err), code, desc)
}
