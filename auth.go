package main

import (
	"net/http"

	"github.com/example/jwtauth/internal/oauth"
)

// tokenRequestFrom collects client credentials from basic auth and grant
// parameters from the query string or form body.
func tokenRequestFrom(r *http.Request) (oauth.TokenRequest, error) {
	if err := r.ParseForm(); err != nil {
		return oauth.TokenRequest{}, err
	}
	id, secret, ok := r.BasicAuth()
	return oauth.TokenRequest{
		ClientAuth:        ok,
		ClientID:          id,
		ClientSecret:      secret,
		GrantType:         r.Form.Get("grant_type"),
		Username:          r.Form.Get("username"),
		Password:          r.Form.Get("password"),
		RequestedClientID: r.Form.Get("client_id"),
		Scope:             r.Form.Get("scope"),
	}, nil
}
