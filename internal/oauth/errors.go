package oauth

import (
	"errors"
	"net/http"
)

var (
	ErrMalformedRequest   = errors.New("malformed request")
	ErrInvalidClient      = errors.New("invalid client")
	ErrInvalidUser        = errors.New("invalid user")
	ErrUnsupportedGrant   = errors.New("unsupported grant type")
	ErrUnauthorizedClient = errors.New("unauthorized client")
	ErrInvalidScope       = errors.New("invalid scope")

	ErrNoToken           = errors.New("no token")
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpired           = errors.New("token expired")
	ErrInsufficientScope = errors.New("insufficient scope")
)

// Error is a terminal failure of an issuance or access decision. Err is one
// of the sentinels above; Description is safe to return to the caller.
type Error struct {
	Err         error
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Description
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind error, description string) *Error {
	return &Error{Err: kind, Description: description}
}

type wire struct {
	code   string
	status int
}

var wireCodes = []struct {
	kind error
	wire
}{
	{ErrMalformedRequest, wire{"invalid_request", http.StatusBadRequest}},
	{ErrInvalidClient, wire{"invalid_client", http.StatusUnauthorized}},
	{ErrInvalidUser, wire{"invalid_grant", http.StatusUnauthorized}},
	{ErrUnsupportedGrant, wire{"unsupported_grant_type", http.StatusBadRequest}},
	{ErrUnauthorizedClient, wire{"unauthorized_client", http.StatusBadRequest}},
	{ErrInvalidScope, wire{"invalid_scope", http.StatusBadRequest}},
	{ErrNoToken, wire{"no_token", http.StatusUnauthorized}},
	{ErrInvalidToken, wire{"invalid_token", http.StatusUnauthorized}},
	{ErrExpired, wire{"invalid_token", http.StatusUnauthorized}},
	{ErrInsufficientScope, wire{"insufficient_scope", http.StatusUnauthorized}},
}

func lookup(err error) wire {
	for _, w := range wireCodes {
		if errors.Is(err, w.kind) {
			return w.wire
		}
	}
	return wire{"server_error", http.StatusInternalServerError}
}

// Code returns the OAuth2 error code for err.
func Code(err error) string { return lookup(err).code }

// Status returns the HTTP status for err.
func Status(err error) int { return lookup(err).status }

// Description returns the human readable part of err.
func Description(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Description != "" {
		return e.Description
	}
	if lookup(err).status == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}
