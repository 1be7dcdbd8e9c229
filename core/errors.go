package core

import "errors"

var (
	// ErrNotAuthenticated is returned when a room or message operation is
	// attempted on a connection with no bound identity. The operation is
	// rejected; nothing is sent back to the client.
	ErrNotAuthenticated = errors.New("connection not authenticated")
	// ErrMalformedPayload is returned when a required payload field is
	// missing or empty. The event is dropped.
	ErrMalformedPayload = errors.New("malformed event payload")

	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrUnrecognizedToken = errors.New("unrecognized token")
)
