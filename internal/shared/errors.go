package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenMissing occurs when no bearer token accompanies a request.
	ErrTokenMissing = errors.New("bearer token missing")
	// ErrTokenUnknown occurs when a presented token has no live session.
	ErrTokenUnknown = errors.New("bearer token unknown or expired")
)
