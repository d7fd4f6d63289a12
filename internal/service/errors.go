package service

import "errors"

var (
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already exists")
	// ErrRegistrationVerification is returned when the write reported
	// success but the read-back inside the same transaction could not
	// confirm the persisted row.
	ErrRegistrationVerification = errors.New("registration verification failed")
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)
