package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// The message is shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	// ErrAccountInactive is returned when a deactivated account attempts to log in.
	ErrAccountInactive = errors.New("account is deactivated")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already registered")
	ErrUserNotFound             = errors.New("user not found")
	ErrInvalidRole              = errors.New("invalid role")
	ErrInvalidSubscription      = errors.New("invalid subscription for role")
)
