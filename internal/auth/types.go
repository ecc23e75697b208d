package auth

import "errors"

// Role identifies what a token holder may do.
type Role string

// RoleOperator may submit discoveries, drive pairing flows and manage
// configuration entries.
const RoleOperator Role = "operator"

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrInvalidHash        = errors.New("auth: invalid password hash")
	ErrNotConfigured      = errors.New("auth: operator password not configured")
)
