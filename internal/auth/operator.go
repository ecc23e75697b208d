package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/nerrad567/trackerlink-core/internal/infrastructure/config"
)

// Token is the result of a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Authenticator checks operator credentials and issues tokens.
type Authenticator struct {
	username string
	hash     *PasswordHash
	hashErr  error // set when the configured hash is present but malformed
	secret   string
	ttl      time.Duration
}

// NewAuthenticator creates an authenticator from the security settings.
// The operator hash is parsed once; a malformed one makes every Login fail
// with ErrInvalidHash.
func NewAuthenticator(cfg config.SecurityConfig) *Authenticator {
	a := &Authenticator{
		username: cfg.Operator.Username,
		secret:   cfg.JWT.Secret,
		ttl:      time.Duration(cfg.JWT.AccessTokenTTL) * time.Minute,
	}
	if cfg.Operator.PasswordHash != "" {
		a.hash, a.hashErr = ParsePasswordHash(cfg.Operator.PasswordHash)
	}
	return a
}

// Login verifies the operator's credentials and returns an access token.
// Unknown usernames and wrong passwords both return ErrInvalidCredentials.
func (a *Authenticator) Login(username, password string) (*Token, error) {
	if a.hashErr != nil {
		return nil, fmt.Errorf("operator password: %w", a.hashErr)
	}
	if a.hash == nil {
		return nil, ErrNotConfigured
	}

	// Verify the password even on a username mismatch so both paths cost
	// the same.
	ok := a.hash.Verify(password)
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	if !ok || !userOK {
		return nil, ErrInvalidCredentials
	}

	signed, expires, err := GenerateAccessToken(a.username, RoleOperator, a.secret, a.ttl)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expires}, nil
}

// Verify parses a token issued by Login.
func (a *Authenticator) Verify(token string) (*CustomClaims, error) {
	return ParseToken(token, a.secret)
}
