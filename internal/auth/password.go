package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost for new hashes. Stored hashes carry their own parameters.
var defaultArgon = argonParams{time: 3, memory: 64 * 1024, threads: 1}

const (
	argonKeyLen  = 32
	argonSaltLen = 16
)

var b64 = base64.RawStdEncoding

type argonParams struct {
	time    uint32
	memory  uint32 // KiB
	threads uint8
}

// PasswordHash is a decoded Argon2id PHC string:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt>$<key>
type PasswordHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

// HashPassword derives a new Argon2id hash of password with a random salt
// and returns it in PHC form, ready for security.operator.password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	h := &PasswordHash{params: defaultArgon, salt: salt}
	h.key = h.derive(password, argonKeyLen)
	return h.String(), nil
}

// VerifyPassword reports whether password matches encoded. A malformed
// hash returns an error wrapping ErrInvalidHash.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := ParsePasswordHash(encoded)
	if err != nil {
		return false, err
	}
	return h.Verify(password), nil
}

// ParsePasswordHash decodes a PHC string. Every failure wraps ErrInvalidHash.
func ParsePasswordHash(encoded string) (*PasswordHash, error) {
	fields := strings.Split(encoded, "$")
	// A leading "$" leaves an empty first field.
	if len(fields) != 6 || fields[0] != "" { //nolint:mnd // PHC field count
		return nil, fmt.Errorf("%w: expected $argon2id$v=..$m=..,t=..,p=..$salt$key", ErrInvalidHash)
	}
	alg, version, cost, salt, key := fields[1], fields[2], fields[3], fields[4], fields[5]

	if alg != "argon2id" {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidHash, alg)
	}
	if version != fmt.Sprintf("v=%d", argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHash, version)
	}

	h := &PasswordHash{}
	if _, err := fmt.Sscanf(cost, "m=%d,t=%d,p=%d", &h.params.memory, &h.params.time, &h.params.threads); err != nil {
		return nil, fmt.Errorf("%w: parameters %q", ErrInvalidHash, cost)
	}
	if h.params.time == 0 || h.params.threads == 0 || h.params.memory == 0 {
		return nil, fmt.Errorf("%w: zero cost parameter", ErrInvalidHash)
	}

	var err error
	if h.salt, err = b64.DecodeString(salt); err != nil {
		return nil, fmt.Errorf("%w: salt: %w", ErrInvalidHash, err)
	}
	if h.key, err = b64.DecodeString(key); err != nil {
		return nil, fmt.Errorf("%w: key: %w", ErrInvalidHash, err)
	}
	if len(h.key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidHash)
	}
	return h, nil
}

// Verify reports whether password matches, in constant time.
func (h *PasswordHash) Verify(password string) bool {
	candidate := h.derive(password, uint32(len(h.key))) //nolint:gosec // key length fits uint32
	return subtle.ConstantTimeCompare(h.key, candidate) == 1
}

// Outdated reports whether the hash is cheaper than one HashPassword would
// produce today.
func (h *PasswordHash) Outdated() bool {
	return h.params.time < defaultArgon.time ||
		h.params.memory < defaultArgon.memory ||
		len(h.key) < argonKeyLen
}

// String encodes h in PHC form.
func (h *PasswordHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.memory, h.params.time, h.params.threads,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func (h *PasswordHash) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.params.time, h.params.memory, h.params.threads, keyLen)
}
