// Package auth authenticates the operator who drives pairing flows.
//
// There is one operator account, configured under security.operator with
// an Argon2id password hash in PHC format. A successful login returns a
// short-lived HS256 JWT that every protected API route requires as a
// Bearer token. Tokens are validated by signature and expiry only; nothing
// is stored server-side.
package auth
