// Package token implements the single-use token service for email
// confirmation and password reset.
//
// Tokens are generated with crypto/rand, normalized (lowercase, trimmed)
// before storage and lookup, and checked for expiry at validation time.
// Consumption is guarded at the store with a compare-and-swap update, so a
// token can be redeemed at most once even under concurrent requests.
package token
