// Package utils provides small stateless helpers shared across the module:
// secure random string generation (crypto/rand) and email normalization.
package utils
