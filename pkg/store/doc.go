// Package store defines the credential store contract and its in-memory and
// postgres implementations.
//
// The store persists users, passports (local credential records), one-time
// tokens, and staging identities. It is the source of truth across request
// instances: single-use guarantees (token consumption, staging claims) are
// enforced here with compare-and-swap style updates, not with in-process
// locking in the services.
package store
