// Package identity implements the identity resolver: the decision point for
// every inbound authentication event.
//
// Resolve takes a login event (local credentials or a federated assertion)
// and returns one of a closed set of outcomes: Authenticated, StagingCreated,
// or a typed error (INVALID_CREDENTIALS, INVALID_DOMAIN, ACCOUNT_LOCKED,
// LINK_EXPIRED, NOT_AUTHORIZED). The link-state payload echoed back by the
// client is verified cryptographically before anything in it is honored, and
// staging claims go through the store's compare-and-swap so two racing link
// attempts can never both merge the same staging identity.
package identity
