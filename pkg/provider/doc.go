// Package provider implements the OAuth2/OIDC authorization-code round trip
// against the configured federated identity provider: building the
// authorization URL, exchanging the code for an access token and fetching the
// normalized user info the resolver consumes.
package provider
