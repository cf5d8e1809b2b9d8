// Package account drives the account lifecycle: registration, profile
// updates, and the password-reset round trip.
//
// Local validation always precedes any store mutation, so an input failure
// never leaves partial side effects. Multi-record updates (user plus tag set,
// passport plus token consumption) run inside one store transaction.
// Notifications triggered by these flows are fire-and-forget: a delivery
// failure is logged, never returned to the user.
package account
