// Package errors defines the closed error taxonomy for the identity workflow.
//
// Every failure a service surfaces carries one of the ErrorCode constants.
// Handlers translate codes to HTTP statuses and to generic, non-leaking
// user-facing messages; the Message field is internal and goes to logs only.
//
//	err := errors.New(errors.ErrCodeInvalidDomain, "username is not a .gov or .mil address")
//	if errors.IsCode(err, errors.ErrCodeInvalidDomain) { ... }
package errors
