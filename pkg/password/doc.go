// Package password provides the password policy engine and bcrypt hashing
// helpers.
//
// The policy checker validates a candidate password against configurable
// complexity rules and rejects passwords trivially derived from the account's
// email local part. The policy is pluggable: callers depend on the
// PolicyChecker interface, so complexity rules can change without touching
// call sites.
//
//	checker := password.NewDefaultPolicyChecker(policy, nil)
//	if err := checker.Validate(candidate, email); err != nil {
//		// surface as WEAK_PASSWORD
//	}
package password
