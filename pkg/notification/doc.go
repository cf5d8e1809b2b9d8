// Package notification renders and delivers outbound notices (welcome,
// password reset, profile-find confirmation).
//
// The Manager holds per-notice templates and a transport Notifier. Request
// paths use Dispatch, which sends on its own goroutine and logs failures
// instead of surfacing them: notification delivery is never allowed to fail a
// registration or reset response.
package notification
