package password

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tendant/gov-idm/pkg/utils"
)

// Policy defines the requirements for password complexity.
type Policy struct {
	MinLength          int
	RequireUppercase   bool
	RequireLowercase   bool
	RequireDigit       bool
	RequireSpecialChar bool
	DisallowCommonPwds bool
	MaxRepeatedChars   int
}

// PolicyChecker validates a candidate password against the configured policy
// and against the account email it will protect. Callers translate a non-nil
// error into a WEAK_PASSWORD failure, never into a storage error.
type PolicyChecker interface {
	Validate(candidate, accountEmail string) error
	GetPolicy() *Policy
}

var (
	uppercaseRegex = regexp.MustCompile(`[A-Z]`)
	lowercaseRegex = regexp.MustCompile(`[a-z]`)
	digitRegex     = regexp.MustCompile(`[0-9]`)
	specialRegex   = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// DefaultPolicyChecker implements PolicyChecker.
type DefaultPolicyChecker struct {
	policy          *Policy
	commonPasswords map[string]bool
}

// NewDefaultPolicyChecker creates a checker for the given policy. A nil policy
// falls back to DefaultPolicy; a nil common-password set falls back to a
// built-in sample list.
func NewDefaultPolicyChecker(policy *Policy, commonPasswords map[string]bool) *DefaultPolicyChecker {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if commonPasswords == nil {
		commonPasswords = defaultCommonPasswords()
	}
	return &DefaultPolicyChecker{
		policy:          policy,
		commonPasswords: commonPasswords,
	}
}

// Validate checks the candidate against the complexity policy and rejects
// passwords trivially derived from the account email's local part, so a reset
// token mailed to the account can never leak into a guessable password.
func (pc *DefaultPolicyChecker) Validate(candidate, accountEmail string) error {
	if len(candidate) < pc.policy.MinLength {
		return fmt.Errorf("password must be at least %d characters long", pc.policy.MinLength)
	}

	if pc.policy.RequireUppercase && !uppercaseRegex.MatchString(candidate) {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}

	if pc.policy.RequireLowercase && !lowercaseRegex.MatchString(candidate) {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}

	if pc.policy.RequireDigit && !digitRegex.MatchString(candidate) {
		return fmt.Errorf("password must contain at least one digit")
	}

	if pc.policy.RequireSpecialChar && !specialRegex.MatchString(candidate) {
		return fmt.Errorf("password must contain at least one special character")
	}

	if pc.policy.DisallowCommonPwds && pc.commonPasswords[strings.ToLower(candidate)] {
		return fmt.Errorf("password is too common, please choose a more secure password")
	}

	if pc.policy.MaxRepeatedChars > 0 && hasRepeatedChars(candidate, pc.policy.MaxRepeatedChars+1) {
		return fmt.Errorf("password cannot contain more than %d consecutive repeated characters", pc.policy.MaxRepeatedChars)
	}

	if err := checkEmailDerived(candidate, accountEmail); err != nil {
		return err
	}

	return nil
}

// GetPolicy returns the password policy
func (pc *DefaultPolicyChecker) GetPolicy() *Policy {
	return pc.policy
}

// checkEmailDerived rejects candidates equal to, contained in, or containing
// the email's local part. Comparison is case-insensitive. Local parts shorter
// than 4 characters are only checked for equality to avoid rejecting any
// password containing e.g. "al".
func checkEmailDerived(candidate, accountEmail string) error {
	local := utils.EmailLocalPart(accountEmail)
	if local == "" {
		return nil
	}
	lower := strings.ToLower(candidate)
	if lower == local {
		return fmt.Errorf("password must not be your email address")
	}
	if len(local) >= 4 && (strings.Contains(lower, local) || strings.Contains(local, lower)) {
		return fmt.Errorf("password must not be derived from your email address")
	}
	return nil
}

func hasRepeatedChars(candidate string, runLength int) bool {
	for i := 0; i+runLength <= len(candidate); i++ {
		if strings.Count(candidate[i:i+runLength], string(candidate[i])) == runLength {
			return true
		}
	}
	return false
}

// DefaultPolicy returns the policy applied when no configuration is supplied.
func DefaultPolicy() *Policy {
	return &Policy{
		MinLength:          8,
		RequireUppercase:   true,
		RequireLowercase:   true,
		RequireDigit:       true,
		RequireSpecialChar: true,
		DisallowCommonPwds: true,
		MaxRepeatedChars:   3,
	}
}

// NoOpPolicy returns a policy with every rule disabled, for development use.
func NoOpPolicy() *Policy {
	return &Policy{MinLength: 1}
}

func defaultCommonPasswords() map[string]bool {
	commonPwds := []string{
		"password", "123456", "12345678", "qwerty", "admin",
		"welcome", "login", "abc123", "letmein", "monkey",
	}
	result := make(map[string]bool)
	for _, pwd := range commonPwds {
		result[pwd] = true
	}
	return result
}
