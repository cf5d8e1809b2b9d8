// Package govemail validates that a username is a government email address.
package govemail

import (
	"fmt"
	"regexp"
)

// defaultPattern accepts addresses under .gov and .mil, including agency
// subdomains.
const defaultPattern = `(?i)^[^@\s]+@([a-zA-Z0-9-]+\.)+(gov|mil)$`

// Validator checks usernames against the accepted government-domain pattern.
type Validator struct {
	pattern *regexp.Regexp
}

// NewValidator compiles the given pattern, or the default .gov/.mil pattern
// when expr is empty.
func NewValidator(expr string) (*Validator, error) {
	if expr == "" {
		expr = defaultPattern
	}
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid government email pattern: %w", err)
	}
	return &Validator{pattern: pattern}, nil
}

// MustValidator is like NewValidator but panics on a bad pattern. For use at
// service construction where a bad pattern should be fatal.
func MustValidator(expr string) *Validator {
	v, err := NewValidator(expr)
	if err != nil {
		panic(err)
	}
	return v
}

// Valid reports whether the username matches the accepted pattern.
func (v *Validator) Valid(username string) bool {
	return v.pattern.MatchString(username)
}
