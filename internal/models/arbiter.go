package models

import "github.com/golang-jwt/jwt/v5"

// ArbiterClaims is the bearer token payload identifying the arbiter acting on a tournament.
// The subject is recorded as actor / changed_by / verified_by.
type ArbiterClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ArbiterID returns the token subject.
func (c *ArbiterClaims) ArbiterID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
