package models

import (
	"fmt"
	"time"
)

// EndpointClass groups endpoints that share a rate limit policy.
type EndpointClass string

const (
	// ClassLookup covers availability checks fired by the debounced form.
	ClassLookup EndpointClass = "lookup"
	// ClassSubmit covers registration commits.
	ClassSubmit EndpointClass = "submit"
	// ClassAdmin covers the admin session and export endpoints.
	ClassAdmin EndpointClass = "admin"
)

// IsValid checks if the endpoint class is one of the supported enum values.
func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassLookup, ClassSubmit, ClassAdmin:
		return true
	}
	return false
}

// Policy is the number of requests a client may make per window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicies returns the built-in per-class policies.
func DefaultPolicies() map[EndpointClass]Policy {
	return map[EndpointClass]Policy{
		ClassLookup: {Limit: 120, Window: time.Minute},
		ClassSubmit: {Limit: 10, Window: time.Minute},
		ClassAdmin:  {Limit: 20, Window: time.Minute},
	}
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// Key builds the bucket key for a client IP within a class.
func Key(class EndpointClass, ip string) string {
	return fmt.Sprintf("rl:%s:%s", class, ip)
}
