// Package audit records who did what to the registrations collection.
//
// Events are emitted by services through a Publisher and appended to a Store:
// memory for tests, a Postgres outbox, or a Kafka topic.
package audit

import (
	"context"
	"time"
)

// EventCategory groups events by retention and routing needs.
type EventCategory string

const (
	// CategoryCompliance events record accepted registrations and exports of participant data.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity events record admin access attempts.
	CategorySecurity EventCategory = "security"
	// CategoryOperations events record routine outcomes such as rejected commits.
	CategoryOperations EventCategory = "operations"
)

// Action names an audited operation.
type Action string

const (
	ActionRegistrationCommitted Action = "registration_committed"
	ActionRegistrationRejected  Action = "registration_rejected"
	ActionAdminSessionCreated   Action = "admin_session_created"
	ActionAdminSessionDenied    Action = "admin_session_denied"
	ActionRegistrationsExported Action = "registrations_exported"
)

var actionCategories = map[Action]EventCategory{
	ActionRegistrationCommitted: CategoryCompliance,
	ActionRegistrationsExported: CategoryCompliance,
	ActionAdminSessionCreated:   CategorySecurity,
	ActionAdminSessionDenied:    CategorySecurity,
	ActionRegistrationRejected:  CategoryOperations,
}

// Category returns the category for the action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is one audit record.
type Event struct {
	ID        string        `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`
	// Subject is the registration key or the admin subject the event is about.
	Subject   string `json:"subject,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	Device    string `json:"device,omitempty"`
}

// Store appends audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by stores that can read events back.
type Lister interface {
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
