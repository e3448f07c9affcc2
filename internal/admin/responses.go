package admin

import (
	"time"

	"outbreak/internal/registration/models"
)

// SessionRequest is the body of POST /admin/session.
type SessionRequest struct {
	AccessKey string `json:"accessKey"`
}

// SessionResponse carries a signed admin token.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RegistrationsListResponse wraps the filtered registrations for HTTP response.
type RegistrationsListResponse struct {
	Registrations []*models.Registration `json:"registrations"`
	Total         int                    `json:"total"`
}
