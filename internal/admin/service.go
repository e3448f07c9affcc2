// Package admin authenticates organizers and serves the registrations listing and CSV export.
package admin

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"outbreak/internal/registration/models"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/audit"
	"outbreak/pkg/requestcontext"
)

const (
	// DefaultSessionTTL is how long an admin token stays valid.
	DefaultSessionTTL = 8 * time.Hour
	// Subject is the token subject of the shared organizer account.
	Subject = "admin"
)

type RegistrationLister interface {
	List(ctx context.Context, query string) ([]*models.Registration, error)
}

type TokenIssuer interface {
	GenerateAdminToken(subject string, now time.Time, expiresIn time.Duration) (string, time.Time, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service checks the organizer access key against a bcrypt hash and issues
// session tokens.
type Service struct {
	registrations  RegistrationLister
	tokens         TokenIssuer
	accessKeyHash  []byte
	sessionTTL     time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// NewService constructs a Service. accessKeyHash is a bcrypt hash; an empty
// hash disables admin sessions.
func NewService(registrations RegistrationLister, tokens TokenIssuer, accessKeyHash string, opts ...Option) *Service {
	s := &Service{
		registrations: registrations,
		tokens:        tokens,
		accessKeyHash: []byte(accessKeyHash),
		sessionTTL:    DefaultSessionTTL,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashAccessKey returns the bcrypt hash to configure for key.
func HashAccessKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CreateSession exchanges the access key for a signed token.
func (s *Service) CreateSession(ctx context.Context, accessKey string) (*SessionResponse, error) {
	if accessKey == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "access key is required")
	}
	if len(s.accessKeyHash) == 0 {
		s.logAudit(ctx, audit.ActionAdminSessionDenied, "admin access not configured")
		return nil, dErrors.New(dErrors.CodeForbidden, "admin access is disabled")
	}
	if err := bcrypt.CompareHashAndPassword(s.accessKeyHash, []byte(accessKey)); err != nil {
		s.logAudit(ctx, audit.ActionAdminSessionDenied, "invalid access key")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid access key")
	}

	token, expiresAt, err := s.tokens.GenerateAdminToken(Subject, requestcontext.Now(ctx), s.sessionTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue admin token")
	}
	s.logAudit(ctx, audit.ActionAdminSessionCreated, "")
	return &SessionResponse{Token: token, ExpiresAt: expiresAt}, nil
}

// List returns registrations matching query, newest first.
func (s *Service) List(ctx context.Context, query string) ([]*models.Registration, error) {
	return s.registrations.List(ctx, query)
}

// Export returns the registrations matching query and the download filename
// for the request day.
func (s *Service) Export(ctx context.Context, query string) (string, []*models.Registration, error) {
	regs, err := s.registrations.List(ctx, query)
	if err != nil {
		return "", nil, err
	}
	s.logAudit(ctx, audit.ActionRegistrationsExported, "")
	return ExportFilename(requestcontext.Now(ctx)), regs, nil
}

func (s *Service) logAudit(ctx context.Context, action audit.Action, reason string) {
	subject := requestcontext.AdminSubject(ctx)
	if subject == "" {
		subject = Subject
	}
	s.logger.InfoContext(ctx, string(action),
		"subject", subject,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		Action:  action,
		Subject: subject,
		ActorID: requestcontext.AdminSubject(ctx),
		Reason:  reason,
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", action, "error", err)
	}
}
