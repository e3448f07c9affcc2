package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"outbreak/internal/registration/metrics"
	"outbreak/internal/registration/models"
	"outbreak/internal/registration/store"
	"outbreak/internal/registration/validation"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/audit"
	"outbreak/pkg/platform/sentinel"
	"outbreak/pkg/requestcontext"
)

const tracerName = "outbreak/internal/registration/service"

type Compressor interface {
	Compress(ctx context.Context, shot *models.Screenshot) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service validates, compresses and commits registrations and answers
// availability lookups against the store.
type Service struct {
	store          store.Store
	compressor     Compressor
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service.
func New(st store.Store, compressor Compressor, opts ...Option) *Service {
	s := &Service{
		store:      st,
		compressor: compressor,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsTaken reports whether value is already used for field. A team name is
// taken when a document exists at its key or another team registered the
// exact same name.
func (s *Service) IsTaken(ctx context.Context, field models.Field, value string) (bool, error) {
	if !field.IsValid() {
		return false, dErrors.New(dErrors.CodeBadRequest, "unknown field").
			WithFields(map[string]string{"field": "must be teamName, transactionId or leaderRegNo"})
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return false, dErrors.New(dErrors.CodeBadRequest, "value is required")
	}

	ctx, span := s.tracer.Start(ctx, "registration.IsTaken", trace.WithAttributes(
		attribute.String("registration.field", field.String()),
	))
	defer span.End()

	start := time.Now()
	taken, err := s.lookup(ctx, field, value)
	s.observeLookup(field, start)
	if err != nil {
		s.incrementAvailabilityCheck(field, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		s.logger.WarnContext(ctx, "availability lookup failed",
			"field", field,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return false, translateStoreError(err)
	}

	result := "available"
	if taken {
		result = "taken"
	}
	s.incrementAvailabilityCheck(field, result)
	span.SetAttributes(attribute.Bool("registration.taken", taken))
	return taken, nil
}

func (s *Service) lookup(ctx context.Context, field models.Field, value string) (bool, error) {
	if field != models.FieldTeamName {
		return s.store.ExistsByField(ctx, field, value)
	}

	var byKey, byName bool
	g, gctx := errgroup.WithContext(ctx)
	if key := models.RegistrationKey(value); key != "" {
		g.Go(func() error {
			_, err := s.store.FindByKey(gctx, key)
			switch {
			case err == nil:
				byKey = true
			case errors.Is(err, sentinel.ErrNotFound):
			default:
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		exists, err := s.store.ExistsByField(gctx, models.FieldTeamName, value)
		byName = exists
		return err
	})
	if err := g.Wait(); err != nil {
		return false, err
	}
	return byKey || byName, nil
}

// Submit validates the draft, compresses its screenshot and commits the
// resulting document. The returned record carries the compressed screenshot.
func (s *Service) Submit(ctx context.Context, draft models.Draft) (*models.Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registration.Submit")
	defer span.End()

	if errs := validation.Registration(draft, nil); len(errs) > 0 {
		s.incrementCommit("invalid")
		span.SetStatus(codes.Error, "validation failed")
		return nil, errs.Err()
	}

	start := time.Now()
	screenshot, err := s.compressor.Compress(ctx, draft.Payment.Screenshot)
	s.observeCompress(start)
	if err != nil {
		s.incrementCommit("encoding_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "screenshot rejected")
		return nil, err
	}

	reg := newRegistration(draft, screenshot, requestcontext.Now(ctx))
	span.SetAttributes(attribute.String("registration.key", reg.ID))

	if err := s.commit(ctx, reg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, err
	}
	return reg, nil
}

func newRegistration(d models.Draft, screenshot string, at time.Time) *models.Registration {
	teamName := strings.TrimSpace(d.TeamName)
	reg := &models.Registration{
		ID:         models.RegistrationKey(teamName),
		TeamName:   teamName,
		TeamLeader: d.TeamLeader.Normalized(),
		Payment: models.Payment{
			TransactionID: strings.TrimSpace(d.Payment.TransactionID),
			Screenshot:    screenshot,
		},
		SubmittedAt: at.UTC(),
	}
	for i, m := range d.Members {
		reg.Members[i] = m.Normalized()
	}
	return reg
}

// List returns registrations newest first. A non-empty query keeps documents
// whose team name, leader name, leader reg-no or transaction id contains it,
// ignoring case.
func (s *Service) List(ctx context.Context, query string) ([]*models.Registration, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, translateStoreError(err)
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return all, nil
	}
	out := make([]*models.Registration, 0, len(all))
	for _, reg := range all {
		if matches(reg, query) {
			out = append(out, reg)
		}
	}
	return out, nil
}

func matches(reg *models.Registration, lowerQuery string) bool {
	for _, v := range []string{
		reg.TeamName,
		reg.TeamLeader.Name,
		reg.TeamLeader.RegNo,
		reg.Payment.TransactionID,
	} {
		if strings.Contains(strings.ToLower(v), lowerQuery) {
			return true
		}
	}
	return false
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return translateStoreError(err)
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action audit.Action, subject string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	args := append(attributes, "subject", subject, "request_id", requestID, "event", action, "log_type", "audit")
	s.logger.InfoContext(ctx, string(action), args...)
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{Action: action, Subject: subject}
	for i := 0; i+1 < len(attributes); i += 2 {
		v, _ := attributes[i+1].(string)
		switch attributes[i] {
		case "decision":
			event.Decision = v
		case "reason":
			event.Reason = v
		}
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", action, "error", err)
	}
}

func (s *Service) incrementCommit(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementCommit(outcome)
	}
}

func (s *Service) incrementAvailabilityCheck(field models.Field, result string) {
	if s.metrics != nil {
		s.metrics.IncrementAvailabilityCheck(field.String(), result)
	}
}

func (s *Service) observeLookup(field models.Field, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveLookup(field.String(), start)
	}
}

func (s *Service) observeCompress(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCompress(start)
	}
}

func (s *Service) observeCommit(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCommit(start)
	}
}
