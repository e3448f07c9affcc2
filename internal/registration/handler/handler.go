package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"outbreak/internal/registration/availability"
	"outbreak/internal/registration/models"
	"outbreak/internal/registration/screenshot"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/httputil"
	"outbreak/pkg/requestcontext"
)

const (
	// RegistrationPart is the multipart field carrying the JSON draft.
	RegistrationPart = "registration"
	// ScreenshotPart is the multipart file field carrying the payment proof.
	ScreenshotPart = "screenshot"

	// multipartOverhead is allowed on top of the image for the JSON part and boundaries.
	multipartOverhead = 1 << 20
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the registration operations exposed over HTTP.
type Service interface {
	IsTaken(ctx context.Context, field models.Field, value string) (bool, error)
	Submit(ctx context.Context, draft models.Draft) (*models.Registration, error)
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status string `json:"status"`
}

type AvailabilityResponse struct {
	Field  models.Field        `json:"field"`
	Value  string              `json:"value"`
	Status availability.Status `json:"status"`
}

// Handler serves registration submissions, availability lookups and the health probe.
type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

// New creates a registration Handler. maxUploadBytes caps the screenshot size.
func New(service Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = screenshot.DefaultMaxBytes
	}
	return &Handler{service: service, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Register registers the registration routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	h.RegisterLookups(r)
	h.RegisterSubmit(r)
}

// RegisterLookups mounts the read-only routes the form polls while typing.
func (h *Handler) RegisterLookups(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)
	r.Get("/registrations/availability", h.HandleAvailability)
}

func (h *Handler) RegisterSubmit(r chi.Router) {
	r.Post("/registrations", h.HandleSubmit)
}

// HandleHealth doubles as the connectivity probe run before a submission.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	field := models.Field(r.URL.Query().Get("field"))
	value := r.URL.Query().Get("value")

	taken, err := h.service.IsTaken(ctx, field, value)
	if err != nil {
		h.logError(ctx, "availability lookup failed", err)
		httputil.WriteError(w, err)
		return
	}

	status := availability.StatusAvailable
	if taken {
		status = availability.StatusTaken
	}
	httputil.WriteJSON(w, http.StatusOK, AvailabilityResponse{Field: field, Value: value, Status: status})
}

// HandleSubmit accepts a multipart form with the JSON draft in the
// "registration" part and the payment proof in the "screenshot" file part.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	draft, err := h.readDraft(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid registration request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	reg, err := h.service.Submit(ctx, *draft)
	if err != nil {
		h.logError(ctx, "registration rejected", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, reg.WithoutScreenshot())
}

func (h *Handler) readDraft(w http.ResponseWriter, r *http.Request) (*models.Draft, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "upload too large")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart form")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	raw := r.MultipartForm.Value[RegistrationPart]
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "registration part is required")
	}
	dec := json.NewDecoder(strings.NewReader(raw[0]))
	dec.DisallowUnknownFields()
	var wire draftWire
	if err := dec.Decode(&wire); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid registration part")
	}
	draft, err := wire.toDraft()
	if err != nil {
		return nil, err
	}

	file, header, err := r.FormFile(ScreenshotPart)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return draft, nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid screenshot part")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncoding, "could not read screenshot")
	}
	draft.Payment.Screenshot = &models.Screenshot{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	return draft, nil
}

// draftWire is the registration part as sent. Members decode into a slice so a
// wrong count is reported rather than truncated to the array length.
type draftWire struct {
	TeamName   string              `json:"teamName"`
	TeamLeader models.Person       `json:"teamLeader"`
	Members    []models.Person     `json:"members"`
	Payment    models.PaymentDraft `json:"payment"`
}

func (w draftWire) toDraft() (*models.Draft, error) {
	if len(w.Members) != models.MemberCount {
		return nil, dErrors.New(dErrors.CodeValidation, "registration has invalid fields").
			WithFields(map[string]string{
				string(models.RoleMember): fmt.Sprintf("Exactly %d members", models.MemberCount),
			})
	}
	draft := &models.Draft{
		TeamName:   w.TeamName,
		TeamLeader: w.TeamLeader,
		Payment:    w.Payment,
	}
	copy(draft.Members[:], w.Members)
	return draft, nil
}

// logError logs server-side failures at error level and client mistakes at warn.
func (h *Handler) logError(ctx context.Context, msg string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if de, ok := dErrors.As(err); ok && dErrors.ToHTTPStatus(de.Code) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
}
