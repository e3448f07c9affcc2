package admin

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"outbreak/internal/registration/models"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/httputil"
	"outbreak/pkg/platform/middleware/auth"
	"outbreak/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks AdminService

// AdminService defines the admin operations exposed over HTTP.
type AdminService interface {
	CreateSession(ctx context.Context, accessKey string) (*SessionResponse, error)
	List(ctx context.Context, query string) ([]*models.Registration, error)
	Export(ctx context.Context, query string) (string, []*models.Registration, error)
}

// Handler serves the admin session, listing and export endpoints.
type Handler struct {
	service   AdminService
	validator auth.JWTValidator
	logger    *slog.Logger
}

func NewHandler(service AdminService, validator auth.JWTValidator, logger *slog.Logger) *Handler {
	return &Handler{service: service, validator: validator, logger: logger}
}

// Register registers the admin routes. Everything except session creation
// requires an admin bearer token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/session", h.HandleCreateSession)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(h.validator, h.logger))
		r.Get("/admin/registrations", h.HandleList)
		r.Get("/admin/registrations/export", h.HandleExport)
	})
}

func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[SessionRequest](r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid admin session request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	session, err := h.service.CreateSession(ctx, req.AccessKey)
	if err != nil {
		h.logger.WarnContext(ctx, "admin session refused",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regs, err := h.service.List(ctx, r.URL.Query().Get("q"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list registrations",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if regs == nil {
		regs = []*models.Registration{}
	}
	httputil.WriteJSON(w, http.StatusOK, RegistrationsListResponse{Registrations: regs, Total: len(regs)})
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filename, regs, err := h.service.Export(ctx, r.URL.Query().Get("q"))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to export registrations",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, regs); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode export",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode export"))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
