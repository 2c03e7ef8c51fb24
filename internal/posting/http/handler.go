// Package postinghttp exposes the posting engine over the JSON API.
package postinghttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/posting"
)

// Handler wires document posting endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *posting.Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *posting.Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/documents/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Post("/post", h.post)
	})
}

type postRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type postResponse struct {
	EntryID              int64   `json:"entry_id"`
	EntryNumber          int64   `json:"entry_number"`
	LineIDs              []int64 `json:"line_ids"`
	HasDimensionVariance bool    `json:"has_dimension_variance"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	docID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Document ID", "document id must be a UUID")
		return
	}
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Post(r.Context(), docID, req.UserID)
	if err != nil {
		h.respondPostingError(w, r, docID, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, postResponse{
		EntryID:              result.EntryID,
		EntryNumber:          result.EntryNumber,
		LineIDs:              result.LineIDs,
		HasDimensionVariance: result.HasDimensionVariance,
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	docID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Document ID", "document id must be a UUID")
		return
	}
	doc, err := h.service.GetDocument(r.Context(), docID)
	if err != nil {
		if errors.Is(err, posting.ErrDocumentNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "document not found")
			return
		}
		h.logger.Error("load document", slog.String("document_id", docID.String()), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

// respondPostingError maps the posting error taxonomy onto HTTP statuses.
// An idempotent replay is a conflict carrying the original journal ids, so
// integrations can recover them without another call.
func (h *Handler) respondPostingError(w http.ResponseWriter, r *http.Request, docID uuid.UUID, err error) {
	kind := posting.KindOf(err)
	switch kind {
	case posting.KindDocumentNotFound:
		httpx.Problem(w, http.StatusNotFound, "Not Found", "document not found")
	case posting.KindAlreadyPosted:
		var already *posting.AlreadyPostedError
		errors.As(err, &already)
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"kind":     string(kind),
			"detail":   already.Error(),
			"entry_id": already.EntryID,
			"line_ids": already.LineIDs,
		})
	case posting.KindMissingGLAccount, posting.KindInvalidDimension,
		posting.KindUnbalancedEntry, posting.KindAllocationMismatch:
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"kind":   string(kind),
			"detail": err.Error(),
		})
	default:
		h.logger.Error("post document", slog.String("document_id", docID.String()), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Posting Failed", "")
	}
}
