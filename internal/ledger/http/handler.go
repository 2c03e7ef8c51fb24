// Package ledgerhttp exposes chart of accounts, dimensions, journals and
// account mappings over the JSON API.
package ledgerhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/ledger/dimensions"
	"github.com/meridian-erp/meridian-erp/internal/ledger/journals"
	"github.com/meridian-erp/meridian-erp/internal/ledger/mappings"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires the ledger master data and journal endpoints.
type Handler struct {
	logger     *slog.Logger
	accounts   *accounts.Service
	dimensions *dimensions.Service
	journals   *journals.Service
	mappings   mappings.Repository
	validate   *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, acc *accounts.Service, dim *dimensions.Service, jrn *journals.Service, mp mappings.Repository) *Handler {
	return &Handler{logger: logger, accounts: acc, dimensions: dim, journals: jrn, mappings: mp, validate: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Post("/", h.createAccount)
		r.Get("/{id}", h.showAccount)
		r.Put("/{id}", h.updateAccount)
		r.Delete("/{id}", h.deleteAccount)
		r.Post("/{id}/activate", h.setAccountActive(true))
		r.Post("/{id}/deactivate", h.setAccountActive(false))
	})
	r.Route("/dimensions", func(r chi.Router) {
		r.Get("/", h.listDimensions)
		r.Post("/", h.createDimension)
		r.Get("/{id}/values", h.listValues)
		r.Post("/{id}/values", h.createValue)
		r.Post("/{id}/deactivate", h.deactivateDimension)
	})
	r.Route("/dimension-values/{id}", func(r chi.Router) {
		r.Put("/", h.updateValue)
		r.Delete("/", h.deleteValue)
		r.Post("/deactivate", h.deactivateValue)
	})
	r.Route("/journals", func(r chi.Router) {
		r.Get("/", h.listJournals)
		r.Get("/{id}", h.showJournal)
		r.Post("/{id}/reverse", h.reverseJournal)
	})
	r.Route("/mappings", func(r chi.Router) {
		r.Get("/{module}", h.listMappings)
		r.Put("/{module}", h.upsertMapping)
	})
}

type accountRequest struct {
	Code               string `json:"code" validate:"required"`
	Name               string `json:"name" validate:"required"`
	Type               string `json:"type" validate:"required"`
	ParentID           *int64 `json:"parent_id"`
	IFRSClass          string `json:"ifrs_class"`
	RequiresDimensions bool   `json:"requires_dimensions"`
	UserID             int64  `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.accounts.Create(r.Context(), accounts.CreateInput{
		Code:               req.Code,
		Name:               req.Name,
		Type:               ledger.AccountType(req.Type),
		ParentID:           req.ParentID,
		IFRSClass:          req.IFRSClass,
		RequiresDimensions: req.RequiresDimensions,
		ActorID:            req.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.accounts.Update(r.Context(), accounts.UpdateInput{
		ID:                 id,
		Code:               req.Code,
		Name:               req.Name,
		Type:               ledger.AccountType(req.Type),
		ParentID:           req.ParentID,
		IFRSClass:          req.IFRSClass,
		RequiresDimensions: req.RequiresDimensions,
		ActorID:            req.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) showAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	account, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := shared.ListFilters{
		Search:      q.Get("search"),
		AccountType: q.Get("type"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if active := q.Get("active"); active != "" {
		v := active == "true"
		filters.IsActive = &v
	}
	list, total, err := h.accounts.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": list, "total": total})
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), id, h.actor(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setAccountActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r)
		if !ok {
			return
		}
		var err error
		if active {
			err = h.accounts.Activate(r.Context(), id, h.actor(r))
		} else {
			err = h.accounts.Deactivate(r.Context(), id, h.actor(r))
		}
		if err != nil {
			h.respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type dimensionRequest struct {
	Code              string `json:"code" validate:"required"`
	Name              string `json:"name" validate:"required"`
	Scope             string `json:"scope"`
	Required          bool   `json:"required"`
	SupportsHierarchy bool   `json:"supports_hierarchy"`
	UserID            int64  `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) createDimension(w http.ResponseWriter, r *http.Request) {
	var req dimensionRequest
	if !h.decode(w, r, &req) {
		return
	}
	dim, err := h.dimensions.CreateDimension(r.Context(), dimensions.CreateDimensionInput{
		Code:              req.Code,
		Name:              req.Name,
		Scope:             req.Scope,
		Required:          req.Required,
		SupportsHierarchy: req.SupportsHierarchy,
		ActorID:           req.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, dim)
}

func (h *Handler) listDimensions(w http.ResponseWriter, r *http.Request) {
	dims, err := h.dimensions.ListDimensions(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"dimensions": dims})
}

func (h *Handler) deactivateDimension(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.dimensions.DeactivateDimension(r.Context(), id, h.actor(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type valueRequest struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	ParentID *int64 `json:"parent_id"`
	UserID   int64  `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) createValue(w http.ResponseWriter, r *http.Request) {
	dimensionID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if !h.decode(w, r, &req) {
		return
	}
	value, err := h.dimensions.CreateValue(r.Context(), dimensions.CreateValueInput{
		DimensionID: dimensionID,
		Code:        req.Code,
		Name:        req.Name,
		ParentID:    req.ParentID,
		ActorID:     req.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, value)
}

func (h *Handler) listValues(w http.ResponseWriter, r *http.Request) {
	dimensionID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	values, err := h.dimensions.ListValues(r.Context(), dimensionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"values": values})
}

func (h *Handler) updateValue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if !h.decode(w, r, &req) {
		return
	}
	value, err := h.dimensions.UpdateValue(r.Context(), dimensions.UpdateValueInput{
		ID:       id,
		Code:     req.Code,
		Name:     req.Name,
		ParentID: req.ParentID,
		ActorID:  req.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, value)
}

func (h *Handler) deleteValue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.dimensions.DeleteValue(r.Context(), id, h.actor(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivateValue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.dimensions.DeactivateValue(r.Context(), id, h.actor(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listJournals(w http.ResponseWriter, r *http.Request) {
	module := ledger.SourceModule(r.URL.Query().Get("module"))
	if module != "" && !module.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Unknown Module", "unknown source module")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.journals.List(r.Context(), module, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) showJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.journals.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

type reverseRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Memo   string `json:"memo"`
	Date   string `json:"date"`
}

func (h *Handler) reverseJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := ledger.ReverseInput{EntryID: id, ActorID: req.UserID, Memo: req.Memo}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
			return
		}
		input.Date = &date
	}
	entry, err := h.journals.Reverse(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type mappingRequest struct {
	Role      string `json:"role" validate:"required"`
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
}

func (h *Handler) listMappings(w http.ResponseWriter, r *http.Request) {
	module := ledger.SourceModule(chi.URLParam(r, "module"))
	if !module.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Unknown Module", "unknown source module")
		return
	}
	list, err := h.mappings.List(r.Context(), module)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mappings": list})
}

func (h *Handler) upsertMapping(w http.ResponseWriter, r *http.Request) {
	module := ledger.SourceModule(chi.URLParam(r, "module"))
	if !module.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Unknown Module", "unknown source module")
		return
	}
	var req mappingRequest
	if !h.decode(w, r, &req) {
		return
	}
	mapping := ledger.AccountMapping{Module: module, Role: ledger.AccountRole(req.Role), AccountID: req.AccountID}
	if err := h.mappings.Upsert(r.Context(), mapping); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mapping)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// actor reads the acting user from the X-User-ID header for requests
// without a body.
func (h *Handler) actor(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	return id
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrDimensionNotFound),
		errors.Is(err, ledger.ErrEntryNotFound),
		errors.Is(err, ledger.ErrMappingNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrCodeTaken),
		errors.Is(err, ledger.ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrAccountInUse),
		errors.Is(err, ledger.ErrDimensionValueInUse),
		errors.Is(err, ledger.ErrDimensionInactive),
		errors.Is(err, ledger.ErrDimensionMismatch),
		errors.Is(err, ledger.ErrHierarchyCycle),
		errors.Is(err, ledger.ErrUnbalanced),
		errors.Is(err, ledger.ErrTooFewLines),
		errors.Is(err, ledger.ErrAllocationMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error("ledger request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
