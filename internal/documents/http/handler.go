// Package documentshttp exposes source document intake and lookup over the
// JSON API. Posting itself lives on the posting routes.
package documentshttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/documents"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires the source document endpoints.
type Handler struct {
	logger   *slog.Logger
	repo     documents.Repository
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, repo documents.Repository) *Handler {
	return &Handler{logger: logger, repo: repo, validate: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/source-documents", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
	})
}

type splitRequest struct {
	DimensionValueID int64  `json:"dimension_value_id" validate:"required,gt=0"`
	Pct              string `json:"pct" validate:"required"`
}

type costOriginRequest struct {
	ProductionOrderID string `json:"production_order_id" validate:"required,uuid"`
	Amount            string `json:"amount" validate:"required"`
	CostCenterID      *int64 `json:"cost_center_id"`
	ProjectID         *int64 `json:"project_id"`
	DepartmentID      *int64 `json:"department_id"`
}

type createRequest struct {
	Kind      string `json:"kind" validate:"required"`
	Reference string `json:"reference" validate:"required"`
	Date      string `json:"date" validate:"required"`
	BranchID  *int64 `json:"branch_id"`

	Total     string `json:"total" validate:"required"`
	Net       string `json:"net"`
	Tax       string `json:"tax"`
	Labor     string `json:"labor"`
	OutputVAT string `json:"output_vat"`
	InputVAT  string `json:"input_vat"`

	Direction string `json:"direction"`

	AccountOverrides map[string]int64 `json:"account_overrides"`

	CostCenterID *int64             `json:"cost_center_id"`
	ProjectID    *int64             `json:"project_id"`
	DepartmentID *int64             `json:"department_id"`
	Splits       []splitRequest     `json:"splits"`
	CostOrigin   *costOriginRequest `json:"cost_origin"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	doc, err := h.buildDocument(req)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Document", err.Error())
		return
	}
	created, err := h.repo.Create(r.Context(), doc)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) buildDocument(req createRequest) (documents.Document, error) {
	kind := documents.Kind(req.Kind)
	if kind.Module() == "" {
		return documents.Document{}, errors.New("unknown document kind")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return documents.Document{}, errors.New("date must be YYYY-MM-DD")
	}
	doc := documents.Document{
		ID:           uuid.New(),
		Kind:         kind,
		Reference:    req.Reference,
		Date:         date,
		BranchID:     req.BranchID,
		Direction:    documents.Direction(req.Direction),
		CostCenterID: req.CostCenterID,
		ProjectID:    req.ProjectID,
		DepartmentID: req.DepartmentID,
	}
	amounts := []struct {
		field string
		raw   string
		dst   *decimal.Decimal
	}{
		{"total", req.Total, &doc.Total},
		{"net", req.Net, &doc.Net},
		{"tax", req.Tax, &doc.Tax},
		{"labor", req.Labor, &doc.Labor},
		{"output_vat", req.OutputVAT, &doc.OutputVAT},
		{"input_vat", req.InputVAT, &doc.InputVAT},
	}
	for _, a := range amounts {
		if a.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(a.raw)
		if err != nil {
			return documents.Document{}, errors.New(a.field + " is not a valid amount")
		}
		*a.dst = v
	}
	if len(req.AccountOverrides) > 0 {
		doc.AccountOverrides = make(map[ledger.AccountRole]int64, len(req.AccountOverrides))
		for role, accountID := range req.AccountOverrides {
			doc.AccountOverrides[ledger.AccountRole(role)] = accountID
		}
	}
	for _, s := range req.Splits {
		pct, err := decimal.NewFromString(s.Pct)
		if err != nil {
			return documents.Document{}, errors.New("split pct is not a valid number")
		}
		doc.Splits = append(doc.Splits, documents.Split{DimensionValueID: s.DimensionValueID, Pct: pct})
	}
	if req.CostOrigin != nil {
		orderID, err := uuid.Parse(req.CostOrigin.ProductionOrderID)
		if err != nil {
			return documents.Document{}, errors.New("production_order_id is not a valid uuid")
		}
		amount, err := decimal.NewFromString(req.CostOrigin.Amount)
		if err != nil {
			return documents.Document{}, errors.New("cost origin amount is not a valid number")
		}
		doc.CostOrigin = &documents.CostOrigin{
			ProductionOrderID: orderID,
			Amount:            amount,
			CostCenterID:      req.CostOrigin.CostCenterID,
			ProjectID:         req.CostOrigin.ProjectID,
			DepartmentID:      req.CostOrigin.DepartmentID,
		}
	}
	return doc, nil
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a UUID")
		return
	}
	doc, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	module := ledger.SourceModule(q.Get("module"))
	if module != "" && !module.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Unknown Module", "unknown source module")
		return
	}
	status := ledger.PostingStatus(q.Get("status"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	docs, err := h.repo.List(r.Context(), module, status, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, documents.ErrDocumentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, documents.ErrReferenceTaken):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("document request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
