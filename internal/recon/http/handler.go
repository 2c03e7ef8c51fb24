// Package reconhttp exposes reconciliation reports over the JSON API.
package reconhttp

import (
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/recon"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// Handler wires reconciliation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *recon.Service
	jobs     *jobs.Client
	validate *validator.Validate
}

// NewHandler constructs the handler. The jobs client may be nil; snapshot
// triggers then stay pending until the nightly sweep picks them up.
func NewHandler(logger *slog.Logger, service *recon.Service, jobsClient *jobs.Client) *Handler {
	return &Handler{logger: logger, service: service, jobs: jobsClient, validate: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/recon", func(r chi.Router) {
		r.Get("/margins/{period}", h.margins)
		r.Get("/snapshots", h.listSnapshots)
		r.Post("/snapshots", h.triggerSnapshot)
		r.Get("/snapshots/{id}", h.showSnapshot)
		r.Get("/{module}/{period}", h.report)
		r.Get("/{module}/{period}/export", h.exportReport)
	})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	module, period, ok := h.params(w, r)
	if !ok {
		return
	}
	dims, ok := h.dimensionFilter(w, r)
	if !ok {
		return
	}
	report, err := h.service.Reconcile(r.Context(), module, period, dims...)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// dimensionFilter parses repeated ?dimension= query values.
func (h *Handler) dimensionFilter(w http.ResponseWriter, r *http.Request) ([]int64, bool) {
	var dims []int64
	for _, raw := range r.URL.Query()["dimension"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Dimension", "dimension must be a non-negative integer")
			return nil, false
		}
		dims = append(dims, id)
	}
	return dims, true
}

func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request) {
	module, period, ok := h.params(w, r)
	if !ok {
		return
	}
	report, err := h.service.Reconcile(r.Context(), module, period)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="recon-`+string(module)+`-`+period.String()+`.csv"`)
	writer := csv.NewWriter(w)
	for _, row := range recon.ExportRows(report) {
		if err := writer.Write(row); err != nil {
			h.logger.Warn("recon export", slog.Any("error", err))
			return
		}
	}
	writer.Flush()
}

func (h *Handler) margins(w http.ResponseWriter, r *http.Request) {
	period, err := shared.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	rows, err := h.service.GrossMargins(r.Context(), period)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period": period.String(), "margins": rows})
}

type triggerRequest struct {
	Module string `json:"module" validate:"required"`
	Period string `json:"period" validate:"required"`
	UserID int64  `json:"user_id" validate:"required,gt=0"`
}

func (h *Handler) triggerSnapshot(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	period, err := shared.ParsePeriod(req.Period)
	if err != nil {
		h.respondError(w, err)
		return
	}
	snapshot, err := h.service.TriggerSnapshot(r.Context(), recon.SnapshotRequest{
		Module:  ledger.SourceModule(req.Module),
		Period:  period,
		ActorID: req.UserID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if h.jobs != nil {
		if _, err := h.jobs.EnqueueReconSnapshot(r.Context(), snapshot.ID); err != nil {
			h.logger.Warn("enqueue recon snapshot", slog.Int64("snapshot_id", snapshot.ID), slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusAccepted, snapshotView(snapshot))
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snapshots, err := h.service.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(snapshots))
	for _, snap := range snapshots {
		views = append(views, snapshotView(snap))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"snapshots": views})
}

func (h *Handler) showSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Snapshot ID", "snapshot id must be numeric")
		return
	}
	snapshot, err := h.service.GetSnapshot(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	view := snapshotView(snapshot)
	view["payload"] = snapshot.Payload
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) params(w http.ResponseWriter, r *http.Request) (ledger.SourceModule, shared.Period, bool) {
	module := ledger.SourceModule(chi.URLParam(r, "module"))
	if !module.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Unknown Module", "module must be one of SALES, PURCHASES, MANUFACTURING, BANKING, VAT")
		return "", shared.Period{}, false
	}
	period, err := shared.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		h.respondError(w, err)
		return "", shared.Period{}, false
	}
	return module, period, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidPeriod):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period", err.Error())
	case errors.Is(err, recon.ErrUnknownModule):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Module", err.Error())
	case errors.Is(err, recon.ErrSnapshotNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "snapshot not found")
	default:
		h.logger.Error("recon request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func snapshotView(snap recon.Snapshot) map[string]any {
	return map[string]any{
		"id":           snap.ID,
		"module":       snap.Module,
		"period":       snap.Period.String(),
		"status":       snap.Status,
		"triggered_by": snap.TriggeredBy,
		"error":        snap.Error,
		"generated_at": snap.GeneratedAt,
		"created_at":   snap.CreatedAt,
	}
}
