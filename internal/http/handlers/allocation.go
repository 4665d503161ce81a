package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/hospital-bed-platform/internal/alerts"
	"github.com/wolfman30/hospital-bed-platform/internal/allocation"
	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

const defaultWaitTimeout = 10 * time.Second

// AllocationHandler exposes the allocation service over HTTP.
type AllocationHandler struct {
	svc         *allocation.Service
	waitTimeout time.Duration
	logger      *logging.Logger
}

// NewAllocationHandler creates a new allocation handler.
func NewAllocationHandler(svc *allocation.Service, logger *logging.Logger) *AllocationHandler {
	if svc == nil {
		panic("handlers: allocation service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AllocationHandler{svc: svc, waitTimeout: defaultWaitTimeout, logger: logger}
}

// WithWaitTimeout caps how long a waiting assignment request blocks.
func (h *AllocationHandler) WithWaitTimeout(d time.Duration) *AllocationHandler {
	if d > 0 {
		h.waitTimeout = d
	}
	return h
}

// HealthCheck reports liveness.
func (h *AllocationHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AllocationHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	jsonError(w, msg, status)
}

// RegisterPatient handles POST /api/patients.
func (h *AllocationHandler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req beds.AdmissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	patient, err := h.svc.RegisterPatient(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, patient)
}

// Recommend handles POST /api/recommendations. An empty ranking answers 409
// with the reason no bed could be offered.
func (h *AllocationHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req beds.AdmissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := h.svc.RecommendBed(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(rec.Candidates) == 0 {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "no candidate bed",
			"reason":     rec.Reason,
			"patient_id": rec.PatientID,
			"candidates": rec.Candidates,
		})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type startAssignmentRequest struct {
	PatientID string `json:"patient_id"`
	BedID     string `json:"bed_id,omitempty"`
	Wait      bool   `json:"wait,omitempty"`
}

// StartAssignment handles POST /api/assignments. The workflow runs in the
// background and 202 is returned, unless the body asks to wait for the outcome.
func (h *AllocationHandler) StartAssignment(w http.ResponseWriter, r *http.Request) {
	var req startAssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	wf, err := h.svc.StartAssignment(r.Context(), req.PatientID, req.BedID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/assignments/"+wf.ID)
	if !req.Wait {
		writeJSON(w, http.StatusAccepted, wf)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()
	final, err := h.svc.AwaitAssignment(ctx, wf.ID)
	if err != nil {
		// Still running; the caller polls the Location.
		current, getErr := h.svc.GetWorkflow(wf.ID)
		if getErr != nil {
			h.fail(w, r, getErr)
			return
		}
		writeJSON(w, http.StatusAccepted, current)
		return
	}
	writeJSON(w, http.StatusOK, final)
}

// GetAssignment handles GET /api/assignments/{id}.
func (h *AllocationHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	wf, err := h.svc.GetWorkflow(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// CancelAssignment handles POST /api/assignments/{id}/cancel.
func (h *AllocationHandler) CancelAssignment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()
	wf, err := h.svc.CancelWorkflow(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// ListAssignments handles GET /api/assignments, newest outcomes first.
func (h *AllocationHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.RecentOutcomes(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": entries})
}

// ListBeds handles GET /api/beds?ward=.
func (h *AllocationHandler) ListBeds(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListBeds(r.Context(), strings.TrimSpace(r.URL.Query().Get("ward")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"beds": list})
}

// ListAlerts handles GET /api/alerts.
func (h *AllocationHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeResolved, _ := strconv.ParseBool(q.Get("include_resolved"))
	list, err := h.svc.ListAlerts(r.Context(), alerts.ListFilter{
		IncludeResolved: includeResolved,
		Department:      strings.TrimSpace(q.Get("department")),
		Limit:           queryInt(r, "limit", 0),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": list})
}

// SweepAlerts handles POST /api/alerts/sweep.
func (h *AllocationHandler) SweepAlerts(w http.ResponseWriter, r *http.Request) {
	active, err := h.svc.SweepAlerts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": active})
}

type actionRequest struct {
	By     string `json:"by"`
	Reason string `json:"reason,omitempty"`
}

// readAction takes the actor from X-Actor, falling back to the body.
func readAction(w http.ResponseWriter, r *http.Request) (actionRequest, bool) {
	var req actionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return req, false
		}
	}
	if by := strings.TrimSpace(r.Header.Get("X-Actor")); by != "" {
		req.By = by
	}
	req.By = strings.TrimSpace(req.By)
	return req, true
}

func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	req, ok := readAction(w, r)
	return req.By, ok
}

// AcknowledgeAlert handles POST /api/alerts/{id}/acknowledge.
func (h *AllocationHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	by, ok := actor(w, r)
	if !ok {
		return
	}
	a, err := h.svc.AcknowledgeAlert(r.Context(), chi.URLParam(r, "id"), by)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ResolveAlert handles POST /api/alerts/{id}/resolve.
func (h *AllocationHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	by, ok := actor(w, r)
	if !ok {
		return
	}
	a, err := h.svc.ResolveAlert(r.Context(), chi.URLParam(r, "id"), by)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DischargePatient handles POST /api/patients/{id}/discharge.
func (h *AllocationHandler) DischargePatient(w http.ResponseWriter, r *http.Request) {
	by, ok := actor(w, r)
	if !ok {
		return
	}
	patient, err := h.svc.DischargePatient(r.Context(), chi.URLParam(r, "id"), by)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// CompleteCleaning handles POST /api/beds/{id}/cleaned.
func (h *AllocationHandler) CompleteCleaning(w http.ResponseWriter, r *http.Request) {
	by, ok := actor(w, r)
	if !ok {
		return
	}
	bed, err := h.svc.CompleteCleaning(r.Context(), chi.URLParam(r, "id"), by)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bed)
}

// StartMaintenance handles POST /api/beds/{id}/maintenance.
func (h *AllocationHandler) StartMaintenance(w http.ResponseWriter, r *http.Request) {
	req, ok := readAction(w, r)
	if !ok {
		return
	}
	bed, err := h.svc.StartMaintenance(r.Context(), chi.URLParam(r, "id"), req.By, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bed)
}

// EndMaintenance handles DELETE /api/beds/{id}/maintenance.
func (h *AllocationHandler) EndMaintenance(w http.ResponseWriter, r *http.Request) {
	by, ok := actor(w, r)
	if !ok {
		return
	}
	bed, err := h.svc.EndMaintenance(r.Context(), chi.URLParam(r, "id"), by)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bed)
}

// DischargeEstimate handles GET /api/patients/{id}/discharge-estimate.
func (h *AllocationHandler) DischargeEstimate(w http.ResponseWriter, r *http.Request) {
	est, err := h.svc.EstimateDischarge(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// DashboardSummary handles GET /api/dashboard/summary.
func (h *AllocationHandler) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.DashboardSummary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
