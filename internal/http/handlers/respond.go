package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfman30/hospital-bed-platform/internal/alerts"
	"github.com/wolfman30/hospital-bed-platform/internal/allocation"
	"github.com/wolfman30/hospital-bed-platform/internal/audit"
	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	"github.com/wolfman30/hospital-bed-platform/internal/discharge"
	"github.com/wolfman30/hospital-bed-platform/internal/scoring"
	"github.com/wolfman30/hospital-bed-platform/internal/workflow"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scoring.ErrInvalidInput),
		errors.Is(err, beds.ErrMissingPatientID),
		errors.Is(err, beds.ErrInvalidSeverity),
		errors.Is(err, beds.ErrInvalidAge),
		errors.Is(err, workflow.ErrMissingPatientID),
		errors.Is(err, alerts.ErrMissingActor):
		return http.StatusBadRequest
	case errors.Is(err, beds.ErrPatientNotFound),
		errors.Is(err, beds.ErrBedNotFound),
		errors.Is(err, workflow.ErrWorkflowNotFound),
		errors.Is(err, alerts.ErrAlertNotFound),
		errors.Is(err, audit.ErrRecommendationNotFound):
		return http.StatusNotFound
	case errors.Is(err, scoring.ErrNoCandidate),
		errors.Is(err, workflow.ErrAlreadyFinished),
		errors.Is(err, alerts.ErrAlreadyResolved),
		errors.Is(err, allocation.ErrPatientAdmitted),
		errors.Is(err, allocation.ErrBedStatusConflict),
		errors.Is(err, discharge.ErrNotAdmitted):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
