// Package api exposes the enforcement engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/peershare/warden/internal/domain"
	"github.com/peershare/warden/internal/manager"
	"github.com/peershare/warden/internal/risk"
	"github.com/peershare/warden/internal/violation"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	manager *manager.Manager
	version string
}

// NewHandler creates a new API handler.
func NewHandler(mgr *manager.Manager, version string) *Handler {
	return &Handler{
		manager: mgr,
		version: version,
	}
}

// ---- Risk profiles ----

// CreateRiskProfile handles POST /risk-profiles.
func (h *Handler) CreateRiskProfile(w http.ResponseWriter, r *http.Request) {
	var p domain.RiskProfile
	if !decodeJSON(w, r, &p) {
		return
	}

	created, err := h.manager.CreateRiskProfile(r.Context(), &p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateRiskProfile handles PUT /risk-profiles/{productId}.
func (h *Handler) UpdateRiskProfile(w http.ResponseWriter, r *http.Request) {
	var p domain.RiskProfile
	if !decodeJSON(w, r, &p) {
		return
	}
	p.ProductID = chi.URLParam(r, "productId")

	updated, err := h.manager.UpdateRiskProfile(r.Context(), &p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// GetRiskProfile handles GET /risk-profiles/{productId}.
func (h *Handler) GetRiskProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.manager.GetRiskProfile(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListRiskProfiles handles GET /risk-profiles.
func (h *Handler) ListRiskProfiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.RiskProfileFilter{
		CategoryID:       q.Get("categoryId"),
		RiskLevel:        domain.RiskLevel(q.Get("riskLevel")),
		EnforcementLevel: domain.EnforcementLevel(q.Get("enforcementLevel")),
	}

	profiles, err := h.manager.ListRiskProfiles(r.Context(), filter, pageFrom(q.Get("limit"), q.Get("offset")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

// BulkCreateRiskProfiles handles POST /risk-profiles/bulk.
func (h *Handler) BulkCreateRiskProfiles(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profiles []*domain.RiskProfile `json:"profiles"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Profiles) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "profiles is required"})
		return
	}

	writeJSON(w, http.StatusOK, h.manager.BulkCreateRiskProfiles(r.Context(), req.Profiles))
}

// ---- Risk assessment ----

// AssessRisk handles POST /assessments.
func (h *Handler) AssessRisk(w http.ResponseWriter, r *http.Request) {
	var in risk.AssessInput
	if !decodeJSON(w, r, &in) {
		return
	}

	assessment, err := h.manager.AssessRisk(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

// BulkAssessRisk handles POST /assessments/bulk.
func (h *Handler) BulkAssessRisk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items      []risk.AssessInput `json:"items"`
		MaxWorkers int                `json:"maxWorkers,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items is required"})
		return
	}

	writeJSON(w, http.StatusOK, h.manager.BulkAssessRisk(r.Context(), req.Items, req.MaxWorkers))
}

// ---- Compliance ----

// CheckCompliance handles POST /compliance/check.
func (h *Handler) CheckCompliance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookingID string `json:"bookingId"`
		ProductID string `json:"productId"`
		RenterID  string `json:"renterId"`
		Force     bool   `json:"force,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	check, err := h.manager.CheckCompliance(r.Context(), req.BookingID, req.ProductID, req.RenterID, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// GetComplianceStatus handles GET /compliance/{bookingId}.
func (h *Handler) GetComplianceStatus(w http.ResponseWriter, r *http.Request) {
	check, err := h.manager.GetComplianceStatus(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// ExemptBooking handles POST /compliance/{bookingId}/exempt.
func (h *Handler) ExemptBooking(w http.ResponseWriter, r *http.Request) {
	check, err := h.manager.ExemptBooking(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// TriggerEnforcement handles POST /compliance/{bookingId}/enforce.
func (h *Handler) TriggerEnforcement(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.manager.TriggerEnforcement(r.Context(), chi.URLParam(r, "bookingId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// ---- Regulations ----

// CheckRegulation handles POST /regulations/check.
func (h *Handler) CheckRegulation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryID string            `json:"categoryId"`
		CountryID  string            `json:"countryId"`
		Candidate  *domain.Candidate `json:"candidate,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.manager.CheckRegulation(r.Context(), req.CategoryID, req.CountryID, req.Candidate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UpsertRegulation handles PUT /regulations.
func (h *Handler) UpsertRegulation(w http.ResponseWriter, r *http.Request) {
	var reg domain.Regulation
	if !decodeJSON(w, r, &reg) {
		return
	}

	saved, err := h.manager.UpsertRegulation(r.Context(), &reg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// GetRegulation handles GET /regulations/{categoryId}/{countryId}.
func (h *Handler) GetRegulation(w http.ResponseWriter, r *http.Request) {
	reg, err := h.manager.GetRegulation(r.Context(), chi.URLParam(r, "categoryId"), chi.URLParam(r, "countryId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ---- Violations ----

// RecordViolation handles POST /violations.
func (h *Handler) RecordViolation(w http.ResponseWriter, r *http.Request) {
	var in violation.RecordInput
	if !decodeJSON(w, r, &in) {
		return
	}

	v, err := h.manager.RecordViolation(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GetViolation handles GET /violations/{id}.
func (h *Handler) GetViolation(w http.ResponseWriter, r *http.Request) {
	v, err := h.manager.GetViolation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ListViolations handles GET /violations.
func (h *Handler) ListViolations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ViolationFilter{
		BookingID: q.Get("bookingId"),
		ProductID: q.Get("productId"),
		RenterID:  q.Get("renterId"),
		Status:    domain.ViolationStatus(q.Get("status")),
		Severity:  domain.Severity(q.Get("severity")),
		Type:      domain.ViolationType(q.Get("type")),
	}

	violations, err := h.manager.ListViolations(r.Context(), filter, pageFrom(q.Get("limit"), q.Get("offset")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"violations": violations,
		"count":      len(violations),
	})
}

// ResolveViolation handles POST /violations/{id}/resolve.
func (h *Handler) ResolveViolation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResolutionActions []string `json:"resolutionActions,omitempty"`
	}
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.manager.ResolveViolation(r.Context(), chi.URLParam(r, "id"), req.ResolutionActions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ---- Signal rules ----

// ListSignalRules handles GET /signal-rules.
func (h *Handler) ListSignalRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.manager.ListSignalRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// CreateSignalRule handles POST /signal-rules.
func (h *Handler) CreateSignalRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.SignalRule
	if !decodeJSON(w, r, &rule) {
		return
	}
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}

	saved, err := h.manager.SaveSignalRule(r.Context(), &rule)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("signal rule saved", "id", saved.ID, "name", saved.Name)
	writeJSON(w, http.StatusCreated, saved)
}

// ReloadSignalRules handles POST /signal-rules/reload.
func (h *Handler) ReloadSignalRules(w http.ResponseWriter, r *http.Request) {
	count, err := h.manager.ReloadSignalRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("signal rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "signal rules reloaded successfully",
		"count":   count,
	})
}

// ---- Stats and health ----

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	deps := h.manager.Health(r.Context())

	status := "healthy"
	for _, s := range deps {
		if s != "ok" {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"version":      h.version,
		"dependencies": deps,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ---- Helpers ----

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	return true
}

func pageFrom(limitStr, offsetStr string) domain.Page {
	var page domain.Page
	if n, err := strconv.Atoi(limitStr); err == nil {
		page.Limit = n
	}
	if n, err := strconv.Atoi(offsetStr); err == nil {
		page.Offset = n
	}
	return page.Normalize()
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrDependency):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
