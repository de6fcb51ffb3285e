// Package handler provides HTTP handlers for the subjectdesk API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/subjectdesk/subjectdesk/internal/api/models"
	"github.com/subjectdesk/subjectdesk/internal/api/response"
	"github.com/subjectdesk/subjectdesk/internal/resilience"
)

// Pinger checks that a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig holds configuration for the ops handler.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Stores are pinged by the readiness and status checks, keyed by name.
	Stores map[string]Pinger

	// Dependencies reports upstream health. Optional.
	Dependencies *resilience.Registry
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready - ready once every store answers.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkStores(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			health.Status = models.HealthStatusFail
			health.Details = map[string]interface{}{"failing": s.Name}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - store and upstream status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:       models.HealthStatusOK,
		Time:         models.Timestamp(time.Now()),
		Subsystems:   h.checkStores(r.Context()),
		Dependencies: []models.DependencyStatus{},
	}

	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusFail
		}
	}

	if h.cfg.Dependencies != nil {
		for _, dep := range h.cfg.Dependencies.All() {
			ds := models.DependencyStatus{Name: dep.Name}
			switch dep.Status() {
			case "ok":
				ds.Status = models.HealthStatusOK
			case "degraded":
				ds.Status = models.HealthStatusDegraded
			default:
				ds.Status = models.HealthStatusFail
			}
			if dep.LastSuccessAt != nil {
				ts := models.Timestamp(*dep.LastSuccessAt)
				ds.LastSuccessAt = &ts
			}
			if dep.LastFailureAt != nil {
				ts := models.Timestamp(*dep.LastFailureAt)
				ds.LastFailureAt = &ts
			}
			if dep.LastError != "" {
				msg := dep.LastError
				ds.Message = &msg
			}
			if ds.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Dependencies = append(status.Dependencies, ds)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) checkStores(ctx context.Context) []models.SubsystemStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out := make([]models.SubsystemStatus, 0, len(h.cfg.Stores))
	for _, name := range sortedKeys(h.cfg.Stores) {
		s := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		if err := h.cfg.Stores[name].Ping(ctx); err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}
