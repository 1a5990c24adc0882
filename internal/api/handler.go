package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/models"
	"PulseJoin/internal/service"
)

type CampaignService interface {
	Submit(ctx context.Context, sub models.Submission) (models.SubmissionResponse, error)
	Pause(ctx context.Context, id string) (models.Campaign, error)
	Resume(ctx context.Context, id string) (models.Campaign, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (models.Campaign, error)
	CreateInstance(ctx context.Context, userID string, inst models.Instance) (models.Instance, error)
}

type Handler struct {
	Service CampaignService
	Log     *zap.Logger
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/campaigns/{id}", h.GetCampaign)
	r.Delete("/campaigns/{id}", h.DeleteCampaign)
	r.Post("/campaigns/{id}/process", h.ProcessCampaign)
	r.Post("/campaigns/{id}/pause", h.PauseCampaign)
	r.Post("/campaigns/{id}/resume", h.ResumeCampaign)
	r.Post("/users/{userID}/instances", h.CreateInstance)

	return r
}

// ProcessCampaign accepts a contact batch. The campaign id in the path
// wins over one in the body.
func (h *Handler) ProcessCampaign(w http.ResponseWriter, r *http.Request) {
	var sub models.Submission

	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	sub.CampaignID = chi.URLParam(r, "id")

	resp, err := h.Service.Submit(r.Context(), sub)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		APIKey     string `json:"api_key"`
		BaseURL    string `json:"base_url"`
		DailyLimit *int   `json:"daily_limit,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	inst, err := h.Service.CreateInstance(r.Context(), chi.URLParam(r, "userID"), models.Instance{
		ID:         payload.ID,
		Name:       payload.Name,
		APIKey:     payload.APIKey,
		BaseURL:    payload.BaseURL,
		DailyLimit: payload.DailyLimit,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var quota *apperrors.QuotaError
	var capErr *apperrors.InstanceCapError

	switch {
	case errors.As(err, &quota):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":     err.Error(),
			"limit":     quota.Limit,
			"used":      quota.Used,
			"remaining": quota.Remaining(),
			"resets_at": quota.ResetsAt,
		})
	case errors.As(err, &capErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  err.Error(),
			"limit":  capErr.Limit,
			"active": capErr.Active,
		})
	case errors.Is(err, service.ErrInvalidSubmission):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, apperrors.ErrCampaignNotFound), errors.Is(err, apperrors.ErrInstanceNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, apperrors.ErrCampaignTerminated), errors.Is(err, apperrors.ErrCampaignStarted),
		errors.Is(err, apperrors.ErrInstanceExists):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	default:
		h.Log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
