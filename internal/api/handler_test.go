package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/models"
	"PulseJoin/internal/service"
)

type fakeService struct {
	submitted models.Submission
	err       error
}

func (f *fakeService) Submit(ctx context.Context, sub models.Submission) (models.SubmissionResponse, error) {
	f.submitted = sub
	if f.err != nil {
		return models.SubmissionResponse{}, f.err
	}
	return models.SubmissionResponse{CampaignID: sub.CampaignID, Status: models.StatusPending, TotalJobs: len(sub.Jobs)}, nil
}

func (f *fakeService) Pause(ctx context.Context, id string) (models.Campaign, error) {
	return models.Campaign{ID: id, Status: models.StatusPaused}, f.err
}

func (f *fakeService) Resume(ctx context.Context, id string) (models.Campaign, error) {
	return models.Campaign{ID: id, Status: models.StatusRunning}, f.err
}

func (f *fakeService) Delete(ctx context.Context, id string) error { return f.err }

func (f *fakeService) Get(ctx context.Context, id string) (models.Campaign, error) {
	if f.err != nil {
		return models.Campaign{}, f.err
	}
	return models.Campaign{ID: id, Status: models.StatusRunning, Total: 4, Processed: 2}, nil
}

func (f *fakeService) CreateInstance(ctx context.Context, userID string, inst models.Instance) (models.Instance, error) {
	inst.OwnerID = userID
	inst.ID = "generated"
	return inst, f.err
}

func serve(t *testing.T, svc *fakeService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := &Handler{Service: svc, Log: zap.NewNop()}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)
	return w
}

func TestProcessCampaignUsesPathID(t *testing.T) {
	svc := &fakeService{}
	body := `{"campaignId":"other","userId":"u1","jobs":[{"contactId":"k1","phone":"5511987654321"}]}`

	w := serve(t, svc, http.MethodPost, "/campaigns/c1/process", body)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if svc.submitted.CampaignID != "c1" || svc.submitted.UserID != "u1" || len(svc.submitted.Jobs) != 1 {
		t.Errorf("submitted = %+v", svc.submitted)
	}
	var resp models.SubmissionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalJobs != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestProcessCampaignBadBody(t *testing.T) {
	w := serve(t, &fakeService{}, http.MethodPost, "/campaigns/c1/process", "{")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestQuotaRejection(t *testing.T) {
	svc := &fakeService{err: &apperrors.QuotaError{
		UserID: "u1", Limit: 10, Used: 5, Requested: 10,
		ResetsAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}}

	w := serve(t, svc, http.MethodPost, "/campaigns/c1/process", `{"userId":"u1","jobs":[]}`)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["remaining"] != float64(5) {
		t.Errorf("remaining = %v", body["remaining"])
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		err    error
		want   int
	}{
		{"pause missing", http.MethodPost, "/campaigns/x/pause", apperrors.NewCampaignNotFound("x"), http.StatusNotFound},
		{"resume finished", http.MethodPost, "/campaigns/x/resume", apperrors.ErrCampaignTerminated, http.StatusConflict},
		{"get missing", http.MethodGet, "/campaigns/x", apperrors.NewCampaignNotFound("x"), http.StatusNotFound},
		{"delete ok", http.MethodDelete, "/campaigns/x", nil, http.StatusNoContent},
		{"instance cap", http.MethodPost, "/users/u1/instances", &apperrors.InstanceCapError{UserID: "u1", Limit: 3, Active: 3}, http.StatusConflict},
		{"invalid", http.MethodPost, "/users/u1/instances", service.ErrInvalidSubmission, http.StatusBadRequest},
		{"instance exists", http.MethodPost, "/users/u1/instances", apperrors.ErrInstanceExists, http.StatusConflict},
		{"unexpected", http.MethodGet, "/campaigns/x", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &fakeService{err: tt.err}, tt.method, tt.path, `{"name":"main"}`)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCreateInstance(t *testing.T) {
	w := serve(t, &fakeService{}, http.MethodPost, "/users/u1/instances", `{"name":"main","api_key":"secret"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Error("api key leaked in response")
	}
	var inst models.Instance
	if err := json.NewDecoder(w.Body).Decode(&inst); err != nil {
		t.Fatal(err)
	}
	if inst.OwnerID != "u1" || inst.Name != "main" {
		t.Errorf("instance = %+v", inst)
	}
}
