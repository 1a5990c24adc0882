package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/models"
	"PulseJoin/internal/ratelimit"
	"PulseJoin/internal/worker"
)

var ErrInvalidSubmission = errors.New("invalid submission")

type Store interface {
	worker.CampaignStore
	PrepareCampaign(ctx context.Context, id string, total int) error
	DeleteCampaign(ctx context.Context, id string) error
	CreateInstance(ctx context.Context, inst models.Instance) error
}

type Runner interface {
	Run(ctx context.Context, campaignID string, jobs []models.JobInput) (worker.Result, error)
}

// CampaignService admits campaign submissions and relays pause, resume
// and delete requests to running processors.
type CampaignService struct {
	store   Store
	limiter *ratelimit.Limiter
	runner  Runner
	hub     *worker.StatusHub
	log     *zap.Logger

	// runCtx outlives individual requests; cancelling it interrupts runs.
	runCtx context.Context

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

func New(runCtx context.Context, store Store, limiter *ratelimit.Limiter, runner Runner, hub *worker.StatusHub, log *zap.Logger) *CampaignService {
	return &CampaignService{
		store:   store,
		limiter: limiter,
		runner:  runner,
		hub:     hub,
		log:     log,
		runCtx:  runCtx,
		active:  make(map[string]struct{}),
	}
}

// Submit admits the batch and processes it in the background.
func (s *CampaignService) Submit(ctx context.Context, sub models.Submission) (models.SubmissionResponse, error) {
	c, err := s.admit(ctx, sub)
	if err != nil {
		return models.SubmissionResponse{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(sub.CampaignID)
		s.run(s.runCtx, sub)
	}()

	return models.SubmissionResponse{
		CampaignID: sub.CampaignID,
		Status:     c.Status,
		TotalJobs:  len(sub.Jobs),
		Message:    "campaign accepted for processing",
	}, nil
}

// Process admits the batch and blocks until the run ends.
func (s *CampaignService) Process(ctx context.Context, sub models.Submission) (models.SubmissionResponse, error) {
	if _, err := s.admit(ctx, sub); err != nil {
		return models.SubmissionResponse{}, err
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.release(sub.CampaignID)

	res, err := s.run(ctx, sub)
	return res.Response(), err
}

func (s *CampaignService) run(ctx context.Context, sub models.Submission) (worker.Result, error) {
	res, err := s.runner.Run(ctx, sub.CampaignID, sub.Jobs)
	if err != nil {
		s.log.Error("campaign run ended with error",
			zap.String("campaign_id", sub.CampaignID),
			zap.String("stop", string(res.Stop)),
			zap.Error(err),
		)
		return res, err
	}
	s.log.Info("campaign run ended",
		zap.String("campaign_id", sub.CampaignID),
		zap.String("stop", string(res.Stop)),
		zap.String("status", string(res.Status)),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// admit validates the submission and runs the owner's quota gate. A batch
// that does not fit entirely is rejected before any job is attempted.
func (s *CampaignService) admit(ctx context.Context, sub models.Submission) (models.Campaign, error) {
	if sub.CampaignID == "" || sub.UserID == "" {
		return models.Campaign{}, fmt.Errorf("%w: campaignId and userId are required", ErrInvalidSubmission)
	}
	if len(sub.Jobs) == 0 {
		return models.Campaign{}, fmt.Errorf("%w: no jobs", ErrInvalidSubmission)
	}

	c, err := s.store.GetCampaign(ctx, sub.CampaignID)
	if err != nil {
		return models.Campaign{}, err
	}
	if c.OwnerID != sub.UserID {
		return models.Campaign{}, fmt.Errorf("%w: campaign %s does not belong to user %s", ErrInvalidSubmission, c.ID, sub.UserID)
	}
	if c.Status.Terminal() {
		return models.Campaign{}, fmt.Errorf("campaign %s is %s: %w", c.ID, c.Status, apperrors.ErrCampaignTerminated)
	}
	if c.Processed+c.Failed > 0 {
		return models.Campaign{}, fmt.Errorf("campaign %s: %w", c.ID, apperrors.ErrCampaignStarted)
	}

	s.mu.Lock()
	if _, running := s.active[c.ID]; running {
		s.mu.Unlock()
		return models.Campaign{}, fmt.Errorf("campaign %s: %w", c.ID, apperrors.ErrCampaignStarted)
	}
	s.active[c.ID] = struct{}{}
	s.mu.Unlock()

	if _, err := s.limiter.CheckDailyQuota(ctx, c.OwnerID, len(sub.Jobs)); err != nil {
		s.release(c.ID)
		s.log.Warn("submission rejected",
			zap.String("campaign_id", c.ID),
			zap.String("user_id", sub.UserID),
			zap.Int("jobs", len(sub.Jobs)),
			zap.Error(err),
		)
		return models.Campaign{}, err
	}

	if err := s.store.PrepareCampaign(ctx, c.ID, len(sub.Jobs)); err != nil {
		s.release(c.ID)
		return models.Campaign{}, fmt.Errorf("prepare campaign: %w", err)
	}
	c.Total = len(sub.Jobs)
	return c, nil
}

func (s *CampaignService) release(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Pause is a no-op for a campaign that is already paused.
func (s *CampaignService) Pause(ctx context.Context, id string) (models.Campaign, error) {
	return s.transition(ctx, id,
		[]models.CampaignStatus{models.StatusPending, models.StatusRunning}, models.StatusPaused)
}

// Resume is a no-op for a campaign that is already pending or running.
func (s *CampaignService) Resume(ctx context.Context, id string) (models.Campaign, error) {
	return s.transition(ctx, id, []models.CampaignStatus{models.StatusPaused}, models.StatusRunning)
}

func (s *CampaignService) transition(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (models.Campaign, error) {
	changed, err := s.store.TransitionStatus(ctx, id, from, to)
	if err != nil {
		return models.Campaign{}, err
	}
	if changed {
		s.hub.Notify(id)
		s.log.Info("campaign status changed", zap.String("campaign_id", id), zap.String("status", string(to)))
	}

	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return models.Campaign{}, err
	}
	if !changed && c.Status.Terminal() {
		return c, fmt.Errorf("campaign %s is %s: %w", id, c.Status, apperrors.ErrCampaignTerminated)
	}
	return c, nil
}

// Delete removes the campaign; a running processor stops at its next check.
func (s *CampaignService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteCampaign(ctx, id); err != nil {
		return err
	}
	s.hub.Notify(id)
	s.log.Info("campaign deleted", zap.String("campaign_id", id))
	return nil
}

func (s *CampaignService) Get(ctx context.Context, id string) (models.Campaign, error) {
	return s.store.GetCampaign(ctx, id)
}

// CreateInstance registers a new sending instance after the cap check.
func (s *CampaignService) CreateInstance(ctx context.Context, userID string, inst models.Instance) (models.Instance, error) {
	if userID == "" || inst.Name == "" {
		return models.Instance{}, fmt.Errorf("%w: user and instance name are required", ErrInvalidSubmission)
	}
	if err := s.limiter.CheckInstanceCap(ctx, userID); err != nil {
		return models.Instance{}, err
	}

	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	inst.OwnerID = userID
	inst.Active = true
	inst.Health = models.HealthOK

	if err := s.store.CreateInstance(ctx, inst); err != nil {
		return models.Instance{}, fmt.Errorf("create instance: %w", err)
	}
	return inst, nil
}

// Wait blocks until every background run has returned.
func (s *CampaignService) Wait() {
	s.wg.Wait()
}
