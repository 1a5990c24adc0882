package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/balancer"
	"PulseJoin/internal/gateway"
	"PulseJoin/internal/metrics"
	"PulseJoin/internal/models"
	"PulseJoin/internal/outcome"
	"PulseJoin/internal/phone"
)

const DefaultPollInterval = 2 * time.Second

// CampaignStore is the processor's view of persisted campaign state.
// Every method is one atomic request; missing campaigns are reported as
// apperrors.ErrCampaignNotFound.
type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (models.Campaign, error)
	MarkStarted(ctx context.Context, id string, at time.Time) error
	TransitionStatus(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus) (bool, error)
	IncrementCounters(ctx context.Context, id string, processed, failed int) error
	FinishCampaign(ctx context.Context, id string, status models.CampaignStatus, at time.Time) (bool, error)
	SetContactStatus(ctx context.Context, campaignID, contactID string, status models.ContactStatus, detail string) error
}

type InstancePicker interface {
	Pick(ctx context.Context, req balancer.Request) (models.Instance, error)
}

type Gateway interface {
	AddParticipant(ctx context.Context, req gateway.Request) gateway.Result
}

type OutcomeRecorder interface {
	Apply(ctx context.Context, campaignID string, inst models.Instance, res gateway.Result) outcome.Outcome
}

type Config struct {
	PollInterval time.Duration
	StoreRetries int
}

// StopReason says why a run ended.
type StopReason string

const (
	StopExhausted  StopReason = "exhausted"
	StopDeleted    StopReason = "deleted"
	StopTerminated StopReason = "terminated"
	StopCancelled  StopReason = "cancelled"
)

type Result struct {
	CampaignID string
	Status     models.CampaignStatus
	Total      int
	Attempted  int
	Processed  int
	Failed     int
	Stop       StopReason
}

func (r Result) Response() models.SubmissionResponse {
	msg := fmt.Sprintf("processed %d of %d contacts, %d failed", r.Processed, r.Total, r.Failed)
	switch r.Stop {
	case StopDeleted:
		msg = "campaign deleted while processing; " + msg
	case StopTerminated:
		msg = "campaign finalized elsewhere; " + msg
	case StopCancelled:
		msg = "processing interrupted; " + msg
	}
	return models.SubmissionResponse{
		CampaignID: r.CampaignID,
		Status:     r.Status,
		TotalJobs:  r.Total,
		Processed:  r.Processed,
		Failed:     r.Failed,
		Message:    msg,
	}
}

// stopError ends every worker of a run; it never leaves Run.
type stopError struct {
	reason StopReason
}

func (e *stopError) Error() string { return "campaign stopped: " + string(e.reason) }

type Processor struct {
	campaigns CampaignStore
	picker    InstancePicker
	gateway   Gateway
	outcomes  OutcomeRecorder
	phones    phone.Normalizer
	hub       *StatusHub
	log       *zap.Logger
	cfg       Config

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	IntN  func(n int) int
}

func NewProcessor(
	campaigns CampaignStore,
	picker InstancePicker,
	gw Gateway,
	outcomes OutcomeRecorder,
	phones phone.Normalizer,
	hub *StatusHub,
	cfg Config,
	logger *zap.Logger,
) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StoreRetries < 0 {
		cfg.StoreRetries = 0
	}
	return &Processor{
		campaigns: campaigns,
		picker:    picker,
		gateway:   gw,
		outcomes:  outcomes,
		phones:    phones,
		hub:       hub,
		log:       logger,
		cfg:       cfg,
		Now:       time.Now,
		Sleep:     sleepContext,
		IntN:      rand.IntN,
	}
}

// run is the shared state of one Run call.
type run struct {
	p        *Processor
	campaign models.Campaign
	jobs     []models.JobInput
	log      *zap.Logger

	next      atomic.Int64
	attempted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	running   atomic.Bool
}

// Run drives the campaign's job list to completion. Job failures are
// counted, never returned; an error is returned only when the campaign
// cannot be run at all or the store becomes unusable mid-run.
func (p *Processor) Run(ctx context.Context, campaignID string, jobs []models.JobInput) (Result, error) {
	c, err := p.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return Result{CampaignID: campaignID}, err
	}
	if c.Status.Terminal() {
		return Result{CampaignID: campaignID, Status: c.Status, Total: len(jobs), Stop: StopTerminated},
			fmt.Errorf("campaign %s is %s: %w", campaignID, c.Status, apperrors.ErrCampaignTerminated)
	}

	if err := p.persist(ctx, func() error { return p.campaigns.MarkStarted(ctx, campaignID, p.Now()) }); err != nil {
		return Result{CampaignID: campaignID}, fmt.Errorf("mark started: %w", err)
	}

	r := &run{
		p:        p,
		campaign: c,
		jobs:     jobs,
		log:      p.log.With(zap.String("campaign_id", campaignID)),
	}
	r.log.Info("campaign processing started",
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", r.workerCount()),
		zap.String("delay_mode", string(c.Strategy.DelayMode)),
		zap.String("distribution", string(c.Strategy.Distribution)),
	)

	werr := r.startWorkers(ctx)
	res := r.result()

	var stop *stopError
	switch {
	case werr == nil:
		res.Stop = StopExhausted
	case errors.As(werr, &stop):
		res.Stop = stop.reason
	case ctx.Err() != nil:
		res.Stop = StopCancelled
		r.log.Info("campaign processing interrupted", zap.Error(ctx.Err()))
		return res, ctx.Err()
	default:
		r.log.Error("campaign processing aborted", zap.Error(werr))
		return res, werr
	}

	return r.finish(ctx, res)
}

func (r *run) result() Result {
	return Result{
		CampaignID: r.campaign.ID,
		Total:      len(r.jobs),
		Attempted:  int(r.attempted.Load()),
		Processed:  int(r.processed.Load()),
		Failed:     int(r.failed.Load()),
	}
}

// finish writes the terminal status unless the run was stopped by someone
// else; a deleted campaign gets no further writes.
func (r *run) finish(ctx context.Context, res Result) (Result, error) {
	p := r.p
	switch res.Stop {
	case StopDeleted:
		r.log.Info("campaign deleted; stopping", zap.Int("processed", res.Processed), zap.Int("failed", res.Failed))
		return res, nil
	case StopTerminated:
		res.Status = r.currentStatus(ctx)
		r.log.Info("campaign finalized elsewhere; stopping", zap.String("status", string(res.Status)))
		return res, nil
	}

	final := models.StatusCompleted
	if res.Attempted > 0 && res.Processed == 0 {
		final = models.StatusFailed
	}

	var changed bool
	err := p.persist(ctx, func() error {
		var err error
		changed, err = p.campaigns.FinishCampaign(ctx, r.campaign.ID, final, p.Now())
		return err
	})
	switch {
	case errors.Is(err, apperrors.ErrCampaignNotFound):
		res.Stop = StopDeleted
		return res, nil
	case err != nil:
		return res, fmt.Errorf("finish campaign: %w", err)
	case !changed:
		res.Stop = StopTerminated
		res.Status = r.currentStatus(ctx)
		return res, nil
	}

	res.Status = final
	metrics.CampaignsFinished.WithLabelValues(string(final)).Inc()
	r.log.Info("campaign processing finished",
		zap.String("status", string(final)),
		zap.Int("total", res.Total),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (r *run) currentStatus(ctx context.Context) models.CampaignStatus {
	c, err := r.p.campaigns.GetCampaign(ctx, r.campaign.ID)
	if err != nil {
		return ""
	}
	return c.Status
}

// persist retries transient store failures. A missing campaign is final.
func (p *Processor) persist(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, apperrors.ErrCampaignNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.StoreRetries)), ctx))
}
