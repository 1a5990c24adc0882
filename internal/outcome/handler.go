package outcome

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"PulseJoin/internal/gateway"
	"PulseJoin/internal/metrics"
	"PulseJoin/internal/models"
)

const (
	DefaultCooldown     = 5 * time.Minute
	DefaultAlertTimeout = 30 * time.Second
)

// HealthStore persists instance health. Every method is a single atomic
// update of one instance row.
type HealthStore interface {
	RecordSuccess(ctx context.Context, instanceID string) error
	RecordRateLimited(ctx context.Context, instanceID string, cooldownUntil time.Time) error
	RecordBanned(ctx context.Context, instanceID string) error
	RecordError(ctx context.Context, instanceID string) error
	AppendOutcomeLog(ctx context.Context, entry models.OutcomeLog) error
}

// Alerter is told when an instance needs operator intervention.
type Alerter interface {
	InstanceBlocked(ctx context.Context, inst models.Instance, reason string) error
}

type Handler struct {
	Store    HealthStore
	Alerter  Alerter
	Log      *zap.Logger
	Cooldown time.Duration
	Now      func() time.Time

	// AlertTimeout bounds one alert delivery, retries included.
	AlertTimeout time.Duration

	alerts sync.WaitGroup
}

func NewHandler(store HealthStore, alerter Alerter, cooldown time.Duration, log *zap.Logger) *Handler {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Handler{
		Store:    store,
		Alerter:  alerter,
		Log:      log,
		Cooldown:     cooldown,
		Now:          time.Now,
		AlertTimeout: DefaultAlertTimeout,
	}
}

// Apply classifies res and records its effect on the instance. Store
// failures are logged and swallowed: stale health only degrades balancing.
func (h *Handler) Apply(ctx context.Context, campaignID string, inst models.Instance, res gateway.Result) Outcome {
	out := Classify(res)
	now := h.Now()

	var err error
	switch out.Type {
	case models.OutcomeSuccess:
		err = h.Store.RecordSuccess(ctx, inst.ID)

	case models.OutcomeRateLimited:
		until := now.Add(h.Cooldown)
		err = h.Store.RecordRateLimited(ctx, inst.ID, until)
		h.Log.Warn("instance rate limited",
			zap.String("instance_id", inst.ID),
			zap.Time("cooldown_until", until),
		)

	case models.OutcomeBanned:
		err = h.Store.RecordBanned(ctx, inst.ID)
		metrics.InstancesBlocked.Inc()
		h.Log.Warn("instance blocked",
			zap.String("instance_id", inst.ID),
			zap.String("reason", out.Message),
		)
		h.alert(ctx, inst, out.Message)

	default:
		err = h.Store.RecordError(ctx, inst.ID)
	}
	if err != nil {
		h.Log.Error("failed to update instance health",
			zap.String("instance_id", inst.ID),
			zap.String("outcome", string(out.Type)),
			zap.Error(err),
		)
	}

	entry := models.OutcomeLog{
		ID:         uuid.NewString(),
		InstanceID: inst.ID,
		CampaignID: campaignID,
		Type:       out.Type,
		HTTPStatus: out.StatusCode,
		Snippet:    Snippet(res.Body, 500),
		CreatedAt:  now,
	}
	if entry.Snippet == "" && res.Err != nil {
		entry.Snippet = Snippet(res.Err.Error(), 500)
	}
	if err := h.Store.AppendOutcomeLog(ctx, entry); err != nil {
		h.Log.Error("failed to append outcome log",
			zap.String("instance_id", inst.ID),
			zap.Error(err),
		)
	}

	return out
}

// alert delivers the blocked-instance notice off the worker's path. The
// send outlives the job context but not AlertTimeout.
func (h *Handler) alert(ctx context.Context, inst models.Instance, reason string) {
	if h.Alerter == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.AlertTimeout)

	h.alerts.Add(1)
	go func() {
		defer h.alerts.Done()
		defer cancel()
		if err := h.Alerter.InstanceBlocked(actx, inst, reason); err != nil {
			h.Log.Error("failed to send blocked-instance alert",
				zap.String("instance_id", inst.ID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every pending alert has been sent or abandoned.
func (h *Handler) Wait() {
	h.alerts.Wait()
}
