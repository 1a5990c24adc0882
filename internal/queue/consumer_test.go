package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/models"
)

type ackRecord struct {
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

type fakeAcknowledger struct {
	mu  sync.Mutex
	rec ackRecord
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec.acked = append(a.rec.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec.nacked = append(a.rec.nacked, tag)
	a.rec.requeue = append(a.rec.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeSubmitter struct {
	errs map[string]error
	got  []models.Submission
}

func (f *fakeSubmitter) Submit(ctx context.Context, sub models.Submission) (models.SubmissionResponse, error) {
	f.got = append(f.got, sub)
	if err := f.errs[sub.CampaignID]; err != nil {
		return models.SubmissionResponse{}, err
	}
	return models.SubmissionResponse{CampaignID: sub.CampaignID, TotalJobs: len(sub.Jobs)}, nil
}

func TestHandleAcknowledgement(t *testing.T) {
	ackr := &fakeAcknowledger{}
	svc := &fakeSubmitter{errs: map[string]error{
		"quota":     &apperrors.QuotaError{UserID: "u1", Limit: 1, Requested: 2},
		"transient": errors.New("connection reset"),
	}}
	c := &Consumer{Service: svc, Log: zap.NewNop()}

	bodies := []string{
		`{"campaignId":"ok","userId":"u1","jobs":[{"contactId":"a","phone":"1"}]}`,
		`not json`,
		`{"campaignId":"quota","userId":"u1"}`,
		`{"campaignId":"transient","userId":"u1"}`,
	}
	msgs := make(chan amqp.Delivery, len(bodies))
	for i, b := range bodies {
		msgs <- amqp.Delivery{Acknowledger: ackr, DeliveryTag: uint64(i + 1), Body: []byte(b)}
	}
	close(msgs)

	if err := c.Handle(context.Background(), msgs); err == nil {
		t.Fatal("expected error once the channel closes")
	}

	if len(svc.got) != 3 {
		t.Errorf("submitted %d messages, want 3", len(svc.got))
	}
	if got := ackr.rec.acked; len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("acked = %v", got)
	}
	if got := ackr.rec.nacked; len(got) != 1 || got[0] != 4 || !ackr.rec.requeue[0] {
		t.Errorf("nacked = %v requeue = %v", got, ackr.rec.requeue)
	}
}

func TestHandleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Consumer{Service: &fakeSubmitter{}, Log: zap.NewNop()}
	if err := c.Handle(ctx, make(chan amqp.Delivery)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
