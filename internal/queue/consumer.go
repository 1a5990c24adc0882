// Package queue feeds campaign submissions from RabbitMQ into the
// campaign service. Messages are acknowledged manually once admission
// has either accepted or permanently rejected them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"PulseJoin/internal/apperrors"
	"PulseJoin/internal/models"
	"PulseJoin/internal/service"
)

type Submitter interface {
	Submit(ctx context.Context, sub models.Submission) (models.SubmissionResponse, error)
}

type Consumer struct {
	Service Submitter
	Log     *zap.Logger
}

// Listen dials the broker, declares the durable queue and handles
// deliveries until ctx is cancelled or the channel closes.
func (c *Consumer) Listen(ctx context.Context, url, queueName string) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.Log.Info("queue consumer started", zap.String("queue", q.Name))
	return c.Handle(ctx, msgs)
}

func (c *Consumer) Handle(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	correlationID := d.CorrelationId
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := c.Log.With(zap.String("correlation_id", correlationID))

	var sub models.Submission
	if err := json.Unmarshal(d.Body, &sub); err != nil {
		log.Warn("malformed submission dropped", zap.Error(err))
		ack(log, d)
		return
	}

	resp, err := c.Service.Submit(ctx, sub)
	switch {
	case err == nil:
		log.Info("submission accepted",
			zap.String("campaign_id", resp.CampaignID),
			zap.Int("jobs", resp.TotalJobs),
		)
		ack(log, d)
	case rejected(err):
		log.Warn("submission rejected",
			zap.String("campaign_id", sub.CampaignID),
			zap.Error(err),
		)
		ack(log, d)
	default:
		log.Error("submission failed, requeueing",
			zap.String("campaign_id", sub.CampaignID),
			zap.Error(err),
		)
		if err := d.Nack(false, true); err != nil {
			log.Error("nack failed", zap.Error(err))
		}
	}
}

// rejected reports errors that redelivery cannot fix.
func rejected(err error) bool {
	return errors.Is(err, service.ErrInvalidSubmission) ||
		errors.Is(err, apperrors.ErrQuotaExceeded) ||
		errors.Is(err, apperrors.ErrCampaignNotFound) ||
		errors.Is(err, apperrors.ErrCampaignTerminated) ||
		errors.Is(err, apperrors.ErrCampaignStarted)
}

func ack(log *zap.Logger, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}
