package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/homeconf/regbot/pkg/scheduler"
)

// Lottery is the part of the lottery service driven by timers.
type Lottery interface {
	CloseByTimer(ctx context.Context, eventID int64) error
	ExpireInvitation(ctx context.Context, registrationID int64) error
}

// Dispatcher routes due scheduler jobs to the lottery service.
type Dispatcher struct {
	lottery Lottery
	logger  *zap.Logger
}

// NewDispatcher creates a job dispatcher.
func NewDispatcher(l Lottery, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{lottery: l, logger: logger}
}

// Process executes one job. It satisfies scheduler.Handler.
func (d *Dispatcher) Process(ctx context.Context, job *scheduler.Job) error {
	switch job.Type {
	case scheduler.JobTypeCloseRegistration:
		var payload scheduler.ClosePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if err := d.lottery.CloseByTimer(ctx, payload.EventID); err != nil {
			return fmt.Errorf("close event %d: %w", payload.EventID, err)
		}
		d.logger.Info("automatic close processed", zap.Int64("event_id", payload.EventID))
	case scheduler.JobTypeInvitationTimeout:
		var payload scheduler.InvitationTimeoutPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if err := d.lottery.ExpireInvitation(ctx, payload.RegistrationID); err != nil {
			return fmt.Errorf("expire invitation %d: %w", payload.RegistrationID, err)
		}
		d.logger.Info("invitation timeout processed", zap.Int64("registration_id", payload.RegistrationID))
	default:
		// Unknown jobs would fail forever; drop them instead of retrying.
		d.logger.Warn("unknown job type dropped", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	}
	return nil
}

// Run drives the scheduler poll loop until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, s *scheduler.Scheduler) {
	d.logger.Info("timer worker started")
	s.Run(ctx, d.Process)
	d.logger.Info("timer worker stopping")
}
