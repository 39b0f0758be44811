package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// KeyJobs is the sorted set of pending job ids scored by run-at unix milliseconds.
	KeyJobs = "scheduler:jobs"
	// KeyPayloads maps job id to the encoded Job.
	KeyPayloads = "scheduler:payloads"
	// KeyDLQ is the dead-letter list for jobs that kept failing.
	KeyDLQ = "scheduler:dlq"
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay before a failed job runs again.
	RetryBackoff = 10 * time.Second
	// DefaultPollInterval applies when NewScheduler gets a non-positive interval.
	DefaultPollInterval = time.Second

	claimBatch = 50
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeCloseRegistration JobType = "close_registration"
	JobTypeInvitationTimeout JobType = "invitation_timeout"
)

// ClosePayload is the payload for automatic registration closure.
type ClosePayload struct {
	EventID int64 `json:"event_id"`
}

// InvitationTimeoutPayload is the payload for waitlist invitation expiry.
type InvitationTimeoutPayload struct {
	RegistrationID int64 `json:"registration_id"`
}

// Job is the stored envelope. ID is deterministic per target so rescheduling replaces.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RunAt     time.Time       `json:"run_at"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Handler executes a due job. A returned error triggers a retry.
type Handler func(ctx context.Context, job *Job) error

// CloseJobID is the job id of an event's automatic closure.
func CloseJobID(eventID int64) string {
	return "close_" + strconv.FormatInt(eventID, 10)
}

// TimeoutJobID is the job id of a registration's invitation expiry.
func TimeoutJobID(registrationID int64) string {
	return "timeout_" + strconv.FormatInt(registrationID, 10)
}

// claimScript atomically pops every job due at ARGV[1], up to ARGV[2] of them.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local out = {}
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	local p = redis.call('HGET', KEYS[2], id)
	redis.call('HDEL', KEYS[2], id)
	if p then
		table.insert(out, p)
	end
end
return out
`)

// Scheduler keeps delayed jobs in Redis so they survive restarts.
type Scheduler struct {
	client *redis.Client
	poll   time.Duration
	logger *zap.Logger
}

// NewScheduler creates a Redis-backed delayed job scheduler.
func NewScheduler(client *redis.Client, poll time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Scheduler{client: client, poll: poll, logger: logger}
}

// Schedule stores job under its id, replacing any pending job with the same id.
func (s *Scheduler) Schedule(ctx context.Context, job *Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, KeyPayloads, job.ID, raw)
		p.ZAdd(ctx, KeyJobs, redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.ID, err)
	}
	s.logger.Debug("job scheduled", zap.String("job_id", job.ID), zap.Time("run_at", job.RunAt))
	return nil
}

// Cancel removes a pending job. Unknown ids are ignored.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, KeyJobs, id)
		p.HDel(ctx, KeyPayloads, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a job with id is pending.
func (s *Scheduler) Exists(ctx context.Context, id string) (bool, error) {
	err := s.client.ZScore(ctx, KeyJobs, id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Due claims jobs whose run-at is not after now. Claimed jobs are removed; a
// second caller never receives the same job.
func (s *Scheduler) Due(ctx context.Context, now time.Time) ([]*Job, error) {
	raws, err := claimScript.Run(ctx, s.client, []string{KeyJobs, KeyPayloads}, now.UnixMilli(), claimBatch).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			s.logger.Warn("invalid job payload", zap.String("raw", raw), zap.Error(err))
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Retry re-schedules a failed job after RetryBackoff unless a newer job with
// the same id was scheduled meanwhile. After MaxRetries it goes to the DLQ.
func (s *Scheduler) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		raw, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if err := s.client.RPush(ctx, KeyDLQ, raw).Err(); err != nil {
			s.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		s.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	job.RunAt = time.Now().Add(RetryBackoff)
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, KeyPayloads, job.ID, raw)
		p.ZAddNX(ctx, KeyJobs, redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Run polls for due jobs and hands them to handler until ctx is done.
func (s *Scheduler) Run(ctx context.Context, handler Handler) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
		}

		jobs, err := s.Due(ctx, time.Now())
		if err != nil {
			s.logger.Warn("poll due jobs failed", zap.Error(err))
			continue
		}
		for _, job := range jobs {
			s.logger.Debug("running job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
			if err := handler(ctx, job); err != nil {
				s.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
				if reErr := s.Retry(ctx, job); reErr != nil {
					s.logger.Error("retry schedule failed", zap.Error(reErr))
				}
			}
		}
	}
}

func (s *Scheduler) schedulePayload(ctx context.Context, id string, typ JobType, payload any, runAt time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return s.Schedule(ctx, &Job{ID: id, Type: typ, Payload: body, RunAt: runAt})
}

// ScheduleClose arms (or re-arms) the automatic closure of an event.
func (s *Scheduler) ScheduleClose(ctx context.Context, eventID int64, runAt time.Time) error {
	return s.schedulePayload(ctx, CloseJobID(eventID), JobTypeCloseRegistration, ClosePayload{EventID: eventID}, runAt)
}

// ScheduleInviteTimeout arms the expiry of a waitlist invitation.
func (s *Scheduler) ScheduleInviteTimeout(ctx context.Context, registrationID int64, runAt time.Time) error {
	return s.schedulePayload(ctx, TimeoutJobID(registrationID), JobTypeInvitationTimeout,
		InvitationTimeoutPayload{RegistrationID: registrationID}, runAt)
}

// CancelClose drops a pending automatic closure.
func (s *Scheduler) CancelClose(ctx context.Context, eventID int64) error {
	return s.Cancel(ctx, CloseJobID(eventID))
}

// CancelInviteTimeout drops a pending invitation expiry.
func (s *Scheduler) CancelInviteTimeout(ctx context.Context, registrationID int64) error {
	return s.Cancel(ctx, TimeoutJobID(registrationID))
}
