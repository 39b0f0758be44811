package actionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/models"
)

// Channel carries every appended entry for live dashboards.
const Channel = "regbot:actions"

const publishTimeout = 5 * time.Second

// Store is the durable side of the trail.
type Store interface {
	Append(ctx context.Context, entry *models.ActionLog) error
}

// Recorder persists entries and then fans them out over Redis pub/sub. A
// publish failure is logged and does not fail the append.
type Recorder struct {
	store  Store
	client *redis.Client
	logger *zap.Logger
}

// NewRecorder creates a recorder. client may be nil to disable publishing.
func NewRecorder(store Store, client *redis.Client, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, client: client, logger: logger}
}

// Append implements lottery.ActionLogger.
func (r *Recorder) Append(ctx context.Context, entry *models.ActionLog) error {
	if err := r.store.Append(ctx, entry); err != nil {
		return err
	}
	if r.client == nil {
		return nil
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.client.Publish(pctx, Channel, body).Err(); err != nil {
		r.logger.Warn("publish action failed", zap.String("action", entry.Action), zap.Error(err))
	}
	return nil
}

// Subscribe delivers every published entry to handler until ctx is done.
func Subscribe(ctx context.Context, client *redis.Client, logger *zap.Logger, handler func(*models.ActionLog)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	pubsub := client.Subscribe(ctx, Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var entry models.ActionLog
				if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
					logger.Debug("drop malformed action message", zap.Error(err))
					continue
				}
				handler(&entry)
			}
		}
	}()
	return nil
}
