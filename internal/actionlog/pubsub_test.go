package actionlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/models"
)

type memStore struct {
	entries []*models.ActionLog
	err     error
}

func (m *memStore) Append(_ context.Context, entry *models.ActionLog) error {
	if m.err != nil {
		return m.err
	}
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func TestRecorderPublishesAppendedEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *models.ActionLog, 1)
	if err := Subscribe(ctx, client, zap.NewNop(), func(e *models.ActionLog) { got <- e }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	store := &memStore{}
	rec := NewRecorder(store, client, nil)
	eventID := int64(3)
	if err := rec.Append(ctx, &models.ActionLog{EventID: &eventID, Action: models.ActionRegister, Details: "registration=1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(store.entries) != 1 {
		t.Fatalf("stored %d entries, want 1", len(store.entries))
	}

	select {
	case e := <-got:
		if e.ID != 1 || e.Action != models.ActionRegister || e.EventID == nil || *e.EventID != 3 {
			t.Errorf("received %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no entry published")
	}
}

func TestRecorderStoreFailureSkipsPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	boom := errors.New("db down")
	rec := NewRecorder(&memStore{err: boom}, client, nil)
	if err := rec.Append(context.Background(), &models.ActionLog{Action: models.ActionRegister}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want store error", err)
	}
}

func TestRecorderWithoutRedis(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store, nil, nil)
	if err := rec.Append(context.Background(), &models.ActionLog{Action: models.ActionUnregister}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(store.entries) != 1 {
		t.Errorf("stored %d entries, want 1", len(store.entries))
	}
}

func TestRecorderPublishFailureIsNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	store := &memStore{}
	rec := NewRecorder(store, client, nil)
	if err := rec.Append(context.Background(), &models.ActionLog{Action: models.ActionUnregister}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(store.entries) != 1 {
		t.Errorf("stored %d entries, want 1", len(store.entries))
	}
}
