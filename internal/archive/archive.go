// Package archive keeps a copy of every lottery draw in object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/homeconf/regbot/internal/models"
	"github.com/homeconf/regbot/pkg/storage"
)

// Uploader is satisfied by *storage.S3.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// Archiver writes lottery results as JSON objects.
type Archiver struct {
	uploader Uploader
	logger   *zap.Logger
}

// New creates an archiver.
func New(u Uploader, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{uploader: u, logger: logger}
}

// ArchiveLottery implements lottery.ResultArchiver.
func (a *Archiver) ArchiveLottery(ctx context.Context, res *models.LotteryResult) error {
	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	key := storage.ResultKey(res.EventID, res.DrawnAt)
	loc, err := a.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	a.logger.Info("lottery result archived", zap.Int64("event_id", res.EventID), zap.String("location", loc))
	return nil
}
