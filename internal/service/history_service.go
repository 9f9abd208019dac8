package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/PromptForge/internal/models"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
	exportHistoryLimit  = 10000
)

// HistoryUploader stores an export and returns a link to it.
type HistoryUploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type HistoryService struct {
	log          *slog.Logger
	usage        UsageStore
	uploader     HistoryUploader
	storeTimeout time.Duration
}

type HistoryExport struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

func NewHistoryService(log *slog.Logger, usage UsageStore, uploader HistoryUploader, storeTimeout time.Duration) *HistoryService {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &HistoryService{
		log:          log,
		usage:        usage,
		uploader:     uploader,
		storeTimeout: storeTimeout,
	}
}

// List returns the newest usage records first. limit is clamped to
// [1, MaxHistoryLimit]; zero or less means DefaultHistoryLimit.
func (s *HistoryService) List(ctx context.Context, userID int64, limit int) ([]models.Prompt, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	prompts, err := s.usage.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, storageError("list prompts", err)
	}
	return prompts, nil
}

// Export uploads the user's history as a JSON document.
func (s *HistoryService) Export(ctx context.Context, userID int64) (*HistoryExport, error) {
	if s.uploader == nil {
		return nil, ErrExportDisabled
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	prompts, err := s.usage.ListByUser(lctx, userID, exportHistoryLimit)
	cancel()
	if err != nil {
		return nil, storageError("list prompts for export", err)
	}

	doc := struct {
		UserID     int64           `json:"userId"`
		ExportedAt time.Time       `json:"exportedAt"`
		Prompts    []models.Prompt `json:"prompts"`
	}{
		UserID:     userID,
		ExportedAt: time.Now().UTC(),
		Prompts:    prompts,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode history export: %w", err)
	}

	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	url, err := s.uploader.Upload(uctx, data, "application/json")
	if err != nil {
		s.log.Error("upload history export", "user_id", userID, "err", err)
		return nil, storageError("upload history export", err)
	}

	s.log.Info("history exported", "user_id", userID, "count", len(prompts))
	return &HistoryExport{URL: url, Count: len(prompts)}, nil
}
