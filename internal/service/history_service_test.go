package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/PromptForge/internal/models"
)

func seedPrompts(t *testing.T, ledger *memLedger, userID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ok, err := ledger.ChargeAndLog(context.Background(), userID, 1, &models.Prompt{
			OriginalText:    "idea",
			GeneratedPrompt: "prompt",
			PromptType:      models.PromptTypes[i%len(models.PromptTypes)],
		})
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestHistoryListNewestFirstAndClamped(t *testing.T) {
	ledger := newMemLedger()
	id := ledger.addUser(10000, models.PlanMega)
	other := ledger.addUser(10000, models.PlanMega)
	seedPrompts(t, ledger, id, 3)
	seedPrompts(t, ledger, other, 1)
	svc := NewHistoryService(discardLogger(), ledger, nil, time.Second)

	prompts, err := svc.List(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, prompts, 3)
	assert.Greater(t, prompts[0].ID, prompts[1].ID)
	for _, p := range prompts {
		assert.Equal(t, id, p.UserID)
	}

	prompts, err = svc.List(context.Background(), id, 2)
	require.NoError(t, err)
	assert.Len(t, prompts, 2)
}

func TestHistoryExportDisabled(t *testing.T) {
	ledger := newMemLedger()
	svc := NewHistoryService(discardLogger(), ledger, nil, time.Second)

	_, err := svc.Export(context.Background(), 1)
	assert.ErrorIs(t, err, ErrExportDisabled)
}

func TestHistoryExportUploadsJSON(t *testing.T) {
	ledger := newMemLedger()
	id := ledger.addUser(100, models.PlanFree)
	seedPrompts(t, ledger, id, 2)
	uploader := &stubUploader{}
	svc := NewHistoryService(discardLogger(), ledger, uploader, time.Second)

	export, err := svc.Export(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, export.Count)
	assert.Equal(t, "https://cdn.example.com/exports/history.json", export.URL)
	assert.Equal(t, "application/json", uploader.contentType)

	var doc struct {
		UserID  int64           `json:"userId"`
		Prompts []models.Prompt `json:"prompts"`
	}
	require.NoError(t, json.Unmarshal(uploader.data, &doc))
	assert.Equal(t, id, doc.UserID)
	assert.Len(t, doc.Prompts, 2)
}

func TestHistoryExportUploadFailure(t *testing.T) {
	ledger := newMemLedger()
	id := ledger.addUser(100, models.PlanFree)
	svc := NewHistoryService(discardLogger(), ledger, &stubUploader{err: errors.New("access denied")}, time.Second)

	_, err := svc.Export(context.Background(), id)
	assert.ErrorIs(t, err, ErrStorage)
}
