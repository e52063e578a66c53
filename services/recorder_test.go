package services

import (
	"errors"
	"testing"
	"time"

	"stylemorphapi/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTryOnBatchRecord(t *testing.T) {
	summary := BatchSummary{
		BatchID: "batch-1",
		Source:  "api",
		Plan: models.BatchPlan{
			Requests: []models.GenerationRequest{
				{OutfitID: "1", Garments: []models.ImageAsset{asset("top", "image/png"), asset("pants", "image/png")}, Instructions: "winter"},
				{OutfitID: "3", Instructions: "formal"},
			},
			Skipped: []string{"2"},
		},
		Outcomes: []models.GenerationOutcome{
			{OutfitID: "1", ImageURL: StrPointer(TryOnImageDataURIPrefix + "aW1n"), Model: "gemini-2.5-flash-image", InputTokenCount: 5, TotalTokenCount: 9},
			FailedOutcome("3", errors.New("quota exceeded")),
		},
		Duration: 1500 * time.Millisecond,
	}

	batch := NewTryOnBatchRecord(summary)
	assert.Equal(t, "batch-1", batch.BatchID)
	assert.Equal(t, "api", batch.Source)
	assert.Equal(t, "completed", batch.Status)
	assert.Equal(t, 2, batch.OutfitCount)
	assert.Equal(t, 1, batch.SkippedCount)
	assert.Equal(t, 1, batch.FailedCount)
	require.NotNil(t, batch.Duration)
	assert.InDelta(t, 1.5, *batch.Duration, 0.001)
	require.NotNil(t, batch.LLMModel)
	assert.Equal(t, "gemini-2.5-flash-image", *batch.LLMModel)

	require.Len(t, batch.Outcomes, 2)
	first := batch.Outcomes[0]
	assert.Equal(t, "1", first.OutfitID)
	assert.Equal(t, "completed", first.Status)
	assert.Equal(t, 2, first.GarmentCount)
	assert.True(t, first.HasInstructions)
	assert.True(t, first.HasImage)
	assert.False(t, first.HasText)
	assert.Equal(t, int32(5), *first.LLMInputTokenCount)

	second := batch.Outcomes[1]
	assert.Equal(t, "failed", second.Status)
	assert.Equal(t, 0, second.GarmentCount)
	require.NotNil(t, second.GenerationErrorMessage)
	assert.Equal(t, "quota exceeded", *second.GenerationErrorMessage)
}

func TestNewTryOnBatchRecordFailedBatch(t *testing.T) {
	batch := NewTryOnBatchRecord(BatchSummary{
		BatchID: "batch-2",
		Source:  "worker",
		Plan:    models.BatchPlan{Requests: []models.GenerationRequest{{OutfitID: "1"}}},
		Err:     ErrBatchFailed,
	})
	assert.Equal(t, "failed", batch.Status)
	require.NotNil(t, batch.ErrorMessage)
	assert.Equal(t, ErrBatchFailed.Error(), *batch.ErrorMessage)
	assert.Empty(t, batch.Outcomes)
}
