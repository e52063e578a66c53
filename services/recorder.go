package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stylemorphapi/models"

	"gorm.io/gorm"
)

type BatchSummary struct {
	BatchID  string
	Source   string
	Plan     models.BatchPlan
	Outcomes []models.GenerationOutcome
	Duration time.Duration
	Err      error
}

type BatchRecorder interface {
	RecordBatch(ctx context.Context, summary BatchSummary) error
}

// GormBatchRecorder writes an audit row per batch and per dispatched outfit.
type GormBatchRecorder struct {
	DB *gorm.DB
}

func (r *GormBatchRecorder) RecordBatch(ctx context.Context, summary BatchSummary) error {
	batch := NewTryOnBatchRecord(summary)
	if err := r.DB.WithContext(ctx).Create(&batch).Error; err != nil {
		return fmt.Errorf("failed to save try-on batch %s: %w", summary.BatchID, err)
	}
	return nil
}

// NewTryOnBatchRecord maps a batch summary onto its audit rows.
func NewTryOnBatchRecord(summary BatchSummary) models.TryOnBatch {
	duration := summary.Duration.Seconds()
	batch := models.TryOnBatch{
		BatchID:      summary.BatchID,
		Source:       summary.Source,
		Status:       "completed",
		OutfitCount:  len(summary.Plan.Requests),
		SkippedCount: len(summary.Plan.Skipped),
		Duration:     &duration,
	}
	if summary.Err != nil {
		batch.Status = "failed"
		batch.ErrorMessage = StrPointer(summary.Err.Error())
		return batch
	}

	requests := make(map[string]models.GenerationRequest, len(summary.Plan.Requests))
	for _, request := range summary.Plan.Requests {
		requests[request.OutfitID] = request
	}
	for _, outcome := range summary.Outcomes {
		request := requests[outcome.OutfitID]
		outcomeDuration := outcome.DurationSeconds
		record := models.TryOnOutcomeRecord{
			OutfitID:            outcome.OutfitID,
			Status:              "completed",
			GarmentCount:        len(request.Garments),
			HasInstructions:     strings.TrimSpace(request.Instructions) != "",
			HasImage:            outcome.ImageURL != nil,
			HasText:             outcome.TextResponse != nil,
			Duration:            &outcomeDuration,
			LLMInputTokenCount:  Int32Pointer(outcome.InputTokenCount),
			LLMOutputTokenCount: Int32Pointer(outcome.OutputTokenCount),
			LLMTotalTokenCount:  Int32Pointer(outcome.TotalTokenCount),
		}
		if outcome.Failed() {
			record.Status = "failed"
			record.GenerationErrorMessage = outcome.Error
			batch.FailedCount++
		}
		if batch.LLMModel == nil && outcome.Model != "" {
			batch.LLMModel = StrPointer(outcome.Model)
		}
		batch.Outcomes = append(batch.Outcomes, record)
	}
	return batch
}
