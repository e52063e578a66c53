package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stylemorphapi/models"
	"stylemorphapi/services"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
)

const (
	TypeTryOnBatch = "generate:tryon_batch"
	QueueGenerate  = "generate"

	tryOnResultRetention = time.Hour
)

type TryOnBatchPayload struct {
	SessionID string              `json:"session_id"`
	UserPhoto *models.ImageAsset  `json:"user_photo"`
	Outfits   []models.OutfitSpec `json:"outfits"`
}

type TryOnBatchResult struct {
	SessionID string                     `json:"session_id"`
	Outcomes  []models.GenerationOutcome `json:"outcomes"`
	Error     string                     `json:"error,omitempty"`
}

// NewTryOnBatchTask packs a batch for the worker. Tasks are never retried.
func NewTryOnBatchTask(payload TryOnBatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTryOnBatch, data,
		asynq.MaxRetry(0),
		asynq.Queue(QueueGenerate),
		asynq.Retention(tryOnResultRetention),
	), nil
}

// RunTryOnBatchTask decodes the payload and runs the batch. Validation
// failures are wrapped with asynq.SkipRetry.
func RunTryOnBatchTask(ctx context.Context, t *asynq.Task, runner services.BatchRunner) (*TryOnBatchResult, error) {
	var payload TryOnBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal try-on batch payload: %v: %w", err, asynq.SkipRetry)
	}
	fmt.Printf("[Queue] Try-on batch for session %s, %d outfits\n", payload.SessionID, len(payload.Outfits))

	result := &TryOnBatchResult{SessionID: payload.SessionID}
	outcomes, err := runner.RunBatch(ctx, payload.UserPhoto, payload.Outfits)
	if err != nil {
		result.Error = err.Error()
		if errors.Is(err, services.ErrMissingSubjectPhoto) || errors.Is(err, services.ErrNoOutfitContent) {
			return result, fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return result, err
	}
	result.Outcomes = outcomes
	return result, nil
}

func HandleTryOnBatchTask(ctx context.Context, t *asynq.Task, runner services.BatchRunner) error {
	result, err := RunTryOnBatchTask(ctx, t, runner)
	if result != nil {
		if writeErr := writeTaskResult(t, result); writeErr != nil {
			sentry.CaptureException(writeErr)
			fmt.Println("[Queue] Failed to write try-on batch result:", writeErr)
		}
	}
	if err != nil {
		sentry.CaptureException(err)
	}
	return err
}

func writeTaskResult(t *asynq.Task, result *TryOnBatchResult) error {
	writer := t.ResultWriter()
	if writer == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = writer.Write(data)
	return err
}
