package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stylemorphapi/models"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

var (
	ErrMissingSubjectPhoto = errors.New("missing subject photo")
	ErrNoOutfitContent     = errors.New("no outfit content provided")
	ErrBatchFailed         = errors.New("batch generation failed")
)

// BatchRunner runs one try-on batch. Validation errors and ErrBatchFailed are
// the only errors; per-outfit failures live in the outcomes.
type BatchRunner interface {
	RunBatch(ctx context.Context, userPhoto *models.ImageAsset, outfits []models.OutfitSpec) ([]models.GenerationOutcome, error)
}

type TryOnOrchestrator struct {
	Generator TryOnGenerator
	// Recorder is optional.
	Recorder BatchRecorder
	Source   string
}

func NewTryOnOrchestrator(generator TryOnGenerator, recorder BatchRecorder, source string) *TryOnOrchestrator {
	return &TryOnOrchestrator{Generator: generator, Recorder: recorder, Source: source}
}

// PlanTryOnBatch filters out empty outfits and builds one request per remaining outfit.
func PlanTryOnBatch(userPhoto models.ImageAsset, outfits []models.OutfitSpec) models.BatchPlan {
	var plan models.BatchPlan
	for _, outfit := range outfits {
		if outfit.IsEmpty() {
			plan.Skipped = append(plan.Skipped, outfit.ID)
			continue
		}
		garments := make([]models.ImageAsset, len(outfit.Garments))
		copy(garments, outfit.Garments)
		plan.Requests = append(plan.Requests, models.GenerationRequest{
			OutfitID:     outfit.ID,
			UserPhoto:    userPhoto,
			Garments:     garments,
			Instructions: outfit.Instructions,
		})
	}
	return plan
}

// ValidateTryOnBatch checks the preconditions that stop a batch before dispatch.
func ValidateTryOnBatch(userPhoto *models.ImageAsset, outfits []models.OutfitSpec) error {
	if userPhoto == nil {
		return ErrMissingSubjectPhoto
	}
	for _, outfit := range outfits {
		if !outfit.IsEmpty() {
			return nil
		}
	}
	return ErrNoOutfitContent
}

func (o *TryOnOrchestrator) RunBatch(ctx context.Context, userPhoto *models.ImageAsset, outfits []models.OutfitSpec) ([]models.GenerationOutcome, error) {
	if err := ValidateTryOnBatch(userPhoto, outfits); err != nil {
		return nil, err
	}
	plan := PlanTryOnBatch(*userPhoto, outfits)
	batchID := uuid.NewString()
	logPrefix := fmt.Sprintf("[Batch %s]", batchID[:8])
	fmt.Printf("%s Dispatching %d outfits, skipped %d empty\n", logPrefix, len(plan.Requests), len(plan.Skipped))

	start := time.Now()
	// Units run to completion even when the caller goes away.
	outcomes, err := o.dispatch(context.WithoutCancel(ctx), logPrefix, plan.Requests)
	duration := time.Since(start)
	if err != nil {
		fmt.Printf("%s %v\n", logPrefix, err)
		sentry.CaptureException(err)
	} else {
		fmt.Printf("%s Completed in %.2fs, %d failed\n", logPrefix, duration.Seconds(), countFailed(outcomes))
	}

	o.record(ctx, BatchSummary{
		BatchID:  batchID,
		Source:   o.Source,
		Plan:     plan,
		Outcomes: outcomes,
		Duration: duration,
		Err:      err,
	})
	return outcomes, err
}

// dispatch starts every request before waiting on any and joins all of them.
// Each unit writes only its own slot. A panic in any unit fails the whole batch.
func (o *TryOnOrchestrator) dispatch(ctx context.Context, logPrefix string, requests []models.GenerationRequest) ([]models.GenerationOutcome, error) {
	var wg sync.WaitGroup
	outcomes := make([]models.GenerationOutcome, len(requests))
	panics := make([]any, len(requests))

	for i, request := range requests {
		wg.Add(1)
		go func(index int, req models.GenerationRequest) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panics[index] = r
				}
			}()
			outcome := o.Generator.Generate(ctx, req)
			outcome.OutfitID = req.OutfitID
			outcomes[index] = outcome
		}(i, request)
	}

	wg.Wait()
	for i, p := range panics {
		if p != nil {
			return nil, fmt.Errorf("%w: outfit %s panicked: %v", ErrBatchFailed, requests[i].OutfitID, p)
		}
	}
	fmt.Printf("%s All %d units settled\n", logPrefix, len(requests))
	return outcomes, nil
}

func (o *TryOnOrchestrator) record(ctx context.Context, summary BatchSummary) {
	if o.Recorder == nil {
		return
	}
	if err := o.Recorder.RecordBatch(context.WithoutCancel(ctx), summary); err != nil {
		fmt.Printf("[Batch %s] Failed to record batch: %v\n", summary.BatchID[:8], err)
		sentry.CaptureException(err)
	}
}

func countFailed(outcomes []models.GenerationOutcome) int {
	failed := 0
	for _, outcome := range outcomes {
		if outcome.Failed() {
			failed++
		}
	}
	return failed
}
