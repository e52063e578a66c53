package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"stylemorphapi/models"

	"github.com/getsentry/sentry-go"
)

var ErrClosetUnavailable = errors.New("closet storage is not configured")

type ClosetProvider interface {
	FetchGarment(ctx context.Context, objectKey string, mimeOverride string) (models.ImageAsset, error)
}

// ClosetService imports garment images that already live in the bucket.
type ClosetService struct {
	URLCache   URLCacheServiceProvider
	AWSService AWSServiceProvider
}

func (c *ClosetService) FetchGarment(ctx context.Context, objectKey string, mimeOverride string) (models.ImageAsset, error) {
	if c == nil || c.URLCache == nil || c.AWSService == nil {
		return models.ImageAsset{}, ErrClosetUnavailable
	}
	fileUrl, err := c.URLCache.GetReadURL(ctx, objectKey)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Closet] Error on getting presigned URL for %s: %v", objectKey, err))
		return models.ImageAsset{}, fmt.Errorf("failed to resolve closet object %s: %w", objectKey, err)
	}
	fmt.Printf("[Closet] Downloading %s\n", objectKey)
	data, err := c.AWSService.DownloadObject(ctx, fileUrl)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Closet] Error on downloading %s: %v", objectKey, err))
		return models.ImageAsset{}, fmt.Errorf("failed to download closet object %s: %w", objectKey, err)
	}
	return NewImageAssetFromUpload(data, filepath.Base(objectKey), mimeOverride)
}
