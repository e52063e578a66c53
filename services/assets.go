package services

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"stylemorphapi/models"
)

const MaxImageAssetSize = 10 * 1024 * 1024

var (
	ErrEmptyAsset          = errors.New("image is empty")
	ErrAssetTooLarge       = errors.New("image too large (max 10MB)")
	ErrUnsupportedMimeType = errors.New("unsupported image type")
)

// the sniffer does not know these
var imageMimeByExtension = map[string]models.ImageMime{
	".heic": models.ImageMimeHEIC,
	".heif": models.ImageMimeHEIF,
}

// DetectImageMime sniffs the content. Only heic/heif fall back to the file extension.
func DetectImageMime(data []byte, fileName string) string {
	mimeType := http.DetectContentType(data)
	if models.ValidateImageMimeRaw(mimeType) {
		return mimeType
	}
	if byExt, ok := imageMimeByExtension[strings.ToLower(filepath.Ext(fileName))]; ok {
		return byExt.String()
	}
	return mimeType
}

// NewImageAssetFromUpload builds an asset from raw upload bytes. A non-empty
// mimeOverride replaces detection but is still checked against the supported set.
func NewImageAssetFromUpload(data []byte, fileName string, mimeOverride string) (models.ImageAsset, error) {
	if len(data) == 0 {
		return models.ImageAsset{}, ErrEmptyAsset
	}
	if len(data) > MaxImageAssetSize {
		return models.ImageAsset{}, ErrAssetTooLarge
	}
	mimeType := mimeOverride
	if mimeType == "" {
		mimeType = DetectImageMime(data, fileName)
	}
	if !models.ValidateImageMimeRaw(mimeType) {
		return models.ImageAsset{}, fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mimeType)
	}
	return models.NewImageAsset(data, mimeType, fileName), nil
}
