package models

import (
	"github.com/go-playground/validator"
)

type ImageMime string

const (
	ImageMimePNG  ImageMime = "image/png"
	ImageMimeJPEG ImageMime = "image/jpeg"
	ImageMimeWEBP ImageMime = "image/webp"
	ImageMimeHEIC ImageMime = "image/heic"
	ImageMimeHEIF ImageMime = "image/heif"
)

var supportedImageMimes = map[ImageMime]bool{
	ImageMimePNG:  true,
	ImageMimeJPEG: true,
	ImageMimeWEBP: true,
	ImageMimeHEIC: true,
	ImageMimeHEIF: true,
}

func (m ImageMime) String() string {
	return string(m)
}

func ValidateImageMime(fl validator.FieldLevel) bool {
	return ValidateImageMimeRaw(fl.Field().String())
}

func ValidateImageMimeRaw(value string) bool {
	return supportedImageMimes[ImageMime(value)]
}
