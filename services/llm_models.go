package services

import (
	"errors"
	"fmt"
)

// LLMModelName is the Gemini model used for a generation call.
type LLMModelName int32

const (
	Flash25Image LLMModelName = iota
	Flash25ImagePreview
	Flash20ImagePreview
)

func (t LLMModelName) String() string {
	switch t {
	case Flash25Image:
		return "gemini-2.5-flash-image"
	case Flash25ImagePreview:
		return "gemini-2.5-flash-image-preview"
	case Flash20ImagePreview:
		return "gemini-2.0-flash-preview-image-generation"
	default:
		return "gemini-2.5-flash-image"
	}
}

var ErrUnknownLLMModel = errors.New("unknown model")

// ParseLLMModelName maps a model id back to its enum.
func ParseLLMModelName(name string) (LLMModelName, error) {
	for _, m := range []LLMModelName{Flash25Image, Flash25ImagePreview, Flash20ImagePreview} {
		if m.String() == name {
			return m, nil
		}
	}
	return Flash25Image, fmt.Errorf("%w %q, expected one of %s, %s, %s",
		ErrUnknownLLMModel, name, Flash25Image, Flash25ImagePreview, Flash20ImagePreview)
}
