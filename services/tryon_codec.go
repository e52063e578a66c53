package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"stylemorphapi/models"

	"github.com/getsentry/sentry-go"
	"google.golang.org/genai"
)

// The rendered image is always declared as PNG, whatever the service returned.
const TryOnImageDataURIPrefix = "data:image/png;base64,"

const tryOnFallbackError = "Failed to generate image"

const tryOnPrompt = `Act as a professional fashion stylist and photo editor.
Task: Generate a photorealistic image of the person from the first image wearing the outfit composed of the clothing items provided.

Instructions:
- Replace the current clothing of the person with the target clothing items.
- YOU MUST USE ALL PROVIDED CLOTHING ITEMS. Combine them into a complete cohesive outfit.
- Keep the person's face, pose, body shape, and the background exactly as they are in the first image.
- Ensure the lighting and shadows on the new clothing match the original scene.
- High fidelity and realistic fabric texture are required.`

const tryOnVisualDetailsSuffix = "\nUse the visual details from the clothing images provided to apply the textures, colors, and cuts to the person."

var ErrEmptyGeneration = errors.New("No content generated.")

// ContentGenerator is the generation call. (*genai.Client).Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// TryOnGenerator turns one request into one outcome. Implementations report
// failures inside the outcome instead of returning them.
type TryOnGenerator interface {
	Generate(ctx context.Context, request models.GenerationRequest) models.GenerationOutcome
}

// TryOnPrompt builds the instruction text that closes every request.
func TryOnPrompt(request models.GenerationRequest) string {
	prompt := tryOnPrompt
	if request.Instructions != "" {
		prompt += "\nAdditional Instructions: " + request.Instructions
	}
	if len(request.Garments) > 0 {
		prompt += tryOnVisualDetailsSuffix
	}
	return prompt
}

// EncodeTryOnRequest lays out the parts as [photo, label, garment 1, label 1, ..., prompt].
// Every image part is directly followed by the label that names it.
func EncodeTryOnRequest(request models.GenerationRequest) []*genai.Part {
	parts := make([]*genai.Part, 0, 2*len(request.Garments)+3)
	parts = append(parts,
		&genai.Part{InlineData: &genai.Blob{Data: request.UserPhoto.Data(), MIMEType: request.UserPhoto.MIMEType()}},
		&genai.Part{Text: "This is the user's photo."},
	)
	for i, garment := range request.Garments {
		parts = append(parts,
			&genai.Part{InlineData: &genai.Blob{Data: garment.Data(), MIMEType: garment.MIMEType()}},
			&genai.Part{Text: fmt.Sprintf("This is clothing item #%d for the outfit.", i+1)},
		)
	}
	parts = append(parts, &genai.Part{Text: TryOnPrompt(request)})
	return parts
}

// DecodeTryOnResponse reads the first candidate. The last inline image and the
// last text part win. A response with neither is a failure.
func DecodeTryOnResponse(outfitID string, result *genai.GenerateContentResponse) models.GenerationOutcome {
	if result == nil {
		return FailedOutcome(outfitID, ErrEmptyGeneration)
	}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		reason := result.PromptFeedback.BlockReasonMessage
		if reason == "" {
			reason = string(result.PromptFeedback.BlockReason)
		}
		return FailedOutcome(outfitID, fmt.Errorf("content blocked: %s", reason))
	}

	outcome := models.GenerationOutcome{OutfitID: outfitID}
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil {
				imageURL := TryOnImageDataURIPrefix + base64.StdEncoding.EncodeToString(part.InlineData.Data)
				outcome.ImageURL = &imageURL
			} else if part.Text != "" {
				text := part.Text
				outcome.TextResponse = &text
			}
		}
	}
	if outcome.ImageURL == nil && outcome.TextResponse == nil {
		return FailedOutcome(outfitID, ErrEmptyGeneration)
	}
	if result.UsageMetadata != nil {
		outcome.InputTokenCount = result.UsageMetadata.PromptTokenCount
		outcome.OutputTokenCount = result.UsageMetadata.CandidatesTokenCount
		outcome.TotalTokenCount = result.UsageMetadata.TotalTokenCount
	}
	return outcome
}

func FailedOutcome(outfitID string, err error) models.GenerationOutcome {
	message := tryOnFallbackError
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	return models.GenerationOutcome{OutfitID: outfitID, Error: &message}
}

type GoogleTryOnGenerator struct {
	Models ContentGenerator
	Model  LLMModelName
}

// NewGoogleTryOnGenerator builds a Gemini API client from GOOGLE_API_KEY.
func NewGoogleTryOnGenerator(ctx context.Context, model LLMModelName) (*GoogleTryOnGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GOOGLE_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GoogleTryOnGenerator{Models: client.Models, Model: model}, nil
}

func (g *GoogleTryOnGenerator) Generate(ctx context.Context, request models.GenerationRequest) models.GenerationOutcome {
	start := time.Now()
	parts := EncodeTryOnRequest(request)
	fmt.Printf("[Outfit %s] Sending %d parts to %s\n", request.OutfitID, len(parts), g.Model)

	result, err := g.Models.GenerateContent(ctx, g.Model.String(), []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		CandidateCount: 1,
	})

	var outcome models.GenerationOutcome
	if err != nil {
		fmt.Printf("[Outfit %s] Error in GenerateContent: %v\n", request.OutfitID, err)
		outcome = FailedOutcome(request.OutfitID, err)
	} else {
		outcome = DecodeTryOnResponse(request.OutfitID, result)
	}
	if outcome.Failed() {
		sentry.CaptureException(fmt.Errorf("[Outfit %s] try-on generation failed: %s", request.OutfitID, *outcome.Error))
	}
	outcome.Model = g.Model.String()
	outcome.DurationSeconds = time.Since(start).Seconds()
	fmt.Printf("[Outfit %s] Done in %.2fs, tokens in/out/total: %d/%d/%d\n",
		request.OutfitID, outcome.DurationSeconds, outcome.InputTokenCount, outcome.OutputTokenCount, outcome.TotalTokenCount)
	return outcome
}

// DecodeTryOnImage returns the PNG bytes behind a rendered image data URI.
func DecodeTryOnImage(imageURL string) ([]byte, error) {
	if !strings.HasPrefix(imageURL, TryOnImageDataURIPrefix) {
		return nil, fmt.Errorf("unexpected image URL format")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(imageURL, TryOnImageDataURIPrefix))
}
