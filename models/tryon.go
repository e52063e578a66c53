package models

import (
	"encoding/json"
	"strings"
)

// ImageAsset is an uploaded image. The bytes are copied on construction and
// every accessor hands out a copy, so an asset never changes once built.
type ImageAsset struct {
	data     []byte
	mimeType string
	source   string
}

func NewImageAsset(data []byte, mimeType string, source string) ImageAsset {
	return ImageAsset{
		data:     append([]byte(nil), data...),
		mimeType: mimeType,
		source:   source,
	}
}

func (a ImageAsset) Data() []byte {
	return append([]byte(nil), a.data...)
}

func (a ImageAsset) MIMEType() string {
	return a.mimeType
}

// Source is the name of the file (or object key) the asset was read from.
func (a ImageAsset) Source() string {
	return a.source
}

func (a ImageAsset) Size() int {
	return len(a.data)
}

func (a ImageAsset) Info() ImageAssetInfo {
	return ImageAssetInfo{MIMEType: a.mimeType, Source: a.source, Size: len(a.data)}
}

type imageAssetJSON struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
	Source   string `json:"source"`
}

func (a ImageAsset) MarshalJSON() ([]byte, error) {
	return json.Marshal(imageAssetJSON{Data: a.data, MIMEType: a.mimeType, Source: a.source})
}

func (a *ImageAsset) UnmarshalJSON(b []byte) error {
	var raw imageAssetJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = ImageAsset{data: raw.Data, mimeType: raw.MIMEType, source: raw.Source}
	return nil
}

// ImageAssetInfo describes an asset without its bytes.
type ImageAssetInfo struct {
	MIMEType string `json:"mime_type"`
	Source   string `json:"source"`
	Size     int    `json:"size"`
}

type OutfitSpec struct {
	ID           string       `json:"id"`
	Garments     []ImageAsset `json:"garments"`
	Instructions string       `json:"instructions"`
}

// IsEmpty reports whether the outfit has nothing to generate from.
func (o OutfitSpec) IsEmpty() bool {
	return len(o.Garments) == 0 && strings.TrimSpace(o.Instructions) == ""
}

func (o OutfitSpec) Clone() OutfitSpec {
	garments := make([]ImageAsset, len(o.Garments))
	copy(garments, o.Garments)
	return OutfitSpec{ID: o.ID, Garments: garments, Instructions: o.Instructions}
}

func (o OutfitSpec) View() OutfitView {
	garments := make([]ImageAssetInfo, 0, len(o.Garments))
	for _, garment := range o.Garments {
		garments = append(garments, garment.Info())
	}
	return OutfitView{ID: o.ID, Garments: garments, Instructions: o.Instructions}
}

type OutfitView struct {
	ID           string           `json:"id"`
	Garments     []ImageAssetInfo `json:"garments"`
	Instructions string           `json:"instructions"`
}

type GenerationRequest struct {
	OutfitID     string
	UserPhoto    ImageAsset
	Garments     []ImageAsset
	Instructions string
}

// GenerationOutcome is the terminal result of one outfit's generation.
// On failure Error is set and ImageURL/TextResponse are nil.
type GenerationOutcome struct {
	OutfitID     string  `json:"outfit_id"`
	ImageURL     *string `json:"image_url"`
	TextResponse *string `json:"text_response"`
	Error        *string `json:"error,omitempty"`

	Model            string  `json:"model,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds"`
	InputTokenCount  int32   `json:"input_token_count"`
	OutputTokenCount int32   `json:"output_token_count"`
	TotalTokenCount  int32   `json:"total_token_count"`
}

func (o GenerationOutcome) Failed() bool {
	return o.Error != nil
}

// BatchPlan is the dispatchable part of a batch. Skipped holds the IDs of
// empty outfits, in session order.
type BatchPlan struct {
	Requests []GenerationRequest
	Skipped  []string
}

type SessionView struct {
	ID         string              `json:"id"`
	UserPhoto  *ImageAssetInfo     `json:"user_photo"`
	Outfits    []OutfitView        `json:"outfits"`
	Results    []GenerationOutcome `json:"results"`
	Generating bool                `json:"generating"`
	LastError  string              `json:"last_error,omitempty"`
}
