package models

import "time"

type JsonModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TryOnBatch is the audit row of one batch run. Image data is never stored.
type TryOnBatch struct {
	JsonModel
	BatchID      string               `gorm:"uniqueIndex" json:"batch_id"`
	Source       string               `json:"source"` // api, worker, cli
	Status       string               `json:"status"` // completed, failed
	OutfitCount  int                  `json:"outfit_count"`
	SkippedCount int                  `json:"skipped_count"`
	FailedCount  int                  `json:"failed_count"`
	Duration     *float64             `json:"duration"` // in seconds
	LLMModel     *string              `json:"llm_model"`
	ErrorMessage *string              `gorm:"type:text" json:"error_message"`
	Outcomes     []TryOnOutcomeRecord `json:"outcomes"`
}

type TryOnOutcomeRecord struct {
	JsonModel
	TryOnBatchID           uint     `json:"-"`
	OutfitID               string   `json:"outfit_id"`
	Status                 string   `json:"status"` // completed, failed
	GarmentCount           int      `json:"garment_count"`
	HasInstructions        bool     `json:"has_instructions"`
	HasImage               bool     `json:"has_image"`
	HasText                bool     `json:"has_text"`
	Duration               *float64 `json:"duration"`
	LLMInputTokenCount     *int32   `json:"llm_input_token_usage"`
	LLMOutputTokenCount    *int32   `json:"llm_output_token_usage"`
	LLMTotalTokenCount     *int32   `json:"llm_total_token_usage"`
	GenerationErrorMessage *string  `gorm:"type:text" json:"generation_error_message"`
}
