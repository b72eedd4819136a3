// Package ingestion defines the payload, response, and Kafka event types used
// by the signed asset-ingestion webhook.
package ingestion

import (
	"encoding/json"
	"time"
)

// AssetType enumerates the kinds of catalog asset the webhook accepts.
type AssetType string

const (
	AssetPromptBundle  AssetType = "prompt_bundle"
	AssetN8NWorkflow   AssetType = "n8n_workflow"
	AssetOpenClawSkill AssetType = "openclaw_skill"
	AssetGPTConfig     AssetType = "gpt_config"
	AssetCodeTemplate  AssetType = "code_template"
	AssetVoiceAgent    AssetType = "voice_agent"
)

// AssetTypes lists every accepted AssetType in declaration order.
var AssetTypes = []AssetType{
	AssetPromptBundle,
	AssetN8NWorkflow,
	AssetOpenClawSkill,
	AssetGPTConfig,
	AssetCodeTemplate,
	AssetVoiceAgent,
}

// Valid reports whether t is a member of AssetTypes.
func (t AssetType) Valid() bool {
	for _, known := range AssetTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AssetPayload is the validated body of an ingest request. Content is kept
// as raw JSON and never inspected.
type AssetPayload struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	AssetType   AssetType       `json:"asset_type"`
	Content     json.RawMessage `json:"content"`
	Platform    []string        `json:"platform"`
	Tags        []string        `json:"tags"`
	IsPremium   bool            `json:"is_premium"`
}

// IngestResponse is returned with 201 Created.
type IngestResponse struct {
	AssetID   string    `json:"asset_id"`
	Title     string    `json:"title"`
	AssetType AssetType `json:"asset_type"`
	IsPremium bool      `json:"is_premium"`
	CreatedAt time.Time `json:"created_at"`
}

// AssetIngestedEvent is the Kafka message produced after a catalog entry is
// created.
type AssetIngestedEvent struct {
	AssetID   string    `json:"asset_id"`
	Title     string    `json:"title"`
	AssetType AssetType `json:"asset_type"`
	IsPremium bool      `json:"is_premium"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}
