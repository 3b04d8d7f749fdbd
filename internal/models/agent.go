package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AgentIdentity is a uniquely-held, transferable service-provider identity.
// Exactly one live identity exists per owner address at a time.
type AgentIdentity struct {
	ID               uint64         `json:"id"`
	OwnerAddress     common.Address `json:"owner_address"`
	MetadataURI      string         `json:"metadata_uri"`
	MetadataHash     common.Hash    `json:"metadata_hash"`
	TokenMetadataURI string         `json:"token_metadata_uri"`
	RegisteredAt     time.Time      `json:"registered_at"`
	Active           bool           `json:"active"`
}

// AgentListing is the marketplace-facing offer of a registered agent.
// Accumulator fields persist across listing updates.
type AgentListing struct {
	AgentID                  uint64           `json:"agent_id"`
	IsActive                 bool             `json:"is_active"`
	Category                 string           `json:"category"`
	BasePrice                int64            `json:"base_price"`
	Skills                   []string         `json:"skills"`
	SupportedValidationTypes []ValidationType `json:"supported_validation_types"`
	TotalTasksCompleted      int64            `json:"total_tasks_completed"`
	TotalEarnings            int64            `json:"total_earnings"`
}
