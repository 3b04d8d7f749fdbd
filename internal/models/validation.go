package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ValidationType selects one of the four work-validation tiers, in increasing
// order of cost and trustworthiness.
type ValidationType string

const (
	ValidationReputation     ValidationType = "REPUTATION"
	ValidationCryptoEconomic ValidationType = "CRYPTO_ECONOMIC"
	ValidationZKML           ValidationType = "ZKML"
	ValidationTEE            ValidationType = "TEE"
)

// ValidationStatus is the adjudication state of a validation request.
// Transitions are one-directional except disputes, which revert an
// APPROVED/REJECTED outcome back through resolution.
type ValidationStatus string

const (
	ValidationPending  ValidationStatus = "PENDING"
	ValidationApproved ValidationStatus = "APPROVED"
	ValidationRejected ValidationStatus = "REJECTED"
	ValidationDisputed ValidationStatus = "DISPUTED"
)

// ValidationRequest asks a designated validator to adjudicate delivered work.
type ValidationRequest struct {
	ID               uuid.UUID        `json:"id"`
	AgentID          uint64           `json:"agent_id"`
	TaskID           common.Hash      `json:"task_id"`
	Requester        common.Address   `json:"requester"`
	ValidationType   ValidationType   `json:"validation_type"`
	RequestURI       string           `json:"request_uri"`
	ContentHash      common.Hash      `json:"content_hash"`
	ValidatorAddress common.Address   `json:"validator_address"`
	Timestamp        time.Time        `json:"timestamp"`
	Status           ValidationStatus `json:"status"`
}

// ValidationResponse is the validator's single verdict on a request.
type ValidationResponse struct {
	RequestID        uuid.UUID      `json:"request_id"`
	ValidatorAddress common.Address `json:"validator_address"`
	Approved         bool           `json:"approved"`
	EvidenceURI      string         `json:"evidence_uri"`
	EvidenceHash     common.Hash    `json:"evidence_hash"`
	Timestamp        time.Time      `json:"timestamp"`
	RewardClaimed    bool           `json:"reward_claimed"`
}

// ValidatorStake is the economic bond backing CRYPTO_ECONOMIC validations.
// Stake only decreases via withdrawal or slashing and never goes negative.
type ValidatorStake struct {
	Validator      common.Address `json:"validator"`
	StakedAmount   int64          `json:"staked_amount"`
	CorrectCount   int64          `json:"correct_count"`
	IncorrectCount int64          `json:"incorrect_count"`
	SlashedAmount  int64          `json:"slashed_amount"`
}
