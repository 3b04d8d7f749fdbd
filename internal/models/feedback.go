package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// MaxFeedbackScore is the inclusive upper bound for feedback scores.
const MaxFeedbackScore = 100

// FeedbackEntry is an immutable client rating of an agent for one task.
// Exactly one entry exists per task id.
type FeedbackEntry struct {
	ID            uuid.UUID      `json:"id"`
	AgentID       uint64         `json:"agent_id"`
	ClientAddress common.Address `json:"client_address"`
	TaskID        common.Hash    `json:"task_id"`
	Score         uint8          `json:"score"`
	Skill         string         `json:"skill"`
	Context       string         `json:"context"`
	DetailURI     string         `json:"detail_uri"`
	ContentHash   common.Hash    `json:"content_hash"`
	Proof         PaymentProof   `json:"payment_proof"`
	Timestamp     time.Time      `json:"timestamp"`
}

// PaymentProof is evidence that the client actually paid the agent. A proof
// with a valid signature weights the entry 10×; an absent or invalid
// signature leaves the entry at weight 1 (the feedback itself is not
// rejected). A missing payer/payee or zero amount fails basic validity and
// does reject the feedback.
type PaymentProof struct {
	Payer          common.Address `json:"payer"`
	Payee          common.Address `json:"payee"`
	NetworkID      uint64         `json:"network_id"`
	TransactionRef string         `json:"transaction_ref"`
	Amount         int64          `json:"amount"`
	Timestamp      time.Time      `json:"timestamp"`
	// Signature is optional: empty means an already-settled, directly
	// observable transfer accepted at face value.
	Signature []byte `json:"signature,omitempty"`
}
