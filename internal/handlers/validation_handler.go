package handlers

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/agoramarket/backend/internal/models"
	"github.com/agoramarket/backend/internal/validation"
)

// ValidationHandler serves the /v1/validations and /v1/validators endpoints.
type ValidationHandler struct {
	Validation *validation.Ledger
	Admin      common.Address
	Logger     *slog.Logger
}

type requestValidationRequest struct {
	AgentID     uint64                `json:"agent_id"`
	TaskID      string                `json:"task_id"`
	Type        models.ValidationType `json:"validation_type"`
	RequestURI  string                `json:"request_uri"`
	ContentHash string                `json:"content_hash"`
	Validator   string                `json:"validator"`
}

// Request handles POST /v1/validations.
func (h *ValidationHandler) Request(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	var req requestValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !common.IsHexAddress(req.Validator) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid validator address"})
		return
	}
	id, err := h.Validation.RequestValidation(caller, req.AgentID, common.HexToHash(req.TaskID), req.Type, req.RequestURI, common.HexToHash(req.ContentHash), common.HexToAddress(req.Validator))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"request_id": id.String()})
}

type validationResponseRequest struct {
	Approved     bool   `json:"approved"`
	EvidenceURI  string `json:"evidence_uri"`
	EvidenceHash string `json:"evidence_hash"`
	ProofBlob    string `json:"proof_blob,omitempty"` // base64, required for ZKML/TEE
}

// Respond handles POST /v1/validations/{id}/response: the designated
// validator's verdict.
func (h *ValidationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	var req validationResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	var blob []byte
	if req.ProofBlob != "" {
		var err error
		blob, err = base64.StdEncoding.DecodeString(req.ProofBlob)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "proof_blob is not valid base64"})
			return
		}
	}
	if err := h.Validation.SubmitValidationResponse(caller, id, req.Approved, req.EvidenceURI, common.HexToHash(req.EvidenceHash), blob); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dispute handles POST /v1/validations/{id}/dispute.
func (h *ValidationHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	if err := h.Validation.DisputeValidation(caller, id); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resolveDisputeRequest struct {
	ValidatorWasCorrect bool `json:"validator_was_correct"`
}

// Resolve handles POST /v1/admin/validations/{id}/resolve. Admin-key
// authentication happens in middleware.
func (h *ValidationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	var req resolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.Validation.ResolveDispute(h.Admin, id, req.ValidatorWasCorrect); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validationDetail struct {
	models.ValidationRequest
	Response *models.ValidationResponse `json:"response,omitempty"`
}

// Get handles GET /v1/validations/{id}: the request with its response when
// one exists.
func (h *ValidationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathRequestID(w, r)
	if !ok {
		return
	}
	req, err := h.Validation.GetRequest(id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	detail := validationDetail{ValidationRequest: req}
	if resp, err := h.Validation.GetResponse(id); err == nil {
		detail.Response = &resp
	}
	writeJSON(w, http.StatusOK, detail)
}

// ListByAgent handles GET /v1/agents/{id}/validations.
func (h *ValidationHandler) ListByAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAgentID(w, r)
	if !ok {
		return
	}
	offset, limit := pagination(r, 50)
	requests := h.Validation.GetValidationsByAgent(id, offset, limit)
	if requests == nil {
		requests = []models.ValidationRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

type stakeRequest struct {
	Amount int64 `json:"amount"`
}

// Stake handles POST /v1/validators/stake.
func (h *ValidationHandler) Stake(w http.ResponseWriter, r *http.Request) {
	h.stakeAction(w, r, h.Validation.RegisterValidatorStake)
}

// Withdraw handles POST /v1/validators/withdraw.
func (h *ValidationHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.stakeAction(w, r, h.Validation.WithdrawValidatorStake)
}

// Reputation handles GET /v1/validators/{address}.
func (h *ValidationHandler) Reputation(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid validator address"})
		return
	}
	stake, err := h.Validation.GetValidatorReputation(common.HexToAddress(raw))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stake)
}

func (h *ValidationHandler) stakeAction(w http.ResponseWriter, r *http.Request, fn func(common.Address, int64) error) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := fn(caller, req.Amount); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathRequestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request id"})
		return uuid.Nil, false
	}
	return id, true
}
