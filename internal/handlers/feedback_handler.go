package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/models"
	"github.com/agoramarket/backend/internal/reputation"
)

// FeedbackHandler serves the /v1/feedback endpoints and the per-agent score
// queries.
type FeedbackHandler struct {
	Reputation *reputation.Ledger
	Logger     *slog.Logger
}

type authorizeFeedbackRequest struct {
	AgentID   uint64    `json:"agent_id"`
	Client    string    `json:"client"`
	TaskID    string    `json:"task_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authorize handles POST /v1/feedback/authorize: the agent owner (or the
// marketplace engine, internally) opens a feedback window for a client.
func (h *FeedbackHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	var req authorizeFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !common.IsHexAddress(req.Client) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid client address"})
		return
	}
	err := h.Reputation.AuthorizeFeedback(caller, req.AgentID, common.HexToAddress(req.Client), common.HexToHash(req.TaskID), req.ExpiresAt)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitFeedbackRequest struct {
	AgentID     uint64              `json:"agent_id"`
	TaskID      string              `json:"task_id"`
	Score       uint8               `json:"score"`
	Skill       string              `json:"skill"`
	Context     string              `json:"context"`
	DetailURI   string              `json:"detail_uri"`
	ContentHash string              `json:"content_hash"`
	Proof       models.PaymentProof `json:"payment_proof"`
}

// Submit handles POST /v1/feedback.
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	var req submitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	id, err := h.Reputation.SubmitFeedback(caller, req.AgentID, common.HexToHash(req.TaskID), req.Score, req.Skill, req.Context, req.DetailURI, common.HexToHash(req.ContentHash), req.Proof)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"feedback_id": id.String()})
}

// History handles GET /v1/agents/{id}/feedback.
func (h *FeedbackHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAgentID(w, r)
	if !ok {
		return
	}
	offset, limit := pagination(r, 50)
	entries := h.Reputation.GetFeedbackHistory(id, offset, limit)
	if entries == nil {
		entries = []models.FeedbackEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type scoreResponse struct {
	AgentID uint64 `json:"agent_id"`
	Skill   string `json:"skill,omitempty"`
	Score   int    `json:"score"`
	Samples int    `json:"samples"`
}

// Score handles GET /v1/agents/{id}/score, optionally filtered by ?skill=.
func (h *FeedbackHandler) Score(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAgentID(w, r)
	if !ok {
		return
	}
	resp := scoreResponse{AgentID: id, Skill: r.URL.Query().Get("skill")}
	if resp.Skill != "" {
		resp.Score, resp.Samples = h.Reputation.CalculateScoreBySkill(id, resp.Skill)
	} else {
		resp.Score, resp.Samples = h.Reputation.CalculateAverageScore(id)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ByTask handles GET /v1/feedback/task/{id}.
func (h *FeedbackHandler) ByTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	entry, err := h.Reputation.GetFeedbackByTask(id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
