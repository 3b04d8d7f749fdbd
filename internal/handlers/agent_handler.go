package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/identity"
	"github.com/agoramarket/backend/internal/marketplace"
	"github.com/agoramarket/backend/internal/models"
	"github.com/agoramarket/backend/internal/reputation"
	"github.com/agoramarket/backend/internal/services"
	"github.com/agoramarket/backend/internal/validation"
)

// AgentHandler serves the /v1/agents endpoints: identity registration and
// transfer, card maintenance, listings, and reputation summaries.
type AgentHandler struct {
	Identity   *identity.Store
	Market     *marketplace.Engine
	Reputation *reputation.Ledger
	Validation *validation.Ledger
	Cards      *services.CardChecker
	Finder     *services.Finder
	Logger     *slog.Logger
}

type registerAgentRequest struct {
	MetadataURI      string          `json:"metadata_uri"`
	MetadataHash     string          `json:"metadata_hash"`
	TokenMetadataURI string          `json:"token_metadata_uri"`
	Card             json.RawMessage `json:"card,omitempty"`
}

type registerAgentResponse struct {
	AgentID uint64 `json:"agent_id"`
}

// Register handles POST /v1/agents. When the request carries the card
// document inline it is schema-checked before the identity is minted.
func (h *AgentHandler) Register(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.Card) > 0 {
		if err := h.Cards.Validate(r.Context(), req.Card); err != nil {
			if errors.Is(err, services.ErrCardInvalid) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
				return
			}
			h.Logger.Error("card check", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "card validation failed"})
			return
		}
	}

	id, err := h.Identity.Register(caller, req.MetadataURI, common.HexToHash(req.MetadataHash), req.TokenMetadataURI)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerAgentResponse{AgentID: id})
}

type agentResponse struct {
	models.AgentIdentity
	Listing      *models.AgentListing `json:"listing,omitempty"`
	Score        int                  `json:"score"`
	ScoreSamples int                  `json:"score_samples"`
	ApprovalRate int                  `json:"approval_rate"`
	Adjudicated  int                  `json:"adjudicated"`
}

// Get handles GET /v1/agents/{id}: the identity together with its listing
// and reputation summary.
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAgentID(w, r)
	if !ok {
		return
	}
	ident, err := h.Identity.GetByID(id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}

	resp := agentResponse{AgentIdentity: ident}
	if listing, err := h.Market.GetAgentListing(id); err == nil {
		resp.Listing = &listing
	}
	resp.Score, resp.ScoreSamples = h.Reputation.CalculateAverageScore(id)
	resp.ApprovalRate, resp.Adjudicated = h.Validation.CalculateApprovalRate(id)
	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /v1/agents.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, 50)
	agents := h.Identity.List(offset, limit)
	if agents == nil {
		agents = []models.AgentIdentity{}
	}
	writeJSON(w, http.StatusOK, agents)
}

type updateCardRequest struct {
	MetadataURI  string          `json:"metadata_uri"`
	MetadataHash string          `json:"metadata_hash"`
	Card         json.RawMessage `json:"card,omitempty"`
}

// UpdateCard handles PUT /v1/agents/{id}/card.
func (h *AgentHandler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathAgentID(w, r)
	if !ok {
		return
	}
	var req updateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.Card) > 0 {
		if err := h.Cards.Validate(r.Context(), req.Card); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
	}
	if err := h.Identity.UpdateCard(caller, id, req.MetadataURI, common.HexToHash(req.MetadataHash)); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive handles POST /v1/agents/{id}/active.
func (h *AgentHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathAgentID(w, r)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.Identity.SetActive(caller, id, req.Active); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transferRequest struct {
	NewOwner string `json:"new_owner"`
}

// Transfer handles POST /v1/agents/{id}/transfer.
func (h *AgentHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathAgentID(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !common.IsHexAddress(req.NewOwner) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid new_owner address"})
		return
	}
	if err := h.Identity.Transfer(caller, id, common.HexToAddress(req.NewOwner)); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type listingRequest struct {
	Active          *bool                   `json:"active,omitempty"`
	Category        string                  `json:"category"`
	BasePrice       int64                   `json:"base_price"`
	Skills          []string                `json:"skills"`
	ValidationTypes []models.ValidationType `json:"validation_types"`
}

// Listing handles POST and PUT /v1/agents/{id}/listing: POST creates or
// replaces the listing, PUT updates it in place.
func (h *AgentHandler) Listing(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathAgentID(w, r)
	if !ok {
		return
	}
	var req listingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	var err error
	if r.Method == http.MethodPut {
		active := true
		if req.Active != nil {
			active = *req.Active
		}
		err = h.Market.UpdateAgentListing(caller, id, active, req.Category, req.BasePrice, req.Skills, req.ValidationTypes)
	} else {
		err = h.Market.ListAgent(caller, id, req.Category, req.BasePrice, req.Skills, req.ValidationTypes)
	}
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /v1/agents/search?skill=&max_price=.
func (h *AgentHandler) Search(w http.ResponseWriter, r *http.Request) {
	skill := r.URL.Query().Get("skill")
	if skill == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "skill query parameter is required"})
		return
	}
	maxPrice := int64(0)
	if raw := r.URL.Query().Get("max_price"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid max_price"})
			return
		}
		maxPrice = v
	}

	ranked := h.Finder.RankAgents(services.Query{
		Skill:    skill,
		MaxPrice: maxPrice,
		Routing:  services.Routing(r.URL.Query().Get("routing")),
	})
	writeJSON(w, http.StatusOK, ranked)
}

// --- helpers ---

func pathAgentID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agent id"})
		return 0, false
	}
	return id, true
}

func pagination(r *http.Request, defaultLimit int) (int, int) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = defaultLimit
	}
	return offset, limit
}
