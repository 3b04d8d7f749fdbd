package dashboard

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/agoramarket/backend/internal/repository"
)

// MarketStats is the engine-side slice of the stats payload.
type MarketStats interface {
	AccumulatedFees() int64
}

// AgentCounter reports how many identities have been registered.
type AgentCounter interface {
	Count() int
}

// Handler serves the operator dashboard: aggregate marketplace stats
// and admin API key management.
type Handler struct {
	market   MarketStats
	identity AgentCounter
	taskR    *repository.TaskRepo
	validR   *repository.ValidationRepo
	transfR  *repository.TransferRepo
	keyR     *repository.AdminKeyRepo
	log      *slog.Logger
}

func NewHandler(
	market MarketStats,
	identity AgentCounter,
	taskR *repository.TaskRepo,
	validR *repository.ValidationRepo,
	transfR *repository.TransferRepo,
	keyR *repository.AdminKeyRepo,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		market:   market,
		identity: identity,
		taskR:    taskR,
		validR:   validR,
		transfR:  transfR,
		keyR:     keyR,
		log:      log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /v1/admin/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tasksByStatus, err := h.taskR.CountByStatus(ctx)
	if err != nil {
		h.log.Error("task counts failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	validationsByStatus, err := h.validR.CountByStatus(ctx)
	if err != nil {
		h.log.Error("validation counts failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	released, err := h.transfR.SumByType(ctx, "escrow_release")
	if err != nil {
		h.log.Error("release volume failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	refunded, err := h.transfR.SumByType(ctx, "escrow_refund")
	if err != nil {
		h.log.Error("refund volume failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slashed, err := h.transfR.SumByType(ctx, "stake_slash")
	if err != nil {
		h.log.Error("slash volume failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"registered_agents":     h.identity.Count(),
		"tasks_by_status":       tasksByStatus,
		"validations_by_status": validationsByStatus,
		"accumulated_fees":      h.market.AccumulatedFees(),
		"released_volume":       released,
		"refunded_volume":       refunded,
		"slashed_volume":        slashed,
	})
}

// POST /v1/admin/keys
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		http.Error(w, "key generation failed", http.StatusInternalServerError)
		return
	}
	rawKey := "agora_" + hex.EncodeToString(rawBytes)
	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])

	id, err := h.keyR.Create(r.Context(), keyHash, body.Label)
	if err != nil {
		h.log.Error("create admin key failed", "error", err)
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	// The raw key is returned exactly once; only its hash is stored.
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      id,
		"label":   body.Label,
		"raw_key": rawKey,
	})
}

// DELETE /v1/admin/keys/{id}
func (h *Handler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid key ID", http.StatusBadRequest)
		return
	}
	if err := h.keyR.Revoke(r.Context(), keyID); err != nil {
		h.log.Error("revoke admin key failed", "key_id", keyID, "error", err)
		http.Error(w, "revoke failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
