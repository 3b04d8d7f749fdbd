package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/token"
)

// TokenHandler serves the settlement-token endpoints: allowance grants,
// balance queries, and the admin mint used to fund accounts.
type TokenHandler struct {
	Bank    *token.Bank
	Custody common.Address
	Logger  *slog.Logger
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  int64  `json:"amount"`
}

// Approve handles POST /v1/token/approve. An empty spender defaults to the
// marketplace custody address, which is what task escrow and validator
// staking draw from.
func (h *TokenHandler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	spender := h.Custody
	if req.Spender != "" {
		if !common.IsHexAddress(req.Spender) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid spender address"})
			return
		}
		spender = common.HexToAddress(req.Spender)
	}
	if err := h.Bank.Approve(caller, spender, req.Amount); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"spender":   spender.Hex(),
		"allowance": h.Bank.Allowance(caller, spender),
	})
}

// Balance handles GET /v1/token/balance: the caller's balance and the
// allowance currently granted to custody.
func (h *TokenHandler) Balance(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":           caller.Hex(),
		"balance":           h.Bank.BalanceOf(caller),
		"custody_allowance": h.Bank.Allowance(caller, h.Custody),
	})
}

type mintRequest struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// Mint handles POST /v1/admin/mint.
func (h *TokenHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid address"})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be positive"})
		return
	}
	addr := common.HexToAddress(req.Address)
	h.Bank.Mint(addr, req.Amount)
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr.Hex(),
		"balance": h.Bank.BalanceOf(addr),
	})
}
