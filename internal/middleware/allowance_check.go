package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/models"
)

// ListingSource resolves the listing priced against during the allowance
// pre-check. Satisfied by *marketplace.Engine.
type ListingSource interface {
	GetAgentListing(agentID uint64) (models.AgentListing, error)
	CustodyAddress() common.Address
}

// AllowanceSource reads the caller's spending approval. Satisfied by
// *token.Bank.
type AllowanceSource interface {
	Allowance(owner, spender common.Address) int64
}

// taskPeek is the subset of the create-task body needed to price the request.
type taskPeek struct {
	AgentID    uint64 `json:"agent_id"`
	Complexity int    `json:"complexity"`
}

// AllowanceCheck rejects task creation early when the caller's token
// allowance cannot cover listing price x complexity. Reads the body to peek
// the fields, then replaces r.Body so the handler can re-read it. The engine
// re-checks under its own lock; this only spares it doomed requests.
func AllowanceCheck(listings ListingSource, allowances AllowanceSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromCtx(r.Context())
			if caller == (common.Address{}) {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek taskPeek
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.Complexity < models.MinComplexity || peek.Complexity > models.MaxComplexity {
				http.Error(w, fmt.Sprintf(`{"error":"complexity must be between %d and %d"}`, models.MinComplexity, models.MaxComplexity), http.StatusBadRequest)
				return
			}

			listing, err := listings.GetAgentListing(peek.AgentID)
			if err != nil {
				http.Error(w, `{"error":"agent is not listed"}`, http.StatusNotFound)
				return
			}
			price := listing.BasePrice * int64(peek.Complexity)
			if allowances.Allowance(caller, listings.CustodyAddress()) < price {
				http.Error(w, fmt.Sprintf(`{"error":"task price %d exceeds approved allowance"}`, price), http.StatusPaymentRequired)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
