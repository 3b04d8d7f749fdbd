package router

import (
	"net/http"

	"github.com/agoramarket/backend/internal/auth"
	"github.com/agoramarket/backend/internal/dashboard"
	"github.com/agoramarket/backend/internal/handlers"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth       *auth.Handler
	Agents     *handlers.AgentHandler
	Tasks      *handlers.TaskHandler
	Feedback   *handlers.FeedbackHandler
	Validation *handlers.ValidationHandler
	Token      *handlers.TokenHandler
	Dashboard  *dashboard.Handler
}

// New returns an http.Handler serving the v1 API.
// Chains: CallerAuth for everything under /v1 except auth and public
// reads, CallerAuth+AllowanceCheck on task creation, AdminAuth on
// /v1/admin.
func New(h Handlers, callerAuth, allowanceCheck, adminAuth Middleware) http.Handler {
	mux := http.NewServeMux()

	authed := func(fn http.HandlerFunc) http.Handler {
		return callerAuth(fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return adminAuth(fn)
	}

	mux.HandleFunc("POST /v1/auth/register", h.Auth.Register)
	mux.HandleFunc("POST /v1/auth/login", h.Auth.Login)

	// Agent identities and listings.
	mux.Handle("POST /v1/agents", authed(h.Agents.Register))
	mux.HandleFunc("GET /v1/agents", h.Agents.List)
	mux.HandleFunc("GET /v1/agents/search", h.Agents.Search)
	mux.HandleFunc("GET /v1/agents/{id}", h.Agents.Get)
	mux.Handle("PUT /v1/agents/{id}/card", authed(h.Agents.UpdateCard))
	mux.Handle("POST /v1/agents/{id}/active", authed(h.Agents.SetActive))
	mux.Handle("POST /v1/agents/{id}/transfer", authed(h.Agents.Transfer))
	mux.Handle("POST /v1/agents/{id}/listing", authed(h.Agents.Listing))
	mux.Handle("PUT /v1/agents/{id}/listing", authed(h.Agents.Listing))

	// Task lifecycle. Creation additionally passes the allowance check.
	mux.Handle("POST /v1/tasks", callerAuth(allowanceCheck(http.HandlerFunc(h.Tasks.Create))))
	mux.Handle("GET /v1/tasks", authed(h.Tasks.List))
	mux.Handle("GET /v1/tasks/{id}", authed(h.Tasks.Get))
	mux.Handle("GET /v1/agents/{id}/tasks", authed(h.Tasks.ListByAgent))
	mux.Handle("POST /v1/tasks/{id}/accept", authed(h.Tasks.Accept))
	mux.Handle("POST /v1/tasks/{id}/complete", authed(h.Tasks.Complete))
	mux.Handle("POST /v1/tasks/{id}/validate", authed(h.Tasks.Validate))
	mux.Handle("POST /v1/tasks/{id}/dispute", authed(h.Tasks.Dispute))
	mux.Handle("POST /v1/tasks/{id}/cancel", authed(h.Tasks.Cancel))

	// Feedback.
	mux.Handle("POST /v1/feedback/authorize", authed(h.Feedback.Authorize))
	mux.Handle("POST /v1/feedback", authed(h.Feedback.Submit))
	mux.HandleFunc("GET /v1/agents/{id}/feedback", h.Feedback.History)
	mux.HandleFunc("GET /v1/agents/{id}/score", h.Feedback.Score)
	mux.HandleFunc("GET /v1/tasks/{id}/feedback", h.Feedback.ByTask)

	// Validation and validator staking.
	mux.Handle("POST /v1/validations", authed(h.Validation.Request))
	mux.Handle("POST /v1/validations/{id}/response", authed(h.Validation.Respond))
	mux.Handle("POST /v1/validations/{id}/dispute", authed(h.Validation.Dispute))
	mux.HandleFunc("GET /v1/validations/{id}", h.Validation.Get)
	mux.HandleFunc("GET /v1/agents/{id}/validations", h.Validation.ListByAgent)
	mux.Handle("POST /v1/validators/stake", authed(h.Validation.Stake))
	mux.Handle("POST /v1/validators/withdraw", authed(h.Validation.Withdraw))
	mux.HandleFunc("GET /v1/validators/{address}", h.Validation.Reputation)

	// Settlement token.
	mux.Handle("POST /v1/token/approve", authed(h.Token.Approve))
	mux.Handle("GET /v1/token/balance", authed(h.Token.Balance))

	// Operator endpoints.
	mux.Handle("POST /v1/admin/mint", admin(h.Token.Mint))
	mux.Handle("GET /v1/admin/stats", admin(h.Dashboard.Stats))
	mux.Handle("POST /v1/admin/fees/withdraw", admin(h.Tasks.WithdrawFees))
	mux.Handle("POST /v1/admin/validations/{id}/resolve", admin(h.Validation.Resolve))
	mux.Handle("POST /v1/admin/keys", admin(h.Dashboard.CreateKey))
	mux.Handle("DELETE /v1/admin/keys/{id}", admin(h.Dashboard.RevokeKey))

	return mux
}
