package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/marketplace"
	"github.com/agoramarket/backend/internal/models"
)

// TaskHandler serves the /v1/tasks endpoints: the full lifecycle from
// creation through escrow release, plus the admin fee withdrawal.
type TaskHandler struct {
	Market *marketplace.Engine
	Admin  common.Address
	Logger *slog.Logger
}

type createTaskRequest struct {
	AgentID     uint64    `json:"agent_id"`
	Skill       string    `json:"skill"`
	Description string    `json:"description"`
	FilesURI    string    `json:"files_uri"`
	Complexity  int       `json:"complexity"`
	Deadline    time.Time `json:"deadline"`
}

type createTaskResponse struct {
	TaskID string `json:"task_id"`
	Price  int64  `json:"price"`
	Status string `json:"status"`
}

// Create handles POST /v1/tasks. The allowance middleware has already
// pre-checked funding; the engine locks price = base price x complexity in
// escrow.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	id, err := h.Market.CreateTask(caller, req.AgentID, req.Skill, req.Description, req.FilesURI, req.Complexity, req.Deadline)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	task, err := h.Market.GetTask(id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, createTaskResponse{
		TaskID: id.Hex(),
		Price:  task.Price,
		Status: string(task.Status),
	})
}

// Get handles GET /v1/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	task, err := h.Market.GetTask(id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// List handles GET /v1/tasks: the authenticated caller's tasks as client.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	offset, limit := pagination(r, 50)
	tasks := h.Market.GetTasksByClient(caller, offset, limit)
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// ListByAgent handles GET /v1/agents/{id}/tasks.
func (h *TaskHandler) ListByAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAgentID(w, r)
	if !ok {
		return
	}
	offset, limit := pagination(r, 50)
	tasks := h.Market.GetTasksByAgent(id, offset, limit)
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Accept handles POST /v1/tasks/{id}/accept.
func (h *TaskHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.taskCommand(w, r, func(caller common.Address, id common.Hash) error {
		return h.Market.AcceptTask(caller, id)
	})
}

type completeTaskRequest struct {
	ResultURI string `json:"result_uri"`
}

// Complete handles POST /v1/tasks/{id}/complete.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	var req completeTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.Market.CompleteTask(caller, id, req.ResultURI); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validateTaskRequest struct {
	Approved bool `json:"approved"`
}

// Validate handles POST /v1/tasks/{id}/validate: the client's verdict on the
// delivered result. Approval pays the agent; rejection opens a dispute.
func (h *TaskHandler) Validate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	var req validateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.Market.ValidateAndRelease(caller, id, req.Approved); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	task, err := h.Market.GetTask(id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id.Hex(), "status": string(task.Status)})
}

// Dispute handles POST /v1/tasks/{id}/dispute.
func (h *TaskHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	h.taskCommand(w, r, func(caller common.Address, id common.Hash) error {
		return h.Market.DisputeTask(caller, id)
	})
}

// Cancel handles POST /v1/tasks/{id}/cancel.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.taskCommand(w, r, func(caller common.Address, id common.Hash) error {
		return h.Market.CancelTask(caller, id)
	})
}

type withdrawFeesRequest struct {
	To string `json:"to"`
}

// WithdrawFees handles POST /v1/admin/fees/withdraw. Admin-key
// authentication happens in middleware; the engine call is attributed to the
// configured admin address.
func (h *TaskHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !common.IsHexAddress(req.To) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid destination address"})
		return
	}
	amount, err := h.Market.WithdrawFees(h.Admin, common.HexToAddress(req.To))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

// taskCommand runs a body-less caller+task engine command; the engine
// decides which caller (client or agent owner) the operation accepts.
func (h *TaskHandler) taskCommand(w http.ResponseWriter, r *http.Request, fn func(common.Address, common.Hash) error) {
	caller, ok := callerOr401(w, r)
	if !ok {
		return
	}
	id, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	if err := fn(caller, id); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathTaskID parses the 32-byte task hash from the URL path.
func pathTaskID(w http.ResponseWriter, r *http.Request) (common.Hash, bool) {
	raw := r.PathValue("id")
	if len(raw) != 2+2*common.HashLength || raw[:2] != "0x" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return common.Hash{}, false
	}
	return common.HexToHash(raw), true
}
