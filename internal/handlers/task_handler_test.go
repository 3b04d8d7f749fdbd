package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/marketplace"
	"github.com/agoramarket/backend/internal/middleware"
	"github.com/agoramarket/backend/internal/models"
	"github.com/agoramarket/backend/internal/token"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubOwners struct {
	owners map[uint64]common.Address
}

func (s stubOwners) OwnerOf(agentID uint64) (common.Address, error) {
	owner, ok := s.owners[agentID]
	if !ok {
		return common.Address{}, models.ErrNotFound
	}
	return owner, nil
}

func (s stubOwners) IsActive(agentID uint64) (bool, error) {
	if _, ok := s.owners[agentID]; !ok {
		return false, models.ErrNotFound
	}
	return true, nil
}

type stubAuthorizer struct {
	calls int
}

func (s *stubAuthorizer) AuthorizeFeedback(common.Address, uint64, common.Address, common.Hash, time.Time) error {
	s.calls++
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var (
	hClient     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	hAgentOwner = common.HexToAddress("0x2222222222222222222222222222222222222222")
	hCustody    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	hAdmin      = common.HexToAddress("0x4444444444444444444444444444444444444444")
	hTreasury   = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

const hAgentID = uint64(7)

func newTestTaskHandler(t *testing.T) (*TaskHandler, *token.Bank) {
	t.Helper()
	owners := stubOwners{owners: map[uint64]common.Address{hAgentID: hAgentOwner}}
	bank := token.NewBank()
	bank.Mint(hClient, 1_000_000000)
	if err := bank.Approve(hClient, hCustody, 1_000_000000); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	engine := marketplace.NewEngine(owners, bank, &stubAuthorizer{}, hCustody, hAdmin)
	if err := engine.ListAgent(hAgentOwner, hAgentID, "coding", 10_000000, []string{"golang"}, nil); err != nil {
		t.Fatalf("ListAgent: %v", err)
	}
	return &TaskHandler{Market: engine, Admin: hAdmin, Logger: slog.Default()}, bank
}

func asCaller(r *http.Request, addr common.Address) *http.Request {
	return r.WithContext(middleware.WithCaller(r.Context(), addr))
}

func createTask(t *testing.T, h *TaskHandler, complexity int) common.Hash {
	t.Helper()
	body := fmt.Sprintf(`{
		"agent_id": %d,
		"skill": "coding",
		"description": "port the billing cron",
		"complexity": %d,
		"deadline": %q
	}`, hAgentID, complexity, time.Now().Add(72*time.Hour).Format(time.RFC3339))

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	req = asCaller(req, hClient)
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp createTaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return common.HexToHash(resp.TaskID)
}

func taskAction(h http.HandlerFunc, id common.Hash, caller common.Address, body string) *httptest.ResponseRecorder {
	if body == "" {
		body = "{}"
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks/"+id.Hex(), strings.NewReader(body))
	req.SetPathValue("id", id.Hex())
	req = asCaller(req, caller)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

// =====================================================================
// POST /v1/tasks
// =====================================================================

func TestCreateTask_ValidPayload(t *testing.T) {
	h, bank := newTestTaskHandler(t)

	body := fmt.Sprintf(`{
		"agent_id": %d,
		"skill": "coding",
		"description": "port the billing cron",
		"complexity": 4,
		"deadline": %q
	}`, hAgentID, time.Now().Add(72*time.Hour).Format(time.RFC3339))

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	req = asCaller(req, hClient)
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp createTaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Price != 40_000000 {
		t.Errorf("price = %d, want 40000000", resp.Price)
	}
	if resp.Status != string(models.TaskStatusOpen) {
		t.Errorf("status = %q, want OPEN", resp.Status)
	}
	if got := bank.BalanceOf(hCustody); got != 40_000000 {
		t.Errorf("custody balance = %d, want 40000000", got)
	}
}

func TestCreateTask_BadComplexity(t *testing.T) {
	h, _ := newTestTaskHandler(t)

	body := fmt.Sprintf(`{
		"agent_id": %d,
		"skill": "coding",
		"description": "x",
		"complexity": 11,
		"deadline": %q
	}`, hAgentID, time.Now().Add(72*time.Hour).Format(time.RFC3339))

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	req = asCaller(req, hClient)
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateTask_Unauthenticated(t *testing.T) {
	h, _ := newTestTaskHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader("{}"))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

// =====================================================================
// Lifecycle: accept, complete, validate
// =====================================================================

func TestTaskLifecycle_ApprovalPaysAgent(t *testing.T) {
	h, bank := newTestTaskHandler(t)
	id := createTask(t, h, 4)

	if rec := taskAction(h.Accept, id, hAgentOwner, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("accept: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := taskAction(h.Complete, id, hAgentOwner, `{"result_uri":"ipfs://result"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("complete: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = taskAction(h.Validate, id, hClient, `{"approved":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != string(models.TaskStatusValidated) {
		t.Errorf("status = %q, want VALIDATED", resp["status"])
	}
	// 40 tokens minus the 2.5% fee.
	if got := bank.BalanceOf(hAgentOwner); got != 39_000000 {
		t.Errorf("agent balance = %d, want 39000000", got)
	}
}

func TestAcceptTask_WrongCaller(t *testing.T) {
	h, _ := newTestTaskHandler(t)
	id := createTask(t, h, 2)

	rec := taskAction(h.Accept, id, hClient, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestValidateTask_BeforeCompletion(t *testing.T) {
	h, _ := newTestTaskHandler(t)
	id := createTask(t, h, 2)

	rec := taskAction(h.Validate, id, hClient, `{"approved":true}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelTask_BeforeWindowElapses(t *testing.T) {
	h, _ := newTestTaskHandler(t)
	id := createTask(t, h, 2)

	// Freshly created: the 24h unaccepted window has not elapsed yet.
	rec := taskAction(h.Cancel, id, hClient, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

// =====================================================================
// GET /v1/tasks/{id}
// =====================================================================

func TestGetTask(t *testing.T) {
	h, _ := newTestTaskHandler(t)
	id := createTask(t, h, 3)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/"+id.Hex(), nil)
	req.SetPathValue("id", id.Hex())
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var task models.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Price != 30_000000 {
		t.Errorf("price = %d, want 30000000", task.Price)
	}
}

func TestGetTask_BadID(t *testing.T) {
	h, _ := newTestTaskHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/42", nil)
	req.SetPathValue("id", "42")
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetTask_Unknown(t *testing.T) {
	h, _ := newTestTaskHandler(t)

	id := common.HexToHash("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/"+id.Hex(), nil)
	req.SetPathValue("id", id.Hex())
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

// =====================================================================
// POST /v1/admin/fees/withdraw
// =====================================================================

func TestWithdrawFees(t *testing.T) {
	h, bank := newTestTaskHandler(t)
	id := createTask(t, h, 4)
	taskAction(h.Accept, id, hAgentOwner, "")
	taskAction(h.Complete, id, hAgentOwner, `{"result_uri":"ipfs://result"}`)
	taskAction(h.Validate, id, hClient, `{"approved":true}`)

	body := fmt.Sprintf(`{"to": %q}`, hTreasury.Hex())
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/fees/withdraw", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.WithdrawFees(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["amount"] != 1_000000 {
		t.Errorf("amount = %d, want 1000000", resp["amount"])
	}
	if got := bank.BalanceOf(hTreasury); got != 1_000000 {
		t.Errorf("treasury balance = %d, want 1000000", got)
	}
}
