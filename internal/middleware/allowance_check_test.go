package middleware

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/models"
)

type stubListings struct {
	listings map[uint64]models.AgentListing
	custody  common.Address
}

func (s *stubListings) GetAgentListing(agentID uint64) (models.AgentListing, error) {
	l, ok := s.listings[agentID]
	if !ok {
		return models.AgentListing{}, fmt.Errorf("listing for agent %d: %w", agentID, models.ErrNotFound)
	}
	return l, nil
}

func (s *stubListings) CustodyAddress() common.Address { return s.custody }

type stubAllowances map[common.Address]int64

func (s stubAllowances) Allowance(owner, _ common.Address) int64 { return s[owner] }

func newAllowanceCheck(approved int64) (http.Handler, common.Address) {
	caller := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	listings := &stubListings{
		listings: map[uint64]models.AgentListing{1: {AgentID: 1, IsActive: true, BasePrice: 10_000000}},
		custody:  common.HexToAddress("0x00000000000000000000000000000000000000cc"),
	}
	allowances := stubAllowances{caller: approved}

	// Echo the body back so tests can verify the handler still sees it.
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	})
	return AllowanceCheck(listings, allowances)(echo), caller
}

func TestAllowanceCheck_SufficientAllowance(t *testing.T) {
	mw, caller := newAllowanceCheck(50_000000)

	body := `{"agent_id":1,"complexity":5,"skill":"golang"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	req = req.WithContext(WithCaller(req.Context(), caller))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	// The body must survive the peek for the downstream handler.
	if rec.Body.String() != body {
		t.Errorf("body not restored: %q", rec.Body.String())
	}
}

func TestAllowanceCheck_InsufficientAllowance(t *testing.T) {
	mw, caller := newAllowanceCheck(49_000000) // price is 10_000000 x 5

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(`{"agent_id":1,"complexity":5}`))
	req = req.WithContext(WithCaller(req.Context(), caller))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAllowanceCheck_Rejections(t *testing.T) {
	mw, caller := newAllowanceCheck(100_000000)

	cases := []struct {
		name string
		body string
		auth bool
		want int
	}{
		{"unauthenticated", `{"agent_id":1,"complexity":3}`, false, http.StatusUnauthorized},
		{"malformed JSON", `{"agent_id":`, true, http.StatusBadRequest},
		{"complexity too low", `{"agent_id":1,"complexity":0}`, true, http.StatusBadRequest},
		{"complexity too high", `{"agent_id":1,"complexity":11}`, true, http.StatusBadRequest},
		{"unlisted agent", `{"agent_id":404,"complexity":3}`, true, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(tc.body))
			if tc.auth {
				req = req.WithContext(WithCaller(req.Context(), caller))
			}
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}
