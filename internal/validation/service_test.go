package validation

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/agoramarket/backend/internal/models"
	"github.com/agoramarket/backend/internal/token"
)

var (
	agentOwner = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	requester  = common.HexToAddress("0x0000000000000000000000000000000000000d02")
	validator  = common.HexToAddress("0x0000000000000000000000000000000000000d03")
	custody    = common.HexToAddress("0x0000000000000000000000000000000000000d04")
	admin      = common.HexToAddress("0x0000000000000000000000000000000000000d05")
	stranger   = common.HexToAddress("0x0000000000000000000000000000000000000d06")
)

const testAgent = uint64(1)

type fakeOwners map[uint64]common.Address

func (f fakeOwners) OwnerOf(id uint64) (common.Address, error) {
	owner, ok := f[id]
	if !ok {
		return common.Address{}, fmt.Errorf("agent %d: %w", id, models.ErrNotFound)
	}
	return owner, nil
}

func newTestLedger(t *testing.T) (*Ledger, *token.Bank) {
	t.Helper()
	bank := token.NewBank()
	bank.Mint(validator, 10_000_000000)
	bank.Mint(custody, 100_000000) // reward pool
	bank.Approve(validator, custody, 10_000_000000)

	l := NewLedger(fakeOwners{testAgent: agentOwner}, bank, custody, admin,
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
		WithEconomics(1_000000, 100000),
	)
	return l, bank
}

func stakeMin(t *testing.T, l *Ledger, amount int64) {
	t.Helper()
	if err := l.RegisterValidatorStake(validator, amount); err != nil {
		t.Fatalf("RegisterValidatorStake: %v", err)
	}
}

func request(t *testing.T, l *Ledger, vtype models.ValidationType) uuid.UUID {
	t.Helper()
	id, err := l.RequestValidation(requester, testAgent, common.BytesToHash([]byte{1}), vtype, "ipfs://request", common.Hash{}, validator)
	if err != nil {
		t.Fatalf("RequestValidation(%s): %v", vtype, err)
	}
	return id
}

func respond(t *testing.T, l *Ledger, id uuid.UUID, approved bool) {
	t.Helper()
	if err := l.SubmitValidationResponse(validator, id, approved, "ipfs://evidence", common.Hash{}, nil); err != nil {
		t.Fatalf("SubmitValidationResponse: %v", err)
	}
}

func TestStakeAccumulatesAndMovesFunds(t *testing.T) {
	l, bank := newTestLedger(t)

	if err := l.RegisterValidatorStake(validator, 500000); !errors.Is(err, models.ErrInsufficientStake) {
		t.Fatalf("below-minimum deposit: err = %v, want ErrInsufficientStake", err)
	}

	stakeMin(t, l, 1_000000)
	stakeMin(t, l, 250000) // top-ups accumulate once above the floor

	stake, err := l.GetValidatorReputation(validator)
	if err != nil || stake.StakedAmount != 1_250000 {
		t.Fatalf("stake = %+v, %v", stake, err)
	}
	if got := bank.BalanceOf(custody); got != 100_000000+1_250000 {
		t.Fatalf("custody balance = %d", got)
	}
}

func TestWithdrawStake(t *testing.T) {
	l, bank := newTestLedger(t)
	stakeMin(t, l, 2_000000)

	if err := l.WithdrawValidatorStake(validator, 3_000000); !errors.Is(err, models.ErrInsufficientStake) {
		t.Fatalf("over-withdrawal: err = %v, want ErrInsufficientStake", err)
	}
	before := bank.BalanceOf(validator)
	if err := l.WithdrawValidatorStake(validator, 1_500000); err != nil {
		t.Fatalf("WithdrawValidatorStake: %v", err)
	}
	if got := bank.BalanceOf(validator) - before; got != 1_500000 {
		t.Fatalf("returned = %d, want 1500000", got)
	}
	stake, _ := l.GetValidatorReputation(validator)
	if stake.StakedAmount != 500000 {
		t.Fatalf("remaining stake = %d, want 500000", stake.StakedAmount)
	}
}

func TestRequestCryptoEconomicRequiresStake(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.RequestValidation(requester, testAgent, common.Hash{}, models.ValidationCryptoEconomic, "ipfs://request", common.Hash{}, validator)
	if !errors.Is(err, models.ErrInsufficientStake) {
		t.Fatalf("unstaked validator: err = %v, want ErrInsufficientStake", err)
	}

	stakeMin(t, l, 1_000000)
	if _, err := l.RequestValidation(requester, testAgent, common.Hash{}, models.ValidationCryptoEconomic, "ipfs://request", common.Hash{}, validator); err != nil {
		t.Fatalf("staked validator: %v", err)
	}
}

func TestRequestValidationInputChecks(t *testing.T) {
	l, _ := newTestLedger(t)

	if _, err := l.RequestValidation(requester, testAgent, common.Hash{}, "GUESSWORK", "ipfs://r", common.Hash{}, validator); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("unknown type: err = %v, want ErrInvalidInput", err)
	}
	if _, err := l.RequestValidation(requester, testAgent, common.Hash{}, models.ValidationReputation, "", common.Hash{}, validator); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("empty uri: err = %v, want ErrInvalidInput", err)
	}
	if _, err := l.RequestValidation(requester, 404, common.Hash{}, models.ValidationReputation, "ipfs://r", common.Hash{}, validator); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("missing agent: err = %v, want ErrNotFound", err)
	}
}

func TestResponseDesignatedValidatorOnlyOnce(t *testing.T) {
	l, _ := newTestLedger(t)
	id := request(t, l, models.ValidationReputation)

	if err := l.SubmitValidationResponse(stranger, id, true, "", common.Hash{}, nil); !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("stranger response: err = %v, want ErrUnauthorized", err)
	}

	respond(t, l, id, true)
	req, _ := l.GetRequest(id)
	if req.Status != models.ValidationApproved {
		t.Fatalf("status = %s, want APPROVED", req.Status)
	}

	err := l.SubmitValidationResponse(validator, id, false, "", common.Hash{}, nil)
	if !errors.Is(err, models.ErrAlreadyDone) {
		t.Fatalf("second response: err = %v, want ErrAlreadyDone", err)
	}
}

func TestResponseProofGate(t *testing.T) {
	l, _ := newTestLedger(t)

	for _, vtype := range []models.ValidationType{models.ValidationZKML, models.ValidationTEE} {
		id := request(t, l, vtype)
		if err := l.SubmitValidationResponse(validator, id, true, "", common.Hash{}, nil); !errors.Is(err, models.ErrInvalidProof) {
			t.Fatalf("%s empty proof: err = %v, want ErrInvalidProof", vtype, err)
		}
		if err := l.SubmitValidationResponse(validator, id, true, "", common.Hash{}, []byte{0xAA}); err != nil {
			t.Fatalf("%s with proof: %v", vtype, err)
		}
	}
}

func TestCryptoEconomicResponsePaysReward(t *testing.T) {
	l, bank := newTestLedger(t)
	stakeMin(t, l, 1_000000)
	id := request(t, l, models.ValidationCryptoEconomic)

	before := bank.BalanceOf(validator)
	respond(t, l, id, true)

	if got := bank.BalanceOf(validator) - before; got != 100000 {
		t.Fatalf("reward = %d, want 100000", got)
	}
	resp, err := l.GetResponse(id)
	if err != nil || !resp.RewardClaimed {
		t.Fatalf("response = %+v, %v", resp, err)
	}
	stake, _ := l.GetValidatorReputation(validator)
	if stake.CorrectCount != 1 {
		t.Fatalf("correct count = %d, want 1", stake.CorrectCount)
	}
}

func TestDisputeFlow(t *testing.T) {
	l, _ := newTestLedger(t)
	id := request(t, l, models.ValidationReputation)

	if err := l.DisputeValidation(requester, id); !errors.Is(err, models.ErrInvalidStatus) {
		t.Fatalf("dispute before response: err = %v, want ErrInvalidStatus", err)
	}

	respond(t, l, id, true)
	if err := l.DisputeValidation(stranger, id); !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("stranger dispute: err = %v, want ErrUnauthorized", err)
	}
	if err := l.DisputeValidation(requester, id); err != nil {
		t.Fatalf("DisputeValidation: %v", err)
	}
	if err := l.DisputeValidation(requester, id); !errors.Is(err, models.ErrAlreadyDone) {
		t.Fatalf("double dispute: err = %v, want ErrAlreadyDone", err)
	}

	req, _ := l.GetRequest(id)
	if req.Status != models.ValidationDisputed {
		t.Fatalf("status = %s, want DISPUTED", req.Status)
	}
}

func TestResolveDisputeReinstatesCorrectValidator(t *testing.T) {
	l, _ := newTestLedger(t)
	id := request(t, l, models.ValidationReputation)
	respond(t, l, id, true)
	if err := l.DisputeValidation(requester, id); err != nil {
		t.Fatalf("DisputeValidation: %v", err)
	}

	if err := l.ResolveDispute(stranger, id, true); !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("non-admin resolve: err = %v, want ErrUnauthorized", err)
	}
	if err := l.ResolveDispute(admin, id, true); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	req, _ := l.GetRequest(id)
	if req.Status != models.ValidationApproved {
		t.Fatalf("status = %s, want APPROVED reinstated", req.Status)
	}
	if err := l.ResolveDispute(admin, id, true); !errors.Is(err, models.ErrInvalidStatus) {
		t.Fatalf("resolve twice: err = %v, want ErrInvalidStatus", err)
	}
}

func TestResolveDisputeSlashesIncorrectValidator(t *testing.T) {
	l, _ := newTestLedger(t)
	stakeMin(t, l, 1_000000)
	id := request(t, l, models.ValidationCryptoEconomic)
	respond(t, l, id, true)
	if err := l.DisputeValidation(requester, id); err != nil {
		t.Fatalf("DisputeValidation: %v", err)
	}

	if err := l.ResolveDispute(admin, id, false); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}

	req, _ := l.GetRequest(id)
	if req.Status != models.ValidationRejected {
		t.Fatalf("status = %s, want REJECTED", req.Status)
	}
	stake, _ := l.GetValidatorReputation(validator)
	if stake.StakedAmount != 500000 || stake.SlashedAmount != 500000 {
		t.Fatalf("stake after slash = %+v, want 500000/500000", stake)
	}
	if stake.IncorrectCount != 1 {
		t.Fatalf("incorrect count = %d, want 1", stake.IncorrectCount)
	}
}

func TestApprovalRateAndWindows(t *testing.T) {
	l, _ := newTestLedger(t)

	ids := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		ids = append(ids, request(t, l, models.ValidationReputation))
	}
	respond(t, l, ids[0], true)
	respond(t, l, ids[1], false)
	// ids[2] stays PENDING and is excluded from the rate.

	rate, total := l.CalculateApprovalRate(testAgent)
	if rate != 50 || total != 2 {
		t.Fatalf("approval rate = (%d, %d), want (50, 2)", rate, total)
	}

	if got := l.GetValidationsByAgent(testAgent, 0, 2); len(got) != 2 {
		t.Fatalf("GetValidationsByAgent window = %d entries, want 2", len(got))
	}
	if got := l.GetValidationsByTask(common.BytesToHash([]byte{1})); len(got) != 3 {
		t.Fatalf("GetValidationsByTask = %d entries, want 3", len(got))
	}

	rate, total = l.CalculateApprovalRate(404)
	if rate != 0 || total != 0 {
		t.Fatalf("unknown agent rate = (%d, %d), want (0, 0)", rate, total)
	}
}
