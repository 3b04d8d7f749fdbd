// Package validation runs the four-tier work-validation protocol: free
// reputation-based checks, staked economic re-execution, and zero-knowledge /
// attested-execution gating, with validator staking, rewards, slashing, and
// dispute resolution.
package validation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/agoramarket/backend/internal/events"
	"github.com/agoramarket/backend/internal/models"
	"github.com/agoramarket/backend/internal/proofs"
)

// Economic parameters for CRYPTO_ECONOMIC validation, 6-decimal units.
const (
	// DefaultMinStake is the stake floor a validator needs before accepting
	// crypto-economic requests.
	DefaultMinStake = 100_000000
	// DefaultReward is the fixed payout per submitted crypto-economic
	// response.
	DefaultReward = 1_000000
	// slashBasisPoints of the current stake are forfeited when dispute
	// resolution finds the validator incorrect: 50%.
	slashBasisPoints = 5000
)

// OwnerLookup resolves agent existence and ownership. Satisfied by
// *identity.Store.
type OwnerLookup interface {
	OwnerOf(agentID uint64) (common.Address, error)
}

// TokenLedger is the subset of the token capability the validation ledger
// uses for stake custody and rewards.
type TokenLedger interface {
	TransferFrom(spender, from, to common.Address, amount int64) error
	Transfer(from, to common.Address, amount int64) error
}

// Ledger is the validation component. Commands serialize on the write lock.
type Ledger struct {
	mu        sync.RWMutex
	requests  map[uuid.UUID]*models.ValidationRequest
	responses map[uuid.UUID]*models.ValidationResponse
	stakes    map[common.Address]*models.ValidatorStake
	byAgent   map[uint64][]uuid.UUID
	byTask    map[common.Hash][]uuid.UUID

	owners  OwnerLookup
	token   TokenLedger
	checker proofs.BlobVerifier
	custody common.Address
	admin   common.Address

	minStake int64
	reward   int64

	bus    *events.Bus
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithBus attaches the notification bus.
func WithBus(bus *events.Bus) Option {
	return func(l *Ledger) { l.bus = bus }
}

// WithBlobVerifier overrides the ZKML/TEE proof checker.
func WithBlobVerifier(v proofs.BlobVerifier) Option {
	return func(l *Ledger) { l.checker = v }
}

// WithEconomics overrides the minimum stake and fixed reward.
func WithEconomics(minStake, reward int64) Option {
	return func(l *Ledger) {
		l.minStake = minStake
		l.reward = reward
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger returns a validation ledger. custody is the address holding
// staked funds and the reward pool; admin is the only caller allowed to
// resolve disputes.
func NewLedger(owners OwnerLookup, token TokenLedger, custody, admin common.Address, opts ...Option) *Ledger {
	l := &Ledger{
		requests:  make(map[uuid.UUID]*models.ValidationRequest),
		responses: make(map[uuid.UUID]*models.ValidationResponse),
		stakes:    make(map[common.Address]*models.ValidatorStake),
		byAgent:   make(map[uint64][]uuid.UUID),
		byTask:    make(map[common.Hash][]uuid.UUID),
		owners:    owners,
		token:     token,
		checker:   proofs.NonEmptyVerifier{},
		custody:   custody,
		admin:     admin,
		minStake:  DefaultMinStake,
		reward:    DefaultReward,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterValidatorStake deposits amount into the caller's stake. The
// resulting stake must meet the minimum; deposits accumulate.
func (l *Ledger) RegisterValidatorStake(caller common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("stake deposit: non-positive amount: %w", models.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stake := l.stakes[caller]
	current := int64(0)
	if stake != nil {
		current = stake.StakedAmount
	}
	if current+amount < l.minStake {
		return fmt.Errorf("deposit leaves stake %d below minimum %d: %w", current+amount, l.minStake, models.ErrInsufficientStake)
	}

	if err := l.token.TransferFrom(l.custody, caller, l.custody, amount); err != nil {
		return fmt.Errorf("collect stake deposit: %w", err)
	}
	if stake == nil {
		stake = &models.ValidatorStake{Validator: caller}
		l.stakes[caller] = stake
	}
	stake.StakedAmount += amount

	l.bus.Publish(events.Event{Type: events.ValidatorStaked, At: l.now(), Address: caller, Amount: amount})
	return nil
}

// WithdrawValidatorStake returns amount of the caller's stake. Withdrawing
// more than the current stake is ErrInsufficientStake.
func (l *Ledger) WithdrawValidatorStake(caller common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("stake withdrawal: non-positive amount: %w", models.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stake := l.stakes[caller]
	if stake == nil || stake.StakedAmount < amount {
		return fmt.Errorf("withdraw %d: %w", amount, models.ErrInsufficientStake)
	}

	if err := l.token.Transfer(l.custody, caller, amount); err != nil {
		return fmt.Errorf("return stake: %w", err)
	}
	stake.StakedAmount -= amount
	return nil
}

// RequestValidation opens a PENDING request naming a designated validator.
// CRYPTO_ECONOMIC requests require the validator's stake to meet the minimum.
func (l *Ledger) RequestValidation(caller common.Address, agentID uint64, taskID common.Hash, vtype models.ValidationType, requestURI string, contentHash common.Hash, validator common.Address) (uuid.UUID, error) {
	switch vtype {
	case models.ValidationReputation, models.ValidationCryptoEconomic, models.ValidationZKML, models.ValidationTEE:
	default:
		return uuid.Nil, fmt.Errorf("unknown validation type %q: %w", vtype, models.ErrInvalidInput)
	}
	if requestURI == "" || validator == (common.Address{}) {
		return uuid.Nil, fmt.Errorf("request validation: empty argument: %w", models.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.owners.OwnerOf(agentID); err != nil {
		return uuid.Nil, err
	}
	if vtype == models.ValidationCryptoEconomic {
		stake := l.stakes[validator]
		if stake == nil || stake.StakedAmount < l.minStake {
			return uuid.Nil, fmt.Errorf("validator %s stake below minimum %d: %w", validator, l.minStake, models.ErrInsufficientStake)
		}
	}

	req := &models.ValidationRequest{
		ID:               uuid.New(),
		AgentID:          agentID,
		TaskID:           taskID,
		Requester:        caller,
		ValidationType:   vtype,
		RequestURI:       requestURI,
		ContentHash:      contentHash,
		ValidatorAddress: validator,
		Timestamp:        l.now(),
		Status:           models.ValidationPending,
	}
	l.requests[req.ID] = req
	l.byAgent[agentID] = append(l.byAgent[agentID], req.ID)
	l.byTask[taskID] = append(l.byTask[taskID], req.ID)

	l.bus.Publish(events.Event{Type: events.ValidationRequested, At: req.Timestamp, AgentID: agentID, TaskID: taskID, RecordID: req.ID, Address: validator})
	return req.ID, nil
}

// SubmitValidationResponse records the designated validator's single verdict.
// ZKML/TEE responses must carry a proof blob. A crypto-economic response
// increments the validator's correct-count and pays the fixed reward.
func (l *Ledger) SubmitValidationResponse(caller common.Address, requestID uuid.UUID, approved bool, evidenceURI string, evidenceHash common.Hash, proofBlob []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[requestID]
	if !ok {
		return fmt.Errorf("validation request %s: %w", requestID, models.ErrNotFound)
	}
	if caller != req.ValidatorAddress {
		return fmt.Errorf("caller %s is not the designated validator: %w", caller, models.ErrUnauthorized)
	}
	if req.Status != models.ValidationPending {
		if _, responded := l.responses[requestID]; responded {
			return fmt.Errorf("response for request %s: %w", requestID, models.ErrAlreadyDone)
		}
		return models.NewInvalidStatus(string(req.Status), string(models.ValidationPending))
	}
	if err := l.checker.Verify(req.ValidationType, proofBlob); err != nil {
		return err
	}

	now := l.now()
	resp := &models.ValidationResponse{
		RequestID:        requestID,
		ValidatorAddress: caller,
		Approved:         approved,
		EvidenceURI:      evidenceURI,
		EvidenceHash:     evidenceHash,
		Timestamp:        now,
	}
	l.responses[requestID] = resp
	if approved {
		req.Status = models.ValidationApproved
	} else {
		req.Status = models.ValidationRejected
	}

	if req.ValidationType == models.ValidationCryptoEconomic {
		stake := l.stakes[caller]
		stake.CorrectCount++
		// Reward failure must not void the verdict; the response stands
		// with the reward unclaimed.
		if err := l.token.Transfer(l.custody, caller, l.reward); err != nil {
			l.logger.Warn("validator reward payout failed", "validator", caller, "request_id", requestID, "error", err)
		} else {
			resp.RewardClaimed = true
			l.bus.Publish(events.Event{Type: events.ValidatorRewarded, At: now, RecordID: requestID, Address: caller, Amount: l.reward})
		}
	}

	l.bus.Publish(events.Event{Type: events.ValidationResponded, At: now, AgentID: req.AgentID, TaskID: req.TaskID, RecordID: requestID, Address: caller, Approved: approved})
	return nil
}

// DisputeValidation lets the original requester contest a delivered verdict.
// Only possible once a response exists; sets DISPUTED until resolution.
func (l *Ledger) DisputeValidation(caller common.Address, requestID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[requestID]
	if !ok {
		return fmt.Errorf("validation request %s: %w", requestID, models.ErrNotFound)
	}
	if caller != req.Requester {
		return fmt.Errorf("caller %s is not the requester: %w", caller, models.ErrUnauthorized)
	}
	switch req.Status {
	case models.ValidationPending:
		return models.NewInvalidStatus(string(req.Status), "APPROVED or REJECTED")
	case models.ValidationDisputed:
		return fmt.Errorf("request %s already disputed: %w", requestID, models.ErrAlreadyDone)
	}

	req.Status = models.ValidationDisputed

	l.bus.Publish(events.Event{Type: events.DisputeRaised, At: l.now(), AgentID: req.AgentID, TaskID: req.TaskID, RecordID: requestID, Address: caller})
	return nil
}

// ResolveDispute is the privileged adjudication of a disputed request. A
// correct validator has the original verdict reinstated; an incorrect one is
// marked REJECTED and, for CRYPTO_ECONOMIC, forfeits 50% of the current
// stake.
func (l *Ledger) ResolveDispute(caller common.Address, requestID uuid.UUID, validatorWasCorrect bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return fmt.Errorf("caller %s may not resolve disputes: %w", caller, models.ErrUnauthorized)
	}
	req, ok := l.requests[requestID]
	if !ok {
		return fmt.Errorf("validation request %s: %w", requestID, models.ErrNotFound)
	}
	if req.Status != models.ValidationDisputed {
		return models.NewInvalidStatus(string(req.Status), string(models.ValidationDisputed))
	}
	resp := l.responses[requestID]

	now := l.now()
	if validatorWasCorrect {
		if resp.Approved {
			req.Status = models.ValidationApproved
		} else {
			req.Status = models.ValidationRejected
		}
	} else {
		req.Status = models.ValidationRejected
		if req.ValidationType == models.ValidationCryptoEconomic {
			stake := l.stakes[req.ValidatorAddress]
			slash := stake.StakedAmount * slashBasisPoints / 10000
			stake.StakedAmount -= slash
			stake.SlashedAmount += slash
			stake.IncorrectCount++
			l.bus.Publish(events.Event{Type: events.ValidatorSlashed, At: now, RecordID: requestID, Address: req.ValidatorAddress, Amount: slash})
		}
	}

	l.bus.Publish(events.Event{Type: events.DisputeResolved, At: now, AgentID: req.AgentID, TaskID: req.TaskID, RecordID: requestID, Approved: validatorWasCorrect})
	return nil
}

// GetRequest returns a copy of the request.
func (l *Ledger) GetRequest(id uuid.UUID) (models.ValidationRequest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	req, ok := l.requests[id]
	if !ok {
		return models.ValidationRequest{}, fmt.Errorf("validation request %s: %w", id, models.ErrNotFound)
	}
	return *req, nil
}

// GetResponse returns a copy of the response for a request.
func (l *Ledger) GetResponse(requestID uuid.UUID) (models.ValidationResponse, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	resp, ok := l.responses[requestID]
	if !ok {
		return models.ValidationResponse{}, fmt.Errorf("response for request %s: %w", requestID, models.ErrNotFound)
	}
	return *resp, nil
}

// GetValidationsByAgent returns a copy window of an agent's requests in
// creation order, clamping limit at the remaining count.
func (l *Ledger) GetValidationsByAgent(agentID uint64, offset, limit int) []models.ValidationRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.window(l.byAgent[agentID], offset, limit)
}

// GetValidationsByTask returns all requests recorded for a task.
func (l *Ledger) GetValidationsByTask(taskID common.Hash) []models.ValidationRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.window(l.byTask[taskID], 0, len(l.byTask[taskID]))
}

// CalculateApprovalRate returns the percentage of an agent's adjudicated
// requests that stand APPROVED, and the adjudicated count. Pending requests
// are excluded; zero adjudications yield (0, 0).
func (l *Ledger) CalculateApprovalRate(agentID uint64) (int, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	approved, total := 0, 0
	for _, id := range l.byAgent[agentID] {
		switch l.requests[id].Status {
		case models.ValidationApproved:
			approved++
			total++
		case models.ValidationRejected, models.ValidationDisputed:
			total++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return approved * 100 / total, total
}

// GetValidatorReputation returns a copy of the validator's stake record.
func (l *Ledger) GetValidatorReputation(validator common.Address) (models.ValidatorStake, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stake, ok := l.stakes[validator]
	if !ok {
		return models.ValidatorStake{}, fmt.Errorf("validator %s: %w", validator, models.ErrNotFound)
	}
	return *stake, nil
}

// window copies ids[offset:offset+limit] into request values. Callers hold a
// lock.
func (l *Ledger) window(ids []uuid.UUID, offset, limit int) []models.ValidationRequest {
	if offset < 0 || limit <= 0 || offset >= len(ids) {
		return nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]models.ValidationRequest, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, *l.requests[id])
	}
	return out
}
