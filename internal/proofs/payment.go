// Package proofs holds the pluggable proof-verification capabilities: payment
// proof signature recovery for the reputation ledger, and the opaque-blob
// check for ZKML/TEE validation responses. Cryptographic verification beyond
// recovery is injected, never implemented here.
package proofs

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/agoramarket/backend/internal/models"
)

// PaymentVerifier validates payment proofs for feedback weighting.
type PaymentVerifier interface {
	// CheckBasic rejects structurally invalid proofs: zero payer/payee or
	// zero amount, independent of signature.
	CheckBasic(p models.PaymentProof) error
	// HasValidSignature reports whether the proof carries a signature that
	// recovers to the payer, is not future-dated, and targets networkID.
	// A false result down-weights the feedback; it never rejects it.
	HasValidSignature(p models.PaymentProof, now time.Time, networkID uint64) bool
}

// RecoveryVerifier is the default PaymentVerifier: secp256k1 signature
// recovery over the canonical proof encoding.
type RecoveryVerifier struct{}

var _ PaymentVerifier = RecoveryVerifier{}

// CheckBasic implements PaymentVerifier.
func (RecoveryVerifier) CheckBasic(p models.PaymentProof) error {
	if p.Payer == (common.Address{}) || p.Payee == (common.Address{}) {
		return fmt.Errorf("payment proof: zero payer or payee: %w", models.ErrInvalidProof)
	}
	if p.Amount <= 0 {
		return fmt.Errorf("payment proof: non-positive amount: %w", models.ErrInvalidProof)
	}
	return nil
}

// HasValidSignature implements PaymentVerifier.
func (RecoveryVerifier) HasValidSignature(p models.PaymentProof, now time.Time, networkID uint64) bool {
	if len(p.Signature) != crypto.SignatureLength {
		return false
	}
	if p.Timestamp.After(now) {
		return false
	}
	if p.NetworkID != networkID {
		return false
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, p.Signature)
	// Accept both the raw 0/1 recovery id and the legacy 27/28 form.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(DigestOf(p), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == p.Payer
}

// DigestOf returns the Keccak-256 digest of the canonical proof encoding:
// payer || payee || networkID || amount || unix timestamp || transactionRef,
// integers big-endian fixed width. The signature field is excluded.
func DigestOf(p models.PaymentProof) []byte {
	buf := make([]byte, 0, 2*common.AddressLength+24+len(p.TransactionRef))
	buf = append(buf, p.Payer.Bytes()...)
	buf = append(buf, p.Payee.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, p.NetworkID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.Amount))
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.Timestamp.Unix()))
	buf = append(buf, []byte(p.TransactionRef)...)
	return crypto.Keccak256(buf)
}

// SignProof attaches a canonical signature to the proof using key. Clients
// constructing signed proofs and tests share this path with verification.
func SignProof(p *models.PaymentProof, key *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(DigestOf(*p), key)
	if err != nil {
		return fmt.Errorf("sign payment proof: %w", err)
	}
	p.Signature = sig
	return nil
}
