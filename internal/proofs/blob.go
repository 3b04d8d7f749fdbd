package proofs

import (
	"fmt"

	"github.com/agoramarket/backend/internal/models"
)

// BlobVerifier checks the cryptographic proof blob attached to a ZKML or TEE
// validation response. The real verifier (zk circuit, attestation chain) is
// injected by the host; the core only guarantees it is called.
type BlobVerifier interface {
	Verify(validationType models.ValidationType, proof []byte) error
}

// NonEmptyVerifier is the default BlobVerifier: it gates on proof-blob
// presence and defers cryptographic verification to the injected layer.
type NonEmptyVerifier struct{}

var _ BlobVerifier = NonEmptyVerifier{}

// Verify implements BlobVerifier.
func (NonEmptyVerifier) Verify(validationType models.ValidationType, proof []byte) error {
	switch validationType {
	case models.ValidationZKML, models.ValidationTEE:
		if len(proof) == 0 {
			return fmt.Errorf("%s response requires a proof blob: %w", validationType, models.ErrInvalidProof)
		}
	}
	return nil
}
