package registry

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wileschulpusi/Review/pkg/attest"
	"github.com/wileschulpusi/Review/pkg/types"
)

// Verify runs the one-shot verification transition on a handle. The claimed
// clear value is accepted only when the proof binds it to the handle's
// registered commitment under the oracle verify key.
//
// On a handle that already completed the transition, Verify returns the
// stored value together with ErrAlreadyVerified so retries behave like
// reads; the stored value never changes, even if a later call carries a
// valid proof for it. A failed proof check leaves the handle untouched.
func (r *Registry) Verify(id types.HandleID, clearValue uint64, proof attest.Proof, now time.Time) (types.VerifiedResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.handles[id]
	if !exists {
		return types.VerifiedResult{}, fmt.Errorf("handle %s: %w", id, ErrUnknownHandle)
	}

	if h.Verified() {
		return types.VerifiedResult{
			Handle:          id,
			ClearValue:      h.ClearValue,
			AlreadyVerified: true,
		}, fmt.Errorf("handle %s: %w", id, ErrAlreadyVerified)
	}

	commitment := attest.Commitment(h.Ciphertext)
	if !attest.Verify(r.verifyKey, id, commitment, clearValue, proof) {
		return types.VerifiedResult{}, fmt.Errorf("handle %s: %w", id, ErrInvalidProof)
	}

	h.State = types.StateVerified
	h.ClearValue = clearValue
	h.VerifiedAt = now
	if err := r.persist(h); err != nil {
		return types.VerifiedResult{}, err
	}
	r.handles[id] = h

	r.log.WithFields(logrus.Fields{
		"handle": id,
		"value":  clearValue,
	}).Info("handle verified")

	return types.VerifiedResult{Handle: id, ClearValue: clearValue}, nil
}
