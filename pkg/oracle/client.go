package oracle

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wileschulpusi/Review/pkg/attest"
	"github.com/wileschulpusi/Review/pkg/faults"
	"github.com/wileschulpusi/Review/pkg/types"
)

var ErrNotDisclosable = faults.New(faults.PreconditionFailed, "handle is not publicly decryptable")

// DisclosureLedger is the slice of the ledger API the disclosure round-trip
// needs. *review.Ledger satisfies it.
type DisclosureLedger interface {
	GetHandle(ctx context.Context, id types.HandleID) (types.Handle, error)
	Verify(ctx context.Context, id types.HandleID, clearValue uint64, proof attest.Proof) (types.VerifiedResult, error)
}

// Client drives the two-phase disclosure round-trip: phase one asks the
// oracle for the clear value and its attestation, phase two submits both
// for the ledger's one-shot verification transition.
type Client struct {
	oracle *Oracle
	log    *logrus.Logger
}

func NewClient(o *Oracle, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	return &Client{oracle: o, log: log}
}

// Disclose runs the full round-trip for one handle. Only publicly
// decryptable handles are disclosed; individual review scores stay sealed
// unless a grant was recorded first. A concurrent discloser winning the
// race is not a failure: the ledger's AlreadyVerified conflict carries the
// committed value and Disclose returns it as success.
func (c *Client) Disclose(ctx context.Context, ledger DisclosureLedger, id types.HandleID) (types.VerifiedResult, error) {
	h, err := ledger.GetHandle(ctx, id)
	if err != nil {
		return types.VerifiedResult{}, err
	}
	if !h.PubliclyDecryptable {
		return types.VerifiedResult{}, fmt.Errorf("handle %s: %w", id, ErrNotDisclosable)
	}

	// Phase one: stateless, cancellable. Nothing has committed yet.
	resp, err := c.oracle.Decrypt(ctx, DecryptRequest{Handle: id, Ciphertext: h.Ciphertext})
	if err != nil {
		return types.VerifiedResult{}, err
	}

	// Phase two: the one-shot transition.
	res, err := ledger.Verify(ctx, id, resp.ClearValue, resp.Proof)
	if err != nil {
		if faults.Recoverable(err) && res.AlreadyVerified {
			c.log.WithFields(logrus.Fields{
				"handle": id,
				"value":  res.ClearValue,
			}).Debug("disclosure raced, committed value returned")
			return res, nil
		}
		return types.VerifiedResult{}, err
	}
	return res, nil
}
