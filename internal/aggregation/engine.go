// Package aggregation folds the encrypted review scores of a paper into a
// single aggregate ciphertext without ever seeing a plaintext. The fold is
// a homomorphic addition over the score handles in review index order.
package aggregation

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wileschulpusi/Review/internal/records"
	"github.com/wileschulpusi/Review/internal/registry"
	"github.com/wileschulpusi/Review/pkg/faults"
	"github.com/wileschulpusi/Review/pkg/paillier"
	"github.com/wileschulpusi/Review/pkg/types"
)

var ErrNothingToAggregate = faults.New(faults.PreconditionFailed, "paper has no reviews to aggregate")

// Engine produces aggregate score handles. It owns no state of its own; the
// record store and the registry hold everything it touches.
type Engine struct {
	records  *records.Store
	registry *registry.Registry
	pub      *paillier.PublicKey
	log      *logrus.Logger
}

func NewEngine(rec *records.Store, reg *registry.Registry, pub *paillier.PublicKey, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{records: rec, registry: reg, pub: pub, log: log}
}

// Aggregate folds all current review scores of a paper into one aggregate
// handle and records it on the paper, replacing any earlier aggregate. The
// aggregate handle is born publicly decryptable; individual score handles
// never are.
//
// Folding is deterministic over the review set: if no review arrived since
// the last aggregation the fold reproduces the same ciphertext, the
// registry reports the binding as a duplicate and the existing handle is
// reused. A published paper's aggregate is frozen.
func (e *Engine) Aggregate(paperID string, now time.Time) (types.Paper, types.Handle, error) {
	p, err := e.records.GetPaper(paperID)
	if err != nil {
		return types.Paper{}, types.Handle{}, err
	}
	if p.Published {
		return types.Paper{}, types.Handle{}, fmt.Errorf("paper %q: %w", paperID, records.ErrAlreadyPublished)
	}

	reviews, err := e.records.Reviews(paperID)
	if err != nil {
		return types.Paper{}, types.Handle{}, err
	}
	if len(reviews) == 0 {
		return types.Paper{}, types.Handle{}, fmt.Errorf("paper %q: %w", paperID, ErrNothingToAggregate)
	}

	var sum *big.Int
	for _, r := range reviews {
		h, err := e.registry.Lookup(r.ScoreHandle)
		if err != nil {
			return types.Paper{}, types.Handle{}, fmt.Errorf("score handle of review %d: %w", r.Index, err)
		}
		c, err := paillier.ParseCiphertext(h.Ciphertext)
		if err != nil {
			return types.Paper{}, types.Handle{}, fmt.Errorf("score ciphertext of review %d: %w", r.Index, err)
		}
		if sum == nil {
			sum = c
		} else {
			sum = e.pub.Add(sum, c)
		}
	}

	agg, entry, err := e.registry.Prepare(paillier.CiphertextHex(sum), types.PaperOwner(paperID), types.RoleAggregate, true, now)
	reused := false
	if errors.Is(err, registry.ErrDuplicateBinding) {
		// Same review set, same fold. Reuse is benign only when the existing
		// binding is this paper's own aggregate.
		if agg.Owner == types.PaperOwner(paperID) && agg.Role == types.RoleAggregate {
			err = nil
			reused = true
		}
	}
	if err != nil {
		return types.Paper{}, types.Handle{}, err
	}

	if reused {
		p, err = e.records.SetAggregate(paperID, agg.ID, len(reviews))
	} else {
		p, err = e.records.SetAggregate(paperID, agg.ID, len(reviews), entry)
	}
	if err != nil {
		return types.Paper{}, types.Handle{}, err
	}
	if !reused {
		e.registry.Commit(agg)
	}

	e.log.WithFields(logrus.Fields{
		"paper":   paperID,
		"reviews": len(reviews),
		"handle":  agg.ID,
	}).Info("scores aggregated")
	return p, agg, nil
}
