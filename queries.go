package review

import (
	"context"

	"github.com/wileschulpusi/Review/pkg/types"
)

// Read-side of the ledger. Queries take no write lock and observe the most
// recently committed state.

// GetPaper returns one paper by id.
func (l *Ledger) GetPaper(ctx context.Context, paperID string) (types.Paper, error) {
	if err := ctx.Err(); err != nil {
		return types.Paper{}, err
	}
	if _, err := l.kvHandle(); err != nil {
		return types.Paper{}, err
	}
	return l.records.GetPaper(paperID)
}

// ListPapers returns all papers ordered by id.
func (l *Ledger) ListPapers(ctx context.Context) ([]types.Paper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := l.kvHandle(); err != nil {
		return nil, err
	}
	return l.records.ListPapers(), nil
}

// GetReviews returns the reviews of a paper in index order.
func (l *Ledger) GetReviews(ctx context.Context, paperID string) ([]types.Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := l.kvHandle(); err != nil {
		return nil, err
	}
	return l.records.Reviews(paperID)
}

// GetReview returns one review by paper id and index.
func (l *Ledger) GetReview(ctx context.Context, paperID string, index int) (types.Review, error) {
	if err := ctx.Err(); err != nil {
		return types.Review{}, err
	}
	if _, err := l.kvHandle(); err != nil {
		return types.Review{}, err
	}
	return l.records.Review(paperID, index)
}

// GetHandle returns the registry record for a handle, including its
// verification state and, once verified, the clear value.
func (l *Ledger) GetHandle(ctx context.Context, id types.HandleID) (types.Handle, error) {
	if err := ctx.Err(); err != nil {
		return types.Handle{}, err
	}
	if _, err := l.kvHandle(); err != nil {
		return types.Handle{}, err
	}
	return l.registry.Lookup(id)
}

// VerificationStatus reports a handle's state and stored clear value. The
// value is meaningful only when the handle is verified.
func (l *Ledger) VerificationStatus(ctx context.Context, id types.HandleID) (types.HandleState, uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if _, err := l.kvHandle(); err != nil {
		return 0, 0, err
	}
	h, err := l.registry.Lookup(id)
	if err != nil {
		return 0, 0, err
	}
	return h.State, h.ClearValue, nil
}
