// Package records is the record store of the review ledger: Paper and
// Review entities and their relationships. Reviews are append-only per
// paper; the aggregate and publish fields are single-writer transitions.
// Records are never deleted.
package records

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wileschulpusi/Review/internal/keyValStore"
	"github.com/wileschulpusi/Review/pkg/faults"
	"github.com/wileschulpusi/Review/pkg/types"
)

var (
	ErrPaperNotFound       = faults.New(faults.NotFound, "paper does not exist")
	ErrReviewNotFound      = faults.New(faults.NotFound, "review does not exist")
	ErrDuplicatePaper      = faults.New(faults.Conflict, "paper id already exists")
	ErrAlreadyPublished    = faults.New(faults.Conflict, "paper already published")
	ErrScoresNotAggregated = faults.New(faults.PreconditionFailed, "paper scores have not been aggregated")
	ErrInvalidPaperID      = faults.New(faults.PreconditionFailed, "paper id is empty or malformed")
)

const (
	paperKeyPrefix  = "paper::"
	reviewKeyPrefix = "review::"
)

func paperKey(id string) []byte {
	return []byte(paperKeyPrefix + id)
}

func reviewKey(paperID string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s::%08d", reviewKeyPrefix, paperID, index))
}

// Store keeps all papers and reviews in memory and writes every mutation
// through to the key-value store. Load rebuilds the in-memory view after a
// restart.
type Store struct {
	mu      sync.RWMutex
	kv      *keyValStore.KeyValStore
	log     *logrus.Logger
	papers  map[string]types.Paper
	reviews map[string][]types.Review
}

func NewStore(kv *keyValStore.KeyValStore, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{
		kv:      kv,
		log:     log,
		papers:  make(map[string]types.Paper),
		reviews: make(map[string][]types.Review),
	}
}

// Load rebuilds the in-memory maps from persisted state. Any previous
// in-memory view is discarded, so Load also serves the reload after a
// snapshot restore.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	papers := make(map[string]types.Paper)
	reviews := make(map[string][]types.Review)

	paperItems, err := s.kv.GetItemsWithPrefix([]byte(paperKeyPrefix))
	if err != nil {
		return fmt.Errorf("load papers: %w", err)
	}
	for _, kvPair := range paperItems {
		var p types.Paper
		if err := json.Unmarshal(kvPair[1], &p); err != nil {
			return fmt.Errorf("decode paper %q: %w", kvPair[0], err)
		}
		papers[p.ID] = p
	}

	reviewItems, err := s.kv.GetItemsWithPrefix([]byte(reviewKeyPrefix))
	if err != nil {
		return fmt.Errorf("load reviews: %w", err)
	}
	for _, kvPair := range reviewItems {
		var r types.Review
		if err := json.Unmarshal(kvPair[1], &r); err != nil {
			return fmt.Errorf("decode review %q: %w", kvPair[0], err)
		}
		reviews[r.PaperID] = append(reviews[r.PaperID], r)
	}

	// Badger returned keys in ascending order, but sort defensively so the
	// index invariant never depends on storage iteration order.
	for id := range reviews {
		list := reviews[id]
		sort.Slice(list, func(i, j int) bool { return list[i].Index < list[j].Index })
		reviews[id] = list
	}

	s.papers = papers
	s.reviews = reviews

	s.log.WithFields(logrus.Fields{
		"papers":  len(s.papers),
		"reviews": len(reviewItems),
	}).Info("record store loaded")
	return nil
}

// ValidatePaperID rejects ids that are empty or would collide with the key
// encoding.
func ValidatePaperID(id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "::") || len(id) > 256 {
		return ErrInvalidPaperID
	}
	return nil
}

// CreatePaper inserts a new paper. Paper ids are unique and immutable once
// assigned. Extra key-value entries land in the same transaction as the
// paper record, so a submission's handle binding commits with it or not at
// all.
func (s *Store) CreatePaper(p types.Paper, extra ...[2][]byte) (types.Paper, error) {
	if err := ValidatePaperID(p.ID); err != nil {
		return types.Paper{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.papers[p.ID]; exists {
		return types.Paper{}, fmt.Errorf("paper %q: %w", p.ID, ErrDuplicatePaper)
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return types.Paper{}, fmt.Errorf("encode paper: %w", err)
	}
	batch := append([][2][]byte{{paperKey(p.ID), raw}}, extra...)
	if err := s.kv.WriteBatch(batch); err != nil {
		return types.Paper{}, fmt.Errorf("persist paper: %w", err)
	}
	s.papers[p.ID] = p
	return p, nil
}

// AppendReview appends a review to a paper, assigning the next index. The
// sequence per paper starts at 0, grows monotonically and is never reused
// or reordered. Extra entries join the same transaction as the review
// record and the bumped count.
func (s *Store) AppendReview(paperID string, r types.Review, extra ...[2][]byte) (types.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.papers[paperID]
	if !exists {
		return types.Review{}, fmt.Errorf("paper %q: %w", paperID, ErrPaperNotFound)
	}

	r.PaperID = paperID
	r.Index = p.ReviewCount
	p.ReviewCount++

	reviewBytes, err := json.Marshal(r)
	if err != nil {
		return types.Review{}, fmt.Errorf("encode review: %w", err)
	}
	paperBytes, err := json.Marshal(p)
	if err != nil {
		return types.Review{}, fmt.Errorf("encode paper: %w", err)
	}

	batch := [][2][]byte{
		{reviewKey(paperID, r.Index), reviewBytes},
		{paperKey(paperID), paperBytes},
	}
	batch = append(batch, extra...)
	if err := s.kv.WriteBatch(batch); err != nil {
		return types.Review{}, fmt.Errorf("persist review: %w", err)
	}

	s.papers[paperID] = p
	s.reviews[paperID] = append(s.reviews[paperID], r)
	return r, nil
}

// SetAggregate records a freshly produced aggregate handle for a paper,
// replacing any prior one. reviewCount is the number of reviews that were
// folded into the handle. Extra entries join the same transaction.
func (s *Store) SetAggregate(paperID string, handle types.HandleID, reviewCount int, extra ...[2][]byte) (types.Paper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.papers[paperID]
	if !exists {
		return types.Paper{}, fmt.Errorf("paper %q: %w", paperID, ErrPaperNotFound)
	}

	p.AggregateHandle = handle
	p.AggregatedReviews = reviewCount

	raw, err := json.Marshal(p)
	if err != nil {
		return types.Paper{}, fmt.Errorf("encode paper: %w", err)
	}
	batch := append([][2][]byte{{paperKey(p.ID), raw}}, extra...)
	if err := s.kv.WriteBatch(batch); err != nil {
		return types.Paper{}, fmt.Errorf("persist paper: %w", err)
	}
	s.papers[paperID] = p
	return p, nil
}

// MarkPublished flips the publish flag. A paper may only be published after
// an aggregate over at least one review exists, and the flag never reverts.
func (s *Store) MarkPublished(paperID string, at time.Time) (types.Paper, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.papers[paperID]
	if !exists {
		return types.Paper{}, fmt.Errorf("paper %q: %w", paperID, ErrPaperNotFound)
	}
	if p.Published {
		return types.Paper{}, fmt.Errorf("paper %q: %w", paperID, ErrAlreadyPublished)
	}
	if p.AggregateHandle.IsZero() || p.AggregatedReviews < 1 {
		return types.Paper{}, fmt.Errorf("paper %q: %w", paperID, ErrScoresNotAggregated)
	}

	p.Published = true
	p.PublishedAt = at

	if err := s.persistPaper(p); err != nil {
		return types.Paper{}, err
	}
	s.papers[paperID] = p
	return p, nil
}

func (s *Store) GetPaper(paperID string) (types.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.papers[paperID]
	if !exists {
		return types.Paper{}, fmt.Errorf("paper %q: %w", paperID, ErrPaperNotFound)
	}
	return p, nil
}

// ListPapers returns all papers ordered by id.
func (s *Store) ListPapers() []types.Paper {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Paper, 0, len(s.papers))
	for _, p := range s.papers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reviews returns the reviews of a paper in index order.
func (s *Store) Reviews(paperID string) ([]types.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.papers[paperID]; !exists {
		return nil, fmt.Errorf("paper %q: %w", paperID, ErrPaperNotFound)
	}
	return append([]types.Review(nil), s.reviews[paperID]...), nil
}

// Review returns one review by paper id and index.
func (s *Store) Review(paperID string, index int) (types.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.reviews[paperID]
	if index < 0 || index >= len(list) {
		return types.Review{}, fmt.Errorf("review %s/%d: %w", paperID, index, ErrReviewNotFound)
	}
	return list[index], nil
}

func (s *Store) persistPaper(p types.Paper) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode paper: %w", err)
	}
	if err := s.kv.Write(paperKey(p.ID), raw); err != nil {
		return fmt.Errorf("persist paper: %w", err)
	}
	return nil
}
