// Package review is a confidential paper-review ledger. Submitters attach
// encrypted documents, reviewers attach encrypted scores, the ledger folds
// scores homomorphically into an aggregate, and a clear value is accepted
// back only with a proof binding it to the exact ciphertext it came from.
// The ledger never holds a decryption key.
package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wileschulpusi/Review/internal/aggregation"
	"github.com/wileschulpusi/Review/internal/backup"
	"github.com/wileschulpusi/Review/internal/keyValStore"
	"github.com/wileschulpusi/Review/internal/records"
	"github.com/wileschulpusi/Review/internal/registry"
	"github.com/wileschulpusi/Review/pkg/attest"
	"github.com/wileschulpusi/Review/pkg/bus"
	"github.com/wileschulpusi/Review/pkg/types"
)

var (
	ErrNotStarted = errors.New("review: ledger not started")
	ErrClosed     = errors.New("review: ledger closed")
)

// Ledger is the main handle. All mutating operations run under a single
// write lock, so every mutation is an atomic, totally-ordered transaction
// against the shared record and handle state; reads go through the stores'
// own read locks and observe the most recently committed state.
type Ledger struct {
	log    *logrus.Logger
	config Config

	txMu sync.Mutex

	kvMu     sync.RWMutex
	kv       *keyValStore.KeyValStore
	records  *records.Store
	registry *registry.Registry
	engine   *aggregation.Engine
	events   *bus.Bus

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New constructs a ledger handle. New does not perform I/O; call Start to
// open storage and reload state.
func New(conf Config) (*Ledger, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	if conf.PublicKey == nil {
		return nil, fmt.Errorf("substrate public key must be provided in config")
	}
	if len(conf.OracleVerifyKey) == 0 {
		return nil, fmt.Errorf("oracle verify key must be provided in config")
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	return &Ledger{
		log:    conf.Logger,
		config: conf,
		events: bus.New(conf.EventBuffer),
	}, nil
}

// Start opens the key-value store and reloads all records and handles.
// Start is safe to call multiple times; only the first call has effect.
func (l *Ledger) Start(ctx context.Context) error {
	var startErr error
	l.startOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			startErr = err
			return
		}

		dataRoot := l.config.Paths[0]
		if err := os.MkdirAll(dataRoot, 0o700); err != nil {
			startErr = fmt.Errorf("mkdir %s: %w", dataRoot, err)
			return
		}

		kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:            []string{filepath.Join(dataRoot, "kv")},
			MinimumFreeSpace: int(l.config.MinimumFreeGB),
			Logger:           l.log,
		})
		if err != nil {
			startErr = fmt.Errorf("init kv: %w", err)
			return
		}

		rec := records.NewStore(kv, l.log)
		if err := rec.Load(); err != nil {
			_ = kv.Close()
			startErr = fmt.Errorf("load records: %w", err)
			return
		}
		reg := registry.NewRegistry(kv, l.config.PublicKey, l.config.OracleVerifyKey, l.log)
		if err := reg.Load(); err != nil {
			_ = kv.Close()
			startErr = fmt.Errorf("load registry: %w", err)
			return
		}

		l.kvMu.Lock()
		l.kv = kv
		l.kvMu.Unlock()
		l.records = rec
		l.registry = reg
		l.engine = aggregation.NewEngine(rec, reg, l.config.PublicKey, l.log)

		l.started.Store(true)
		l.log.WithField("path", dataRoot).Info("review ledger started")
	})
	return startErr
}

// Run starts the ledger, blocks until ctx is canceled, then performs a
// bounded graceful shutdown. It is a convenience for services.
func (l *Ledger) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return l.Close(shutdownCtx)
}

// Close releases storage. Close is idempotent.
func (l *Ledger) Close(_ context.Context) error {
	var closeErr error
	l.closeOnce.Do(func() {
		l.kvMu.Lock()
		kv := l.kv
		l.kv = nil
		l.kvMu.Unlock()
		if kv != nil {
			if err := kv.Close(); err != nil {
				closeErr = fmt.Errorf("close kv: %w", err)
			}
		}
		l.log.Info("review ledger closed")
	})
	return closeErr
}

// Events returns the ledger's event stream. Events are emitted after a
// mutation commits; listeners are optional. The stream is single-consumer:
// every call returns the same channel.
func (l *Ledger) Events() bus.Subscriber {
	return l.events.Subscribe()
}

func (l *Ledger) kvHandle() (*keyValStore.KeyValStore, error) {
	if !l.started.Load() {
		return nil, ErrNotStarted
	}
	l.kvMu.RLock()
	kv := l.kv
	l.kvMu.RUnlock()
	if kv == nil {
		return nil, ErrClosed
	}
	return kv, nil
}

// SubmitPaperInput carries a paper submission. ID is optional; a uuid is
// assigned when empty. ContentCiphertext is the encrypted document in hex.
type SubmitPaperInput struct {
	ID                string
	Title             string
	Submitter         string
	ContentCiphertext string
}

// SubmitPaper registers the content ciphertext and creates the paper record
// in one transaction. Nothing is recorded if any step fails.
func (l *Ledger) SubmitPaper(ctx context.Context, in SubmitPaperInput) (types.Paper, error) {
	if err := ctx.Err(); err != nil {
		return types.Paper{}, err
	}
	if _, err := l.kvHandle(); err != nil {
		return types.Paper{}, err
	}

	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if err := records.ValidatePaperID(in.ID); err != nil {
		return types.Paper{}, err
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	// Reject the duplicate id before a handle gets bound.
	if _, err := l.records.GetPaper(in.ID); err == nil {
		return types.Paper{}, fmt.Errorf("paper %q: %w", in.ID, records.ErrDuplicatePaper)
	}

	now := time.Now().UTC()
	h, entry, err := l.registry.Prepare(in.ContentCiphertext, types.PaperOwner(in.ID), types.RoleContent, false, now)
	if err != nil {
		return types.Paper{}, err
	}

	// Handle binding and paper record commit in one transaction.
	p, err := l.records.CreatePaper(types.Paper{
		ID:            in.ID,
		Title:         in.Title,
		Submitter:     in.Submitter,
		SubmittedAt:   now,
		ContentHandle: h.ID,
	}, entry)
	if err != nil {
		return types.Paper{}, err
	}
	l.registry.Commit(h)

	l.events.Publish(ctx, bus.Event{Kind: bus.KindPaperSubmitted, PaperID: p.ID, Handle: h.ID, ReviewIndex: -1})
	return p, nil
}

// SubmitReviewInput carries a review submission. ScoreCiphertext is the
// encrypted score in hex; CommentsCiphertext is an opaque encrypted blob
// that is stored verbatim and never aggregated.
type SubmitReviewInput struct {
	PaperID            string
	Reviewer           string
	ScoreCiphertext    string
	CommentsCiphertext []byte
}

// SubmitReview validates and registers the score ciphertext, then appends
// the review at the next index. All-or-nothing: the ciphertext is checked
// before any state is touched.
func (l *Ledger) SubmitReview(ctx context.Context, in SubmitReviewInput) (types.Review, error) {
	if err := ctx.Err(); err != nil {
		return types.Review{}, err
	}
	if _, err := l.kvHandle(); err != nil {
		return types.Review{}, err
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	p, err := l.records.GetPaper(in.PaperID)
	if err != nil {
		return types.Review{}, err
	}

	now := time.Now().UTC()
	h, entry, err := l.registry.Prepare(in.ScoreCiphertext, types.ReviewOwner(in.PaperID, p.ReviewCount), types.RoleScore, false, now)
	if err != nil {
		return types.Review{}, err
	}

	r, err := l.records.AppendReview(in.PaperID, types.Review{
		Reviewer:           in.Reviewer,
		SubmittedAt:        now,
		ScoreHandle:        h.ID,
		CommentsCiphertext: in.CommentsCiphertext,
	}, entry)
	if err != nil {
		return types.Review{}, err
	}
	l.registry.Commit(h)

	l.events.Publish(ctx, bus.Event{Kind: bus.KindReviewSubmitted, PaperID: r.PaperID, Handle: h.ID, ReviewIndex: r.Index})
	return r, nil
}

// AggregateScores folds all current review scores of a paper into a single
/// aggregate handle. Explicit and re-invocable: a later call after new
// reviews replaces the aggregate; a call over an unchanged review set
// reuses the existing handle.
func (l *Ledger) AggregateScores(ctx context.Context, paperID string) (types.Paper, types.Handle, error) {
	if err := ctx.Err(); err != nil {
		return types.Paper{}, types.Handle{}, err
	}
	if _, err := l.kvHandle(); err != nil {
		return types.Paper{}, types.Handle{}, err
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	p, h, err := l.engine.Aggregate(paperID, time.Now().UTC())
	if err != nil {
		return types.Paper{}, types.Handle{}, err
	}

	l.events.Publish(ctx, bus.Event{Kind: bus.KindScoreAggregated, PaperID: paperID, Handle: h.ID, ReviewIndex: -1})
	return p, h, nil
}

// Publish marks a paper as published. The aggregate must exist over at
// least one review, but it need not be verified: a paper can go out with
// its aggregate score still confidential.
func (l *Ledger) Publish(ctx context.Context, paperID string) (types.Paper, error) {
	if err := ctx.Err(); err != nil {
		return types.Paper{}, err
	}
	if _, err := l.kvHandle(); err != nil {
		return types.Paper{}, err
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	p, err := l.records.MarkPublished(paperID, time.Now().UTC())
	if err != nil {
		return types.Paper{}, err
	}

	l.events.Publish(ctx, bus.Event{Kind: bus.KindPaperPublished, PaperID: paperID, Handle: p.AggregateHandle, ReviewIndex: -1})
	return p, nil
}

// Verify runs the one-shot verification transition on a handle with a
// claimed clear value and the oracle's proof for it. A handle that already
// completed the transition returns registry.ErrAlreadyVerified together
// with the stored value, so callers can treat retries as reads.
func (l *Ledger) Verify(ctx context.Context, id types.HandleID, clearValue uint64, proof attest.Proof) (types.VerifiedResult, error) {
	if err := ctx.Err(); err != nil {
		return types.VerifiedResult{}, err
	}
	if _, err := l.kvHandle(); err != nil {
		return types.VerifiedResult{}, err
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	return l.registry.Verify(id, clearValue, proof, time.Now().UTC())
}

// GrantDisclosure marks a handle as publicly decryptable. Idempotent and
// never revoked.
func (l *Ledger) GrantDisclosure(ctx context.Context, id types.HandleID) (types.Handle, error) {
	if err := ctx.Err(); err != nil {
		return types.Handle{}, err
	}
	if _, err := l.kvHandle(); err != nil {
		return types.Handle{}, err
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	return l.registry.GrantDisclosure(id)
}

// Snapshot writes an xz-compressed export of all ledger records to w.
func (l *Ledger) Snapshot(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kv, err := l.kvHandle()
	if err != nil {
		return err
	}
	return backup.Export(kv, w, time.Now())
}

// RestoreSnapshot imports a snapshot and reloads the in-memory stores.
// Existing records with the same keys are overwritten.
func (l *Ledger) RestoreSnapshot(ctx context.Context, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kv, err := l.kvHandle()
	if err != nil {
		return err
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	n, err := backup.Import(kv, r)
	if err != nil {
		return err
	}
	if err := l.records.Load(); err != nil {
		return fmt.Errorf("reload records: %w", err)
	}
	if err := l.registry.Load(); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}

	l.log.WithField("entries", n).Info("snapshot restored")
	return nil
}
