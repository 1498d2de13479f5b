// Package registry tracks every ciphertext handle the ledger has issued.
// A handle binds one ciphertext to one owning record; the binding is
// checked for substrate validity at registration and is immutable
// afterwards. Verification is the registry's only state transition.
package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/sirupsen/logrus"

	"github.com/wileschulpusi/Review/internal/keyValStore"
	"github.com/wileschulpusi/Review/pkg/attest"
	"github.com/wileschulpusi/Review/pkg/faults"
	"github.com/wileschulpusi/Review/pkg/paillier"
	"github.com/wileschulpusi/Review/pkg/types"
)

var (
	ErrUnknownHandle     = faults.New(faults.NotFound, "handle does not exist")
	ErrDuplicateBinding  = faults.New(faults.Conflict, "ciphertext is already bound to a handle")
	ErrAlreadyVerified   = faults.New(faults.Conflict, "handle was already verified")
	ErrInvalidProof      = faults.New(faults.InvalidProof, "proof does not bind the value to this handle")
	ErrInvalidCiphertext = faults.New(faults.InvalidCiphertext, "ciphertext failed the substrate validity check")
)

const handleKeyPrefix = "handle::"

func handleKey(id types.HandleID) []byte {
	return []byte(handleKeyPrefix + id.String())
}

// Registry is the in-memory handle table with write-through persistence.
// The ciphertext validity check runs against the configured public key; the
// verification check runs against the oracle's verify key.
type Registry struct {
	mu        sync.RWMutex
	kv        *keyValStore.KeyValStore
	log       *logrus.Logger
	pub       *paillier.PublicKey
	verifyKey ed25519.PublicKey
	handles   map[types.HandleID]types.Handle
}

func NewRegistry(kv *keyValStore.KeyValStore, pub *paillier.PublicKey, verifyKey ed25519.PublicKey, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		kv:        kv,
		log:       log,
		pub:       pub,
		verifyKey: verifyKey,
		handles:   make(map[types.HandleID]types.Handle),
	}
}

// Load rebuilds the handle table from persisted state, discarding any
// previous in-memory view.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make(map[types.HandleID]types.Handle)
	items, err := r.kv.GetItemsWithPrefix([]byte(handleKeyPrefix))
	if err != nil {
		return fmt.Errorf("load handles: %w", err)
	}
	for _, kvPair := range items {
		var h types.Handle
		if err := json.Unmarshal(kvPair[1], &h); err != nil {
			return fmt.Errorf("decode handle %q: %w", kvPair[0], err)
		}
		handles[h.ID] = h
	}
	r.handles = handles

	r.log.WithField("handles", len(r.handles)).Info("handle registry loaded")
	return nil
}

// Prepare validates a ciphertext and constructs its handle binding without
// persisting anything. The returned entry is written in the caller's
// transaction; Commit makes the handle visible once that transaction lands.
// The handle id is a digest over role and canonical ciphertext, so the same
// ciphertext can never be bound twice under one role: a second registration
// returns the existing handle together with ErrDuplicateBinding, and the
// caller decides whether the reuse is benign. Prepare/Commit pairs are
// serialized by the ledger's write lock.
func (r *Registry) Prepare(ciphertextHex string, owner types.Owner, role types.HandleRole, publiclyDecryptable bool, now time.Time) (types.Handle, [2][]byte, error) {
	c, err := paillier.ParseCiphertext(ciphertextHex)
	if err != nil {
		return types.Handle{}, [2][]byte{}, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if err := r.pub.CheckCiphertext(c); err != nil {
		return types.Handle{}, [2][]byte{}, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	canonical := paillier.CiphertextHex(c)
	id := attest.DeriveHandleID(role, canonical)

	r.mu.RLock()
	existing, bound := r.handles[id]
	r.mu.RUnlock()
	if bound {
		return existing, [2][]byte{}, fmt.Errorf("handle %s: %w", id, ErrDuplicateBinding)
	}

	h := types.Handle{
		ID:                  id,
		Ciphertext:          canonical,
		Owner:               owner,
		Role:                role,
		PubliclyDecryptable: publiclyDecryptable,
		State:               types.StateEncrypted,
		RegisteredAt:        now,
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return types.Handle{}, [2][]byte{}, fmt.Errorf("encode handle: %w", err)
	}
	return h, [2][]byte{handleKey(id), raw}, nil
}

// Commit makes a prepared handle visible after its entry was persisted.
func (r *Registry) Commit(h types.Handle) {
	r.mu.Lock()
	r.handles[h.ID] = h
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"handle": h.ID,
		"owner":  h.Owner.String(),
		"role":   h.Role.String(),
	}).Debug("handle registered")
}

// Register prepares, persists and commits a handle in one step, for
// callers with no surrounding record transaction.
func (r *Registry) Register(ciphertextHex string, owner types.Owner, role types.HandleRole, publiclyDecryptable bool, now time.Time) (types.Handle, error) {
	h, entry, err := r.Prepare(ciphertextHex, owner, role, publiclyDecryptable, now)
	if err != nil {
		return h, err
	}
	if err := r.kv.Write(entry[0], entry[1]); err != nil {
		return types.Handle{}, fmt.Errorf("persist handle: %w", err)
	}
	r.Commit(h)
	return h, nil
}

// GrantDisclosure marks a handle as publicly decryptable. The grant is
// idempotent and never revoked.
func (r *Registry) GrantDisclosure(id types.HandleID) (types.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.handles[id]
	if !exists {
		return types.Handle{}, fmt.Errorf("handle %s: %w", id, ErrUnknownHandle)
	}
	if h.PubliclyDecryptable {
		return h, nil
	}

	h.PubliclyDecryptable = true
	if err := r.persist(h); err != nil {
		return types.Handle{}, err
	}
	r.handles[id] = h
	return h, nil
}

// Lookup returns the handle record for id.
func (r *Registry) Lookup(id types.HandleID) (types.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handles[id]
	if !exists {
		return types.Handle{}, fmt.Errorf("handle %s: %w", id, ErrUnknownHandle)
	}
	return h, nil
}

func (r *Registry) persist(h types.Handle) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode handle: %w", err)
	}
	if err := r.kv.Write(handleKey(h.ID), raw); err != nil {
		return fmt.Errorf("persist handle: %w", err)
	}
	return nil
}
