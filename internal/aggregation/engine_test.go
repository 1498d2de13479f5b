package aggregation

import (
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wileschulpusi/Review/internal/keyValStore"
	"github.com/wileschulpusi/Review/internal/records"
	"github.com/wileschulpusi/Review/internal/registry"
	"github.com/wileschulpusi/Review/pkg/paillier"
	"github.com/wileschulpusi/Review/pkg/types"
)

type fixture struct {
	engine *Engine
	rec    *records.Store
	reg    *registry.Registry
	priv   *paillier.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir, err := os.MkdirTemp("", "review_aggregation_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:  []string{dir},
		Logger: logrus.New(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	priv, err := paillier.GenerateKey(rand.Reader, 512)
	require.NoError(t, err)
	verifyKey, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	rec := records.NewStore(kv, logrus.New())
	reg := registry.NewRegistry(kv, &priv.PublicKey, verifyKey, logrus.New())
	return &fixture{
		engine: NewEngine(rec, reg, &priv.PublicKey, logrus.New()),
		rec:    rec,
		reg:    reg,
		priv:   priv,
	}
}

// addPaperWithScores sets up a paper with one review per score.
func (f *fixture) addPaperWithScores(t *testing.T, paperID string, scores ...uint64) {
	t.Helper()
	_, err := f.rec.CreatePaper(types.Paper{ID: paperID, Title: "t", SubmittedAt: time.Now()})
	require.NoError(t, err)

	for i, score := range scores {
		c, err := f.priv.PublicKey.Encrypt(rand.Reader, score)
		require.NoError(t, err)
		h, err := f.reg.Register(paillier.CiphertextHex(c), types.ReviewOwner(paperID, i), types.RoleScore, false, time.Now())
		require.NoError(t, err)
		_, err = f.rec.AppendReview(paperID, types.Review{Reviewer: "r", ScoreHandle: h.ID})
		require.NoError(t, err)
	}
}

func TestAggregate_SumsScores(t *testing.T) {
	f := newFixture(t)
	f.addPaperWithScores(t, "p1", 7, 8, 9)

	p, agg, err := f.engine.Aggregate("p1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, agg.ID, p.AggregateHandle)
	assert.Equal(t, 3, p.AggregatedReviews)
	assert.Equal(t, types.RoleAggregate, agg.Role)
	assert.True(t, agg.PubliclyDecryptable)

	// Decrypting the aggregate ciphertext yields the plaintext sum.
	c, err := paillier.ParseCiphertext(agg.Ciphertext)
	require.NoError(t, err)
	sum, err := f.priv.Decrypt(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), sum)
}

func TestAggregate_SingleReview(t *testing.T) {
	f := newFixture(t)
	f.addPaperWithScores(t, "p1", 5)

	// With one review the fold reproduces the score's ciphertext byte for
	// byte; the aggregate must still get a handle of its own.
	p, agg, err := f.engine.Aggregate("p1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, p.AggregatedReviews)
	assert.Equal(t, types.RoleAggregate, agg.Role)

	rev, err := f.rec.Review("p1", 0)
	require.NoError(t, err)
	assert.NotEqual(t, rev.ScoreHandle, agg.ID)

	c, err := paillier.ParseCiphertext(agg.Ciphertext)
	require.NoError(t, err)
	sum, err := f.priv.Decrypt(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum)
}

func TestAggregate_OrderInvariantSum(t *testing.T) {
	f := newFixture(t)
	scores := []uint64{3, 5, 9, 2}
	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{1, 3, 0, 2},
	}

	// The same score multiset must decrypt to the same sum no matter the
	// submission order.
	sums := make([]uint64, 0, len(orders))
	for i, order := range orders {
		paperID := fmt.Sprintf("p%d", i)
		permuted := make([]uint64, len(order))
		for j, idx := range order {
			permuted[j] = scores[idx]
		}
		f.addPaperWithScores(t, paperID, permuted...)

		_, agg, err := f.engine.Aggregate(paperID, time.Now())
		require.NoError(t, err)

		c, err := paillier.ParseCiphertext(agg.Ciphertext)
		require.NoError(t, err)
		sum, err := f.priv.Decrypt(c)
		require.NoError(t, err)
		sums = append(sums, sum)
	}

	for _, sum := range sums {
		assert.Equal(t, uint64(19), sum)
	}
}

func TestAggregate_NoReviews(t *testing.T) {
	f := newFixture(t)
	f.addPaperWithScores(t, "p1")

	_, _, err := f.engine.Aggregate("p1", time.Now())
	assert.ErrorIs(t, err, ErrNothingToAggregate)
}

func TestAggregate_UnknownPaper(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.engine.Aggregate("nope", time.Now())
	assert.ErrorIs(t, err, records.ErrPaperNotFound)
}

func TestAggregate_SameReviewSetReusesHandle(t *testing.T) {
	f := newFixture(t)
	f.addPaperWithScores(t, "p1", 5, 6)

	_, first, err := f.engine.Aggregate("p1", time.Now())
	require.NoError(t, err)

	// No new review arrived; the fold reproduces the same ciphertext and the
	// existing binding is reused instead of failing.
	p, second, err := f.engine.Aggregate("p1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ID, p.AggregateHandle)
}

func TestAggregate_NewReviewReplacesAggregate(t *testing.T) {
	f := newFixture(t)
	f.addPaperWithScores(t, "p1", 5, 6)

	_, first, err := f.engine.Aggregate("p1", time.Now())
	require.NoError(t, err)

	c, err := f.priv.PublicKey.Encrypt(rand.Reader, 4)
	require.NoError(t, err)
	h, err := f.reg.Register(paillier.CiphertextHex(c), types.ReviewOwner("p1", 2), types.RoleScore, false, time.Now())
	require.NoError(t, err)
	_, err = f.rec.AppendReview("p1", types.Review{Reviewer: "r", ScoreHandle: h.ID})
	require.NoError(t, err)

	p, second, err := f.engine.Aggregate("p1", time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 3, p.AggregatedReviews)

	agg, err := paillier.ParseCiphertext(second.Ciphertext)
	require.NoError(t, err)
	sum, err := f.priv.Decrypt(agg)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), sum)
}

func TestAggregate_PublishedPaperIsFrozen(t *testing.T) {
	f := newFixture(t)
	f.addPaperWithScores(t, "p1", 5)

	_, _, err := f.engine.Aggregate("p1", time.Now())
	require.NoError(t, err)
	_, err = f.rec.MarkPublished("p1", time.Now())
	require.NoError(t, err)

	_, _, err = f.engine.Aggregate("p1", time.Now())
	assert.ErrorIs(t, err, records.ErrAlreadyPublished)
}
