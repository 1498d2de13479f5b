package apiServer

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	review "github.com/wileschulpusi/Review"
	"github.com/wileschulpusi/Review/pkg/attest"
	"github.com/wileschulpusi/Review/pkg/oracle"
	"github.com/wileschulpusi/Review/pkg/paillier"
	"github.com/wileschulpusi/Review/pkg/types"
)

type testEnv struct {
	server *Server
	ledger *review.Ledger
	oracle *oracle.Oracle
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	o, err := oracle.Generate(rand.Reader, 512)
	require.NoError(t, err)

	dir, err := os.MkdirTemp("", "review_api_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	l, err := review.New(review.Config{
		Paths:           []string{dir},
		Logger:          log,
		PublicKey:       o.PublicKey(),
		OracleVerifyKey: o.VerifyKey(),
	})
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { l.Close(context.Background()) })

	return &testEnv{server: New(l, WithLogger(log)), ledger: l, oracle: o}
}

func (e *testEnv) encrypt(t *testing.T, value uint64) string {
	t.Helper()
	c, err := e.oracle.PublicKey().Encrypt(rand.Reader, value)
	require.NoError(t, err)
	return paillier.CiphertextHex(c)
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) submitPaper(t *testing.T, id string, scores ...uint64) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/papers", submitPaperRequest{
		ID: id, Title: "t", Submitter: "alice", ContentCiphertext: e.encrypt(t, 1),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, score := range scores {
		rec := e.do(t, http.MethodPost, "/papers/"+id+"/reviews", submitReviewRequest{
			Reviewer: "bob", ScoreCiphertext: e.encrypt(t, score),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestSubmitPaper_AndGet(t *testing.T) {
	e := newTestEnv(t)
	e.submitPaper(t, "p1")

	rec := e.do(t, http.MethodGet, "/papers/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var p types.Paper
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "p1", p.ID)
	assert.False(t, p.ContentHandle.IsZero())
}

func TestGetPaper_NotFound(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/papers/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", string(resp.Code))
}

func TestSubmitPaper_DuplicateConflict(t *testing.T) {
	e := newTestEnv(t)
	e.submitPaper(t, "p1")

	rec := e.do(t, http.MethodPost, "/papers", submitPaperRequest{
		ID: "p1", ContentCiphertext: e.encrypt(t, 1),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitReview_BadCiphertext(t *testing.T) {
	e := newTestEnv(t)
	e.submitPaper(t, "p1")

	rec := e.do(t, http.MethodPost, "/papers/p1/reviews", submitReviewRequest{
		Reviewer: "bob", ScoreCiphertext: "zz",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPublish_Ordering(t *testing.T) {
	e := newTestEnv(t)
	e.submitPaper(t, "p1", 7)

	rec := e.do(t, http.MethodPost, "/papers/p1/publish", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = e.do(t, http.MethodPost, "/papers/p1/aggregate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/papers/p1/publish", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Re-publish is success-equivalent: 200 with the published record.
	rec = e.do(t, http.MethodPost, "/papers/p1/publish", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var p types.Paper
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.True(t, p.Published)
}

func TestAggregate_NoReviews(t *testing.T) {
	e := newTestEnv(t)
	e.submitPaper(t, "p1")

	rec := e.do(t, http.MethodPost, "/papers/p1/aggregate", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestVerify_Flow(t *testing.T) {
	e := newTestEnv(t)
	e.submitPaper(t, "p1", 7, 8, 9)

	rec := e.do(t, http.MethodPost, "/papers/p1/aggregate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var agg aggregateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))

	resp, err := e.oracle.Decrypt(context.Background(), oracle.DecryptRequest{
		Handle: agg.Handle.ID, Ciphertext: agg.Handle.Ciphertext,
	})
	require.NoError(t, err)

	rec = e.do(t, http.MethodPost, "/handles/"+agg.Handle.ID.String()+"/verify", verifyRequest{
		ClearValue: resp.ClearValue, Proof: resp.Proof.Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res types.VerifiedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, uint64(24), res.ClearValue)
	assert.False(t, res.AlreadyVerified)

	// Retry maps the conflict to 200 with the stored value.
	rec = e.do(t, http.MethodPost, "/handles/"+agg.Handle.ID.String()+"/verify", verifyRequest{
		ClearValue: resp.ClearValue, Proof: resp.Proof.Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.AlreadyVerified)
	assert.Equal(t, uint64(24), res.ClearValue)
}

func TestVerify_BadProof(t *testing.T) {
	e := newTestEnv(t)
	e.submitPaper(t, "p1", 7)

	rec := e.do(t, http.MethodPost, "/papers/p1/aggregate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var agg aggregateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))

	badProof := attest.Proof{Signature: bytes.Repeat([]byte{1}, 64)}
	rec = e.do(t, http.MethodPost, "/handles/"+agg.Handle.ID.String()+"/verify", verifyRequest{
		ClearValue: 7, Proof: badProof.Hex(),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDisclose_GrantsPublicDecryption(t *testing.T) {
	e := newTestEnv(t)
	e.submitPaper(t, "p1", 7)

	rec := e.do(t, http.MethodGet, "/papers/p1/reviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var reviews []types.Review
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reviews))
	require.Len(t, reviews, 1)

	rec = e.do(t, http.MethodPost, "/handles/"+reviews[0].ScoreHandle.String()+"/disclose", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var h types.Handle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.True(t, h.PubliclyDecryptable)
}

func TestVerify_UnknownHandle(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/handles/missing/verify", verifyRequest{ClearValue: 1, Proof: ""})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
