package oracle

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wileschulpusi/Review/pkg/attest"
	"github.com/wileschulpusi/Review/pkg/paillier"
	"github.com/wileschulpusi/Review/pkg/types"
)

func TestDecrypt_AttestsBinding(t *testing.T) {
	o, err := Generate(rand.Reader, 512)
	require.NoError(t, err)

	c, err := o.PublicKey().Encrypt(rand.Reader, 24)
	require.NoError(t, err)
	ct := paillier.CiphertextHex(c)
	id := attest.DeriveHandleID(types.RoleAggregate, ct)

	resp, err := o.Decrypt(context.Background(), DecryptRequest{Handle: id, Ciphertext: ct})
	require.NoError(t, err)
	assert.Equal(t, uint64(24), resp.ClearValue)

	ok := attest.Verify(o.VerifyKey(), id, attest.Commitment(ct), resp.ClearValue, resp.Proof)
	assert.True(t, ok)

	// The proof binds the handle: it must not verify under another id.
	ok = attest.Verify(o.VerifyKey(), types.HandleID("other"), attest.Commitment(ct), resp.ClearValue, resp.Proof)
	assert.False(t, ok)
}

func TestDecrypt_BadCiphertext(t *testing.T) {
	o, err := Generate(rand.Reader, 512)
	require.NoError(t, err)

	_, err = o.Decrypt(context.Background(), DecryptRequest{Handle: "h", Ciphertext: "zzz"})
	assert.Error(t, err)
}

func TestDecrypt_CanceledContext(t *testing.T) {
	o, err := Generate(rand.Reader, 512)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.Decrypt(ctx, DecryptRequest{Handle: "h", Ciphertext: "2"})
	assert.ErrorIs(t, err, context.Canceled)
}
