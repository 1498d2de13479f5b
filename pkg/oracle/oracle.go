// Package oracle is the decryption collaborator of the review ledger. It is
// the only party holding the substrate private key. Decryption is stateless:
// the oracle turns a ciphertext into a clear value plus a signed attestation
// and remembers nothing; all verification state lives in the ledger.
package oracle

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/sirupsen/logrus"

	"github.com/wileschulpusi/Review/pkg/attest"
	"github.com/wileschulpusi/Review/pkg/paillier"
	"github.com/wileschulpusi/Review/pkg/types"
)

type Oracle struct {
	key     *paillier.PrivateKey
	signKey ed25519.PrivateKey
	log     *logrus.Logger
}

func New(key *paillier.PrivateKey, signKey ed25519.PrivateKey, log *logrus.Logger) *Oracle {
	if log == nil {
		log = logrus.New()
	}
	return &Oracle{key: key, signKey: signKey, log: log}
}

// Generate creates an oracle with a fresh substrate keypair and signing key.
func Generate(random io.Reader, bits int) (*Oracle, error) {
	key, err := paillier.GenerateKey(random, bits)
	if err != nil {
		return nil, fmt.Errorf("generate substrate key: %w", err)
	}
	_, signKey, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return New(key, signKey, nil), nil
}

// PublicKey returns the substrate encryption key clients and the ledger use.
func (o *Oracle) PublicKey() *paillier.PublicKey {
	return &o.key.PublicKey
}

// VerifyKey returns the key the ledger checks attestations against.
func (o *Oracle) VerifyKey() ed25519.PublicKey {
	return o.signKey.Public().(ed25519.PublicKey)
}

// DecryptRequest names the handle being disclosed and carries its
// ciphertext. The oracle holds no ledger state, so the caller supplies both.
type DecryptRequest struct {
	Handle     types.HandleID
	Ciphertext string
	// Requester is recorded in the oracle's audit log only.
	Requester string
}

type DecryptResponse struct {
	ClearValue uint64
	Proof      attest.Proof
}

// Decrypt recovers the clear value of a ciphertext and attests to the
// binding between the value, the handle and the ciphertext's commitment.
func (o *Oracle) Decrypt(ctx context.Context, req DecryptRequest) (DecryptResponse, error) {
	if err := ctx.Err(); err != nil {
		return DecryptResponse{}, err
	}

	c, err := paillier.ParseCiphertext(req.Ciphertext)
	if err != nil {
		return DecryptResponse{}, fmt.Errorf("parse ciphertext: %w", err)
	}
	value, err := o.key.Decrypt(c)
	if err != nil {
		return DecryptResponse{}, fmt.Errorf("decrypt: %w", err)
	}

	commitment := attest.Commitment(paillier.CiphertextHex(c))
	proof := attest.Sign(o.signKey, req.Handle, commitment, value)

	o.log.WithFields(logrus.Fields{
		"handle":    req.Handle,
		"requester": req.Requester,
	}).Info("decryption attested")

	return DecryptResponse{ClearValue: value, Proof: proof}, nil
}
