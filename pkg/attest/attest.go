// Package attest defines the decryption attestation scheme: a proof that
// binds a claimed clear value to the exact ciphertext behind a handle. The
// decryption oracle signs the binding; the ledger core verifies it against
// the handle's registered commitment without ever holding the decryption
// key.
package attest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/cloudflare/circl/sign/ed25519"

	"github.com/wileschulpusi/Review/pkg/types"
)

// bindingDomain separates decryption attestations from any other use of
// the oracle's signing key.
const bindingDomain = "review/decrypt/v1"

// Proof is the oracle's signature over the binding of (handle, commitment,
// clear value). It is only meaningful together with the oracle verify key
// the ledger was configured with.
type Proof struct {
	Signature []byte `json:"signature"`
}

func (p Proof) Hex() string {
	return hex.EncodeToString(p.Signature)
}

func ProofFromHex(s string) (Proof, error) {
	sig, err := hex.DecodeString(s)
	if err != nil {
		return Proof{}, err
	}
	return Proof{Signature: sig}, nil
}

// Commitment computes the value a handle is committed to at registration
// time: the hex SHA-256 digest of the canonical ciphertext hex. Replay
// across handles is blocked by the binding message, which carries the
// handle id alongside the commitment.
func Commitment(ciphertextHex string) string {
	sum := sha256.Sum256([]byte(ciphertextHex))
	return hex.EncodeToString(sum[:])
}

// DeriveHandleID derives the substrate-assigned id of a handle: the hex
// SHA-256 digest over the handle's role and the canonical ciphertext hex.
// The role is folded into the digest so an aggregate produced from a
// single score, whose ciphertext equals that score's byte for byte, still
// gets its own handle.
func DeriveHandleID(role types.HandleRole, ciphertextHex string) types.HandleID {
	h := sha256.New()
	h.Write(role.Bytes())
	h.Write([]byte{0})
	h.Write([]byte(ciphertextHex))
	return types.HandleID(hex.EncodeToString(h.Sum(nil)))
}

// BindingMessage serializes the tuple an attestation signs. The clear value
// is fixed-width so no two tuples share an encoding.
func BindingMessage(handle types.HandleID, commitment string, clearValue uint64) []byte {
	var buf bytes.Buffer
	buf.WriteString(bindingDomain)
	buf.WriteByte(0)
	buf.WriteString(handle.String())
	buf.WriteByte(0)
	buf.WriteString(commitment)
	buf.WriteByte(0)

	var v [8]byte
	binary.BigEndian.PutUint64(v[:], clearValue)
	buf.Write(v[:])

	return buf.Bytes()
}

// Sign produces a proof for the given binding. Used by the oracle only.
func Sign(priv ed25519.PrivateKey, handle types.HandleID, commitment string, clearValue uint64) Proof {
	msg := BindingMessage(handle, commitment, clearValue)
	return Proof{Signature: ed25519.Sign(priv, msg)}
}

// Verify checks that proof binds clearValue to the handle's registered
// commitment under the given oracle verify key.
func Verify(pub ed25519.PublicKey, handle types.HandleID, commitment string, clearValue uint64, proof Proof) bool {
	if len(proof.Signature) != ed25519.SignatureSize {
		return false
	}
	msg := BindingMessage(handle, commitment, clearValue)
	return ed25519.Verify(pub, msg, proof.Signature)
}
