// Package paillier implements the additively homomorphic cipher the review
// ledger uses as its confidential-compute substrate. Ciphertexts are values
// in Z*_{n²}; adding two plaintexts is multiplying their ciphertexts mod n².
//
// The ledger core only ever touches PublicKey operations (Add, the validity
// check, hex canonicalization). PrivateKey lives with the decryption
// oracle, never with the core.
package paillier

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

var (
	ErrCiphertextRange   = errors.New("paillier: ciphertext out of range")
	ErrNotInvertible     = errors.New("paillier: ciphertext not invertible mod n²")
	ErrMessageTooLarge   = errors.New("paillier: message does not fit modulus")
	ErrKeySizeTooSmall   = errors.New("paillier: key size below 256 bits")
	ErrMismatchedModulus = errors.New("paillier: ciphertext from a different key")
)

var one = big.NewInt(1)

// PublicKey carries the Paillier parameters needed for encryption and for
// homomorphic addition. N2 is cached because every operation reduces mod n².
type PublicKey struct {
	N  *big.Int
	G  *big.Int
	N2 *big.Int
}

// PrivateKey is the decryption half. Lambda is lcm(p-1, q-1), Mu the
// modular inverse of L(g^lambda mod n²) mod n.
type PrivateKey struct {
	PublicKey
	Lambda *big.Int
	Mu     *big.Int
}

// GenerateKey produces a fresh keypair with an n of the given bit size.
func GenerateKey(random io.Reader, bits int) (*PrivateKey, error) {
	if bits < 256 {
		return nil, ErrKeySizeTooSmall
	}

	var p, q, n *big.Int
	for {
		var err error
		p, err = rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("generate p: %w", err)
		}
		q, err = rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("generate q: %w", err)
		}
		if p.Cmp(q) != 0 {
			n = new(big.Int).Mul(p, q)
			if n.BitLen() == bits {
				break
			}
		}
	}

	n2 := new(big.Int).Mul(n, n)
	g := new(big.Int).Add(n, one)

	pMinus := new(big.Int).Sub(p, one)
	qMinus := new(big.Int).Sub(q, one)
	gcd := new(big.Int).GCD(nil, nil, pMinus, qMinus)
	lambda := new(big.Int).Mul(pMinus, qMinus)
	lambda.Div(lambda, gcd)

	// mu = (L(g^lambda mod n²))^-1 mod n
	u := new(big.Int).Exp(g, lambda, n2)
	mu := new(big.Int).ModInverse(lFunc(u, n), n)
	if mu == nil {
		return nil, errors.New("paillier: lambda not invertible, retry key generation")
	}

	return &PrivateKey{
		PublicKey: PublicKey{N: n, G: g, N2: n2},
		Lambda:    lambda,
		Mu:        mu,
	}, nil
}

// Encrypt produces a randomized ciphertext of m under pk.
func (pk *PublicKey) Encrypt(random io.Reader, m uint64) (*big.Int, error) {
	mBig := new(big.Int).SetUint64(m)
	if mBig.Cmp(pk.N) >= 0 {
		return nil, ErrMessageTooLarge
	}

	// r must be a unit mod n.
	var r *big.Int
	for {
		var err error
		r, err = rand.Int(random, pk.N)
		if err != nil {
			return nil, fmt.Errorf("sample r: %w", err)
		}
		if r.Sign() > 0 && new(big.Int).GCD(nil, nil, r, pk.N).Cmp(one) == 0 {
			break
		}
	}

	// c = g^m * r^n mod n²
	gm := new(big.Int).Exp(pk.G, mBig, pk.N2)
	rn := new(big.Int).Exp(r, pk.N, pk.N2)
	c := new(big.Int).Mul(gm, rn)
	return c.Mod(c, pk.N2), nil
}

// Add combines two ciphertexts into the encryption of the plaintext sum.
// Addition is commutative and associative over the ciphertext algebra.
func (pk *PublicKey) Add(c1, c2 *big.Int) *big.Int {
	sum := new(big.Int).Mul(c1, c2)
	return sum.Mod(sum, pk.N2)
}

// CheckCiphertext is the substrate-level validity check performed before a
// ciphertext may be registered: 1 < c < n² and gcd(c, n²) == 1. Cheap
// checks only; it does not prove the ciphertext decrypts to anything
// meaningful.
func (pk *PublicKey) CheckCiphertext(c *big.Int) error {
	if c == nil || c.Cmp(one) <= 0 || c.Cmp(pk.N2) >= 0 {
		return ErrCiphertextRange
	}
	if new(big.Int).GCD(nil, nil, c, pk.N2).Cmp(one) != 0 {
		return ErrNotInvertible
	}
	return nil
}

// Decrypt recovers the plaintext: m = L(c^lambda mod n²) * mu mod n.
func (sk *PrivateKey) Decrypt(c *big.Int) (uint64, error) {
	if err := sk.CheckCiphertext(c); err != nil {
		return 0, err
	}
	u := new(big.Int).Exp(c, sk.Lambda, sk.N2)
	m := lFunc(u, sk.N)
	m.Mul(m, sk.Mu)
	m.Mod(m, sk.N)
	if !m.IsUint64() {
		return 0, ErrMessageTooLarge
	}
	return m.Uint64(), nil
}

// lFunc is L(u) = (u - 1) / n.
func lFunc(u, n *big.Int) *big.Int {
	l := new(big.Int).Sub(u, one)
	return l.Div(l, n)
}

// ParseCiphertext parses a hex ciphertext string, with or without a 0x
// prefix, into a big.Int.
func ParseCiphertext(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, fmt.Errorf("empty ciphertext hex")
	}
	c, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("bad ciphertext hex: %q", s)
	}
	return c, nil
}

// CiphertextHex encodes a ciphertext as canonical lowercase hex without 0x
// and without leading zeros, so digests over the encoding are reproducible
// across clients.
func CiphertextHex(c *big.Int) string {
	if c == nil || c.Sign() == 0 {
		return "0"
	}
	return strings.TrimLeft(strings.ToLower(c.Text(16)), "0")
}
