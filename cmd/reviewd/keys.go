package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/sirupsen/logrus"

	"github.com/wileschulpusi/Review/pkg/oracle"
	"github.com/wileschulpusi/Review/pkg/paillier"
)

// keyFile persists the oracle's key material across restarts. The substrate
// private parameters are hex big ints; g and n² are derived on load.
type keyFile struct {
	N        string `json:"n"`
	Lambda   string `json:"lambda"`
	Mu       string `json:"mu"`
	SignSeed string `json:"signSeed"`
}

func loadOrCreateOracle(path string, bits int, log *logrus.Logger) (*oracle.Oracle, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return oracleFromFile(data, log)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}

	log.WithField("bits", bits).Info("generating oracle key material")
	key, err := paillier.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate substrate key: %w", err)
	}
	_, signKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	raw, err := json.Marshal(keyFile{
		N:        key.N.Text(16),
		Lambda:   key.Lambda.Text(16),
		Mu:       key.Mu.Text(16),
		SignSeed: hex.EncodeToString(signKey.Seed()),
	})
	if err != nil {
		return nil, fmt.Errorf("encode key file: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write key file %s: %w", path, err)
	}

	return oracle.New(key, signKey, log), nil
}

func oracleFromFile(data []byte, log *logrus.Logger) (*oracle.Oracle, error) {
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}

	n, ok := new(big.Int).SetString(kf.N, 16)
	if !ok {
		return nil, fmt.Errorf("bad n in key file")
	}
	lambda, ok := new(big.Int).SetString(kf.Lambda, 16)
	if !ok {
		return nil, fmt.Errorf("bad lambda in key file")
	}
	mu, ok := new(big.Int).SetString(kf.Mu, 16)
	if !ok {
		return nil, fmt.Errorf("bad mu in key file")
	}
	seed, err := hex.DecodeString(kf.SignSeed)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("bad signing seed in key file")
	}

	key := &paillier.PrivateKey{
		PublicKey: paillier.PublicKey{
			N:  n,
			G:  new(big.Int).Add(n, big.NewInt(1)),
			N2: new(big.Int).Mul(n, n),
		},
		Lambda: lambda,
		Mu:     mu,
	}
	return oracle.New(key, ed25519.NewKeyFromSeed(seed), log), nil
}
