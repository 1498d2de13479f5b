package review

import (
	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/sirupsen/logrus"

	"github.com/wileschulpusi/Review/pkg/paillier"
)

// Config configures a ledger instance. Only Paths[0] is used at the moment;
// future versions may use multiple paths for sharding or tiering.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string
	// MinimumFreeGB is a free-space threshold for on-disk operations.
	MinimumFreeGB uint
	// Logger is an optional structured logger. If nil, a stderr logger is used.
	Logger *logrus.Logger
	// PublicKey is the encryption key of the confidential-compute substrate.
	// The ledger validates and combines ciphertexts under it; the matching
	// private key lives with the decryption oracle, never here.
	PublicKey *paillier.PublicKey
	// OracleVerifyKey checks decryption attestations. A proof signed by any
	// other key never verifies a handle.
	OracleVerifyKey ed25519.PublicKey
	// EventBuffer sizes the event stream. If 0 a default is used.
	EventBuffer int
}

func defaultLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	return log
}
