// Package keyValStore is the badger-backed persistence layer of the review
// ledger. Papers, reviews and handles are stored as JSON values under
// prefixed keys; the in-memory stores reload themselves from here on start.
package keyValStore

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var ErrKeyNotFound = errors.New("key not found")

type StoreConfig struct {
	Paths            []string // at the moment only the first path is used
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config   StoreConfig
	badgerDB *badger.DB
	log      *logrus.Logger
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	if err := config.checkConfig(); err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // max size of each value log file, 100MB
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %s: %w", config.Paths[0], err)
	}

	if err := checkFreeSpace(config.Logger, config.Paths, config.MinimumFreeSpace); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &KeyValStore{
		config:   config,
		badgerDB: db,
		log:      config.Logger,
	}, nil
}

func (c *StoreConfig) checkConfig() error {
	if len(c.Paths) == 0 {
		return fmt.Errorf("no path provided")
	}
	if c.MinimumFreeSpace < 0 {
		return fmt.Errorf("minimum free space must not be negative")
	}
	return nil
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
	if err != nil {
		return fmt.Errorf("error writing key %q: %w", key, err)
	}
	return nil
}

// WriteBatch writes all pairs in one transaction; either every pair lands
// or none does.
func (k *KeyValStore) WriteBatch(batch [][2][]byte) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		for _, kv := range batch {
			if err := txn.Set(kv[0], kv[1]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error writing batch of %d pairs: %w", len(batch), err)
	}
	return nil
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("key %q: %w", key, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("error reading key %q: %w", key, err)
	}
	return value, nil
}

func (k *KeyValStore) Has(key []byte) (bool, error) {
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetItemsWithPrefix returns all keys and values with the given prefix, in
// badger's ascending key order.
func (k *KeyValStore) GetItemsWithPrefix(prefix []byte) ([][][]byte, error) {
	var keysAndValues [][][]byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keysAndValues = append(keysAndValues, [][]byte{key, value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning prefix %q: %w", prefix, err)
	}
	return keysAndValues, nil
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		k.log.WithField("error", err).Warn("cleanup before close failed")
	}
	return k.badgerDB.Close()
}

func (k *KeyValStore) Clean() error {
	if err := k.badgerDB.Sync(); err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	if err := k.badgerDB.Flatten(runtime.NumCPU()); err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}

	if err := k.badgerDB.RunValueLogGC(0.1); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}
