package netnode

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/retroenv/retrogolib/log"
)

// node names and keys are joined with a separator byte that cannot occur
// in a node name, keeping per-node key ranges disjoint.
const nodeSeparator = 0x00

// BadgerStore implements Store on top of an embedded BadgerDB instance.
type BadgerStore struct {
	db *badger.DB
}

// Open opens a persistent store in the given directory, creating it if
// needed.
func Open(path string, logger *log.Logger) (*BadgerStore, error) {
	if path == "" {
		return nil, errors.New("path is required for a persistent store")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory '%s': %w", path, err)
	}

	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{logger: logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory opens a store that keeps all data in memory.
func OpenInMemory(logger *log.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{logger: logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get returns the value stored for the key, or nil if absent.
func (s *BadgerStore) Get(node string, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(node, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading key from node '%s': %w", node, err)
	}
	return value, nil
}

// Set stores the value for the key, replacing any previous value.
func (s *BadgerStore) Set(node string, key, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(node, key), value)
	})
	if err != nil {
		return fmt.Errorf("writing key to node '%s': %w", node, err)
	}
	return nil
}

// Remove deletes the key from the node.
func (s *BadgerStore) Remove(node string, key []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(node, key))
	})
	if err != nil {
		return fmt.Errorf("removing key from node '%s': %w", node, err)
	}
	return nil
}

// Scan visits every key of the node in key order.
func (s *BadgerStore) Scan(node string, fn func(key, value []byte) error) error {
	prefix := storeKey(node, nil)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.Key()[len(prefix):], value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning node '%s': %w", node, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

func storeKey(node string, key []byte) []byte {
	buf := make([]byte, 0, len(node)+1+len(key))
	buf = append(buf, node...)
	buf = append(buf, nodeSeparator)
	buf = append(buf, key...)
	return buf
}

// badgerLogger forwards BadgerDB's internal logging to the application
// logger.
type badgerLogger struct {
	logger *log.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
