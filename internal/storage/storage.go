package storage

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Storage key prefixes
const (
	prefixEval = "eval/"
)

// Evaluation is a cached evaluation result.
type Evaluation struct {
	FEN      string    `json:"fen"`
	Networks string    `json:"networks"`
	Score    float32   `json:"score"`
	StoredAt time.Time `json:"stored_at"`
}

// Store wraps BadgerDB for persistent evaluation results.
type Store struct {
	db *badger.DB
}

// OpenStore opens the evaluation store in dir. An empty dir selects StoreDir.
func OpenStore(dir string) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = StoreDir()
		if err != nil {
			return nil, err
		}
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// evalKey normalizes the FEN so that the fullmove number does not split
// entries. The halfmove clock is kept since it scales the evaluation.
func evalKey(networks, fen string) []byte {
	fields := strings.Fields(fen)
	if len(fields) > 5 {
		fields = fields[:5]
	}
	return []byte(prefixEval + networks + "/" + strings.Join(fields, " "))
}

// SaveEvaluation stores the score of fen under the given network pair.
func (s *Store) SaveEvaluation(networks, fen string, score float32) error {
	data, err := json.Marshal(Evaluation{
		FEN:      fen,
		Networks: networks,
		Score:    score,
		StoredAt: time.Now(),
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(evalKey(networks, fen), data)
	})
}

// LoadEvaluation returns a stored evaluation. ok is false if none is stored.
func (s *Store) LoadEvaluation(networks, fen string) (eval Evaluation, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(evalKey(networks, fen))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		ok = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &eval)
		})
	})
	return eval, ok, err
}

// CountEvaluations returns the number of stored evaluations.
func (s *Store) CountEvaluations() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixEval)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// DropEvaluations removes every stored evaluation.
func (s *Store) DropEvaluations() error {
	return s.db.DropPrefix([]byte(prefixEval))
}
