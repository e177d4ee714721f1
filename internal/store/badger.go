// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/hostgw/internal/log"
)

// BadgerStore persists records in a badger keyspace.
//
// Key layout:
//
//	exec:<sessionID>:<executionID> -> ExecutionRecord (JSON)
//	item:<executionID>:<itemID>    -> ItemResultRecord (JSON)
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) the store at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func execKey(sessionID, executionID string) []byte {
	return []byte(fmt.Sprintf("exec:%s:%s", sessionID, executionID))
}

func itemKey(executionID, itemID string) []byte {
	return []byte(fmt.Sprintf("item:%s:%s", executionID, itemID))
}

func (s *BadgerStore) PutExecution(_ context.Context, rec *ExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(execKey(rec.SessionID, rec.ExecutionID), data)
	})
}

func (s *BadgerStore) UpdateExecution(_ context.Context, sessionID, executionID string, mutate func(*ExecutionRecord)) (*ExecutionRecord, error) {
	var updated *ExecutionRecord
	err := s.db.Update(func(txn *badger.Txn) error {
		key := execKey(sessionID, executionID)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var rec ExecutionRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return fmt.Errorf("unmarshal execution record: %w", err)
		}
		mutate(&rec)
		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshal execution record: %w", err)
		}
		updated = &rec
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *BadgerStore) PutItemResult(_ context.Context, rec *ItemResultRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal item result: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(itemKey(rec.ExecutionID, rec.ItemID), data)
	})
}

func (s *BadgerStore) ListExecutions(_ context.Context, sessionID string) ([]*ExecutionRecord, error) {
	prefix := []byte(fmt.Sprintf("exec:%s:", sessionID))
	var out []*ExecutionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec ExecutionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				log.WithComponent("store").Warn().Err(err).
					Str("key", string(it.Item().Key())).
					Msg("skipping undecodable execution record")
				continue
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) ListItemResults(_ context.Context, executionID string) ([]*ItemResultRecord, error) {
	prefix := []byte(fmt.Sprintf("item:%s:", executionID))
	var out []*ItemResultRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec ItemResultRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				log.WithComponent("store").Warn().Err(err).
					Str("key", string(it.Item().Key())).
					Msg("skipping undecodable item result")
				continue
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
