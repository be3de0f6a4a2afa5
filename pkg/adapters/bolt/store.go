// Package bolt provides a StateStore backed by a single bbolt database file.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/aretw0/weave/pkg/domain"
)

var sessionsBucket = []byte("sessions")

// Store implements ports.StateStore with one key per session in the "sessions" bucket.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the state in its own transaction.
func (s *Store) Save(_ context.Context, sessionID string, state *domain.State) error {
	if sessionID == "" {
		return errors.New("session id cannot be empty")
	}
	doc := *state
	doc.SessionID = sessionID
	data, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(sessionID), data)
	})
}

// Load reads the state.
func (s *Store) Load(_ context.Context, sessionID string) (*domain.State, error) {
	var state domain.State
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(sessionID))
		if data == nil {
			return domain.ErrSessionNotFound
		}
		// data is only valid inside the transaction; Unmarshal copies it.
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return state.Normalize(), nil
}

// Delete removes the session. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(sessionID))
	})
}

// List returns the session IDs in key order.
func (s *Store) List(_ context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}
