package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketDocuments = "documents"
	documentKey     = "state"
)

// BoltStore keeps the document under a single key. bbolt serializes
// Update transactions and commits them crash-safely.
type BoltStore struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketDocuments))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Read(_ context.Context) (Document, error) {
	var doc Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		doc, err = decode(tx.Bucket([]byte(bucketDocuments)).Get([]byte(documentKey)))
		return err
	})
	return doc, err
}

func (s *BoltStore) Mutate(_ context.Context, fn func(doc *Document) error) error {
	var fnErr error
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketDocuments))
		doc, err := decode(b.Get([]byte(documentKey)))
		if err != nil {
			return err
		}
		if fnErr = fn(&doc); fnErr != nil {
			return fnErr
		}
		data, err := encode(&doc)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(documentKey), data); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil && !errors.Is(err, ErrCorrupt) && !errors.Is(err, ErrWrite) {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return err
}

func (s *BoltStore) Close() error { return s.db.Close() }
