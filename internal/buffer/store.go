package buffer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/joshharrison/chainloom/internal/storage"
)

// Store persists buffers.
type Store interface {
	// ActiveBuffers returns the project's ACTIVE buffers in creation order.
	ActiveBuffers(ctx context.Context, projectID string) ([]Buffer, error)

	// History returns every buffer of the project, archived included, in
	// creation order.
	History(ctx context.Context, projectID string) ([]Buffer, error)

	// Get returns one buffer.
	Get(ctx context.Context, projectID, id string) (Buffer, error)

	// ReplaceActive archives all ACTIVE buffers of the project and inserts
	// fresh ones, atomically. It returns the buffers it archived.
	ReplaceActive(ctx context.Context, projectID string, fresh []Buffer, now time.Time) ([]Buffer, error)

	// SetConsumed updates the consumed-minutes counter of an ACTIVE buffer.
	SetConsumed(ctx context.Context, projectID, id string, minutes int, now time.Time) (Buffer, error)
}

const keyPrefix = "buffer/"

func projectPrefix(projectID string) []byte {
	return []byte(keyPrefix + projectID + "/")
}

func bufferKey(projectID, id string) []byte {
	return []byte(keyPrefix + projectID + "/" + id)
}

// BadgerStore keeps buffers in BadgerDB under buffer/<project>/<id> as
// JSON values.
type BadgerStore struct {
	db *storage.DB
}

// NewBadgerStore returns a store backed by db. The caller owns db.
func NewBadgerStore(db *storage.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

var _ Store = (*BadgerStore)(nil)

// ActiveBuffers implements Store.
func (s *BadgerStore) ActiveBuffers(ctx context.Context, projectID string) ([]Buffer, error) {
	var out []Buffer
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		all, err := scanProject(txn, projectID)
		if err != nil {
			return err
		}
		for _, b := range all {
			if b.Status == StatusActive {
				out = append(out, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list active buffers for %s: %w", projectID, err)
	}
	return out, nil
}

// History implements Store.
func (s *BadgerStore) History(ctx context.Context, projectID string) ([]Buffer, error) {
	var out []Buffer
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = scanProject(txn, projectID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list buffers for %s: %w", projectID, err)
	}
	return out, nil
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, projectID, id string) (Buffer, error) {
	var b Buffer
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		b, err = getBuffer(txn, projectID, id)
		return err
	})
	return b, err
}

// ReplaceActive implements Store. Archive and insert share one badger
// transaction, so a concurrent replace for the same project fails with
// badger.ErrConflict rather than leaving two ACTIVE sets.
func (s *BadgerStore) ReplaceActive(ctx context.Context, projectID string, fresh []Buffer, now time.Time) ([]Buffer, error) {
	var archived []Buffer
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		all, err := scanProject(txn, projectID)
		if err != nil {
			return err
		}
		for _, b := range all {
			if b.Status != StatusActive {
				continue
			}
			at := now
			b.Status = StatusArchived
			b.ArchivedAt = &at
			b.UpdatedAt = now
			if err := putBuffer(txn, b); err != nil {
				return err
			}
			archived = append(archived, b)
		}
		for _, b := range fresh {
			if b.ProjectID != projectID {
				return fmt.Errorf("buffer %s belongs to project %q, not %q", b.ID, b.ProjectID, projectID)
			}
			if err := putBuffer(txn, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace active buffers for %s: %w", projectID, err)
	}
	return archived, nil
}

// SetConsumed implements Store.
func (s *BadgerStore) SetConsumed(ctx context.Context, projectID, id string, minutes int, now time.Time) (Buffer, error) {
	if minutes < 0 {
		return Buffer{}, ErrInvalidConsumption
	}
	var b Buffer
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var err error
		b, err = getBuffer(txn, projectID, id)
		if err != nil {
			return err
		}
		if b.Status != StatusActive {
			return fmt.Errorf("%w: %s", ErrArchived, id)
		}
		b.ConsumedMinutes = minutes
		b.UpdatedAt = now
		return putBuffer(txn, b)
	})
	return b, err
}

func getBuffer(txn *badger.Txn, projectID, id string) (Buffer, error) {
	var b Buffer
	item, err := txn.Get(bufferKey(projectID, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return b, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return b, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &b)
	})
	if err != nil {
		return Buffer{}, fmt.Errorf("decode buffer %s: %w", id, err)
	}
	// A project ID containing "/" can alias another project's key.
	if b.ProjectID != projectID || b.ID != id {
		return Buffer{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

func putBuffer(txn *badger.Txn, b Buffer) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal buffer %s: %w", b.ID, err)
	}
	return txn.Set(bufferKey(b.ProjectID, b.ID), data)
}

// scanProject returns every buffer stored under the project prefix,
// ordered by creation time then position. Keys of a project whose ID
// extends this one share the prefix, so the decoded ProjectID is checked.
func scanProject(txn *badger.Txn, projectID string) ([]Buffer, error) {
	var out []Buffer
	err := storage.ScanPrefix(txn, projectPrefix(projectID), func(_, val []byte) error {
		var b Buffer
		if err := json.Unmarshal(val, &b); err != nil {
			return fmt.Errorf("decode buffer: %w", err)
		}
		if b.ProjectID == projectID {
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortBuffers(out)
	return out, nil
}

func sortBuffers(bs []Buffer) {
	sort.SliceStable(bs, func(i, j int) bool {
		if !bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].CreatedAt.Before(bs[j].CreatedAt)
		}
		return bs[i].Position < bs[j].Position
	})
}
