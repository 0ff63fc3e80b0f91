package modelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"spendwise/internal/classifier"
)

const badgerPrefix = "model/"

// BadgerStore keeps the current model under the "model/" key prefix. All
// artifacts and the manifest are written in one transaction and read in one
// snapshot, so a reader never mixes versions.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
	owned  bool
}

// OpenBadgerStore opens (or creates) a database at path owned by the store.
func OpenBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger model store: %w", err)
	}
	s := NewBadgerStore(db, logger)
	s.owned = true
	return s, nil
}

// NewBadgerStore wraps an already open database. Close leaves it open.
func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger}
}

func key(name string) []byte {
	return []byte(badgerPrefix + name)
}

func (s *BadgerStore) Save(ctx context.Context, m *classifier.Model) (Manifest, error) {
	if err := ctx.Err(); err != nil {
		return Manifest{}, err
	}
	blobs, err := encodeArtifacts(m)
	if err != nil {
		return Manifest{}, err
	}
	mf := newManifest(uuid.NewString(), m, blobs)
	body, err := json.Marshal(mf)
	if err != nil {
		return Manifest{}, fmt.Errorf("encode manifest: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for name, b := range blobs {
			if err := txn.Set(key(name), b); err != nil {
				return fmt.Errorf("set %s: %w", name, err)
			}
		}
		return txn.Set(key(ManifestName), body)
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("save model: %w", err)
	}

	s.logger.InfoContext(ctx, "Model saved",
		"store", "badger",
		"version", mf.Version,
		"num_labels", mf.NumLabels)
	return mf, nil
}

func (s *BadgerStore) Load(ctx context.Context) (*Snapshot, bool) {
	if ctx.Err() != nil {
		return nil, false
	}

	var (
		mf    Manifest
		blobs = make(map[string][]byte, len(artifactNames))
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(ManifestName))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if mf, err = decodeManifest(raw); err != nil {
			return err
		}
		for _, name := range artifactNames {
			item, err := txn.Get(key(name))
			if err != nil {
				return fmt.Errorf("get %s: %w", name, err)
			}
			if blobs[name], err = item.ValueCopy(nil); err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) && mf.Version == "" {
			s.logger.DebugContext(ctx, "No model saved yet", "store", "badger")
		} else {
			s.logger.WarnContext(ctx, "Model unreadable, treating model as absent", "error", err, "store", "badger")
		}
		return nil, false
	}

	m, err := decodeArtifacts(mf, blobs)
	if err != nil {
		s.logger.WarnContext(ctx, "Model artifacts inconsistent, treating model as absent",
			"error", err, "version", mf.Version)
		return nil, false
	}
	return &Snapshot{Manifest: mf, Model: m}, true
}

// Close releases the database when the store opened it.
func (s *BadgerStore) Close() error {
	if s.owned && s.db != nil {
		return s.db.Close()
	}
	return nil
}
