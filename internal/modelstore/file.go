package modelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendwise/internal/classifier"
)

const (
	stagingPrefix = ".staging-"
	// versions younger than this are never pruned, so a concurrent writer in
	// another process can still publish its manifest
	pruneGrace = time.Minute
)

// FileStore keeps each model version in its own directory under dir and
// points at the current one with manifest.json:
//
//	dir/
//	  manifest.json
//	  <version>/vectorizer.json
//	  <version>/classifier.json
//	  <version>/labels.json
type FileStore struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create model directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Save(ctx context.Context, m *classifier.Model) (Manifest, error) {
	if err := ctx.Err(); err != nil {
		return Manifest{}, err
	}
	blobs, err := encodeArtifacts(m)
	if err != nil {
		return Manifest{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, _ := s.readManifest()

	version := uuid.NewString()
	staging := filepath.Join(s.dir, stagingPrefix+version)
	if err := os.Mkdir(staging, 0755); err != nil {
		return Manifest{}, fmt.Errorf("create staging directory: %w", err)
	}
	for name, b := range blobs {
		if err := writeFileSync(filepath.Join(staging, name), b); err != nil {
			_ = os.RemoveAll(staging)
			return Manifest{}, fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := os.Rename(staging, filepath.Join(s.dir, version)); err != nil {
		_ = os.RemoveAll(staging)
		return Manifest{}, fmt.Errorf("publish version directory: %w", err)
	}

	mf := newManifest(version, m, blobs)
	body, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("encode manifest: %w", err)
	}
	tmp := filepath.Join(s.dir, ManifestName+".tmp-"+version)
	if err := writeFileSync(tmp, body); err != nil {
		_ = os.Remove(tmp)
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, ManifestName)); err != nil {
		_ = os.Remove(tmp)
		return Manifest{}, fmt.Errorf("publish manifest: %w", err)
	}

	s.logger.InfoContext(ctx, "Model saved",
		"store", "file",
		"version", version,
		"num_labels", mf.NumLabels,
		"dir", s.dir)

	s.prune(ctx, version, previous.Version)
	return mf, nil
}

func (s *FileStore) Load(ctx context.Context) (*Snapshot, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	mf, err := s.readManifest()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.DebugContext(ctx, "No model saved yet", "dir", s.dir)
		} else {
			s.logger.WarnContext(ctx, "Model manifest unreadable, treating model as absent", "error", err, "dir", s.dir)
		}
		return nil, false
	}

	blobs := make(map[string][]byte, len(artifactNames))
	for _, name := range artifactNames {
		b, err := os.ReadFile(filepath.Join(s.dir, mf.Version, name))
		if err != nil {
			s.logger.WarnContext(ctx, "Model artifact unreadable, treating model as absent",
				"error", err, "artifact", name, "version", mf.Version)
			return nil, false
		}
		blobs[name] = b
	}

	m, err := decodeArtifacts(mf, blobs)
	if err != nil {
		s.logger.WarnContext(ctx, "Model artifacts inconsistent, treating model as absent",
			"error", err, "version", mf.Version)
		return nil, false
	}
	return &Snapshot{Manifest: mf, Model: m}, true
}

func (s *FileStore) readManifest() (Manifest, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, ManifestName))
	if err != nil {
		return Manifest{}, err
	}
	return decodeManifest(b)
}

// prune removes version directories other than current and previous, plus
// abandoned staging directories.
func (s *FileStore) prune(ctx context.Context, current, previous string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to list model directory for pruning", "error", err)
		return
	}
	cutoff := time.Now().Add(-pruneGrace)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name == current || name == previous {
			continue
		}
		if !strings.HasPrefix(name, stagingPrefix) {
			if _, err := uuid.Parse(name); err != nil {
				continue
			}
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			s.logger.WarnContext(ctx, "Failed to prune model version", "error", err, "version", name)
		}
	}
}

func writeFileSync(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
