// Package modelstore persists trained classifier models.
//
// A model is three artifacts (vectorizer, classifier, label ordering) plus a
// manifest naming the version they belong to. Stores publish the manifest
// last, so readers either see a complete previous model or a complete new
// one. Loading never fails: anything missing, corrupt or inconsistent is
// reported as "no model".
package modelstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spendwise/internal/classifier"
)

// Artifact names, shared by every store implementation.
const (
	ArtifactVectorizer = "vectorizer.json"
	ArtifactClassifier = "classifier.json"
	ArtifactLabels     = "labels.json"
	ManifestName       = "manifest.json"
)

var artifactNames = []string{ArtifactVectorizer, ArtifactClassifier, ArtifactLabels}

// Store saves and loads the current model.
type Store interface {
	// Save persists m as the new current model.
	Save(ctx context.Context, m *classifier.Model) (Manifest, error)
	// Load returns the current model, or false when none is usable.
	Load(ctx context.Context) (*Snapshot, bool)
}

// Manifest identifies one saved model version.
type Manifest struct {
	Version   string            `json:"version"`
	SavedAt   time.Time         `json:"saved_at"`
	NumLabels int               `json:"num_labels"`
	Checksums map[string]string `json:"checksums"`
}

// Snapshot is an immutable, loaded model with its manifest.
type Snapshot struct {
	Manifest Manifest
	Model    *classifier.Model
}

func encodeArtifacts(m *classifier.Model) (map[string][]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to save invalid model: %w", err)
	}
	vec, err := json.Marshal(m.Vectorizer)
	if err != nil {
		return nil, fmt.Errorf("encode vectorizer: %w", err)
	}
	clf, err := json.Marshal(m.Classifier)
	if err != nil {
		return nil, fmt.Errorf("encode classifier: %w", err)
	}
	labels, err := json.Marshal(m.Labels)
	if err != nil {
		return nil, fmt.Errorf("encode labels: %w", err)
	}
	return map[string][]byte{
		ArtifactVectorizer: vec,
		ArtifactClassifier: clf,
		ArtifactLabels:     labels,
	}, nil
}

func newManifest(version string, m *classifier.Model, blobs map[string][]byte) Manifest {
	sums := make(map[string]string, len(blobs))
	for name, b := range blobs {
		sums[name] = checksum(b)
	}
	return Manifest{
		Version:   version,
		SavedAt:   time.Now().UTC(),
		NumLabels: len(m.Labels),
		Checksums: sums,
	}
}

func decodeManifest(b []byte) (Manifest, error) {
	var mf Manifest
	if err := json.Unmarshal(b, &mf); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if _, err := uuid.Parse(mf.Version); err != nil {
		return Manifest{}, fmt.Errorf("manifest version %q: %w", mf.Version, err)
	}
	return mf, nil
}

// decodeArtifacts rebuilds a model and checks it against the manifest.
func decodeArtifacts(mf Manifest, blobs map[string][]byte) (*classifier.Model, error) {
	for _, name := range artifactNames {
		b, ok := blobs[name]
		if !ok {
			return nil, fmt.Errorf("missing artifact %s", name)
		}
		if want, ok := mf.Checksums[name]; !ok || want != checksum(b) {
			return nil, fmt.Errorf("checksum mismatch for %s", name)
		}
	}

	m := &classifier.Model{}
	if err := json.Unmarshal(blobs[ArtifactVectorizer], &m.Vectorizer); err != nil {
		return nil, fmt.Errorf("decode vectorizer: %w", err)
	}
	if err := json.Unmarshal(blobs[ArtifactClassifier], &m.Classifier); err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}
	if err := json.Unmarshal(blobs[ArtifactLabels], &m.Labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(m.Labels) != mf.NumLabels {
		return nil, fmt.Errorf("manifest declares %d labels, artifacts have %d", mf.NumLabels, len(m.Labels))
	}
	return m, nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
