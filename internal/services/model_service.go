package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"spendwise/internal/cache"
	"spendwise/internal/classifier"
	"spendwise/internal/core"
	"spendwise/internal/modelstore"
	"spendwise/internal/ports"
)

const (
	snapshotKey     = "current"
	DefaultCacheTTL = 30 * time.Second

	// loadTimeout bounds a shared store load, which outlives any one caller.
	loadTimeout = 30 * time.Second
)

// ModelService predicts categories with the persisted model, falling back to
// keyword rules while no model exists, and retrains that model on demand.
type ModelService struct {
	store      modelstore.Store
	labeled    ports.LabeledTransactionFinder
	categories ports.CategoryDirectory
	rules      *classifier.RuleClassifier
	trainCfg   classifier.TrainConfig
	logger     *slog.Logger

	cacheTTL  time.Duration
	snapshots *cache.LRUCache[*modelstore.Snapshot]
	loads     singleflight.Group
	retrainMu sync.Mutex

	// generation counts models published by Retrain; cacheMu orders cache
	// writes against it.
	cacheMu    sync.Mutex
	generation uint64
}

type ModelServiceOption func(*ModelService)

// WithCacheTTL sets how long a loaded model is reused before the store is
// consulted again. Zero disables caching.
func WithCacheTTL(ttl time.Duration) ModelServiceOption {
	return func(s *ModelService) { s.cacheTTL = ttl }
}

func WithTrainConfig(cfg classifier.TrainConfig) ModelServiceOption {
	return func(s *ModelService) { s.trainCfg = cfg }
}

func WithRules(rules *classifier.RuleClassifier) ModelServiceOption {
	return func(s *ModelService) { s.rules = rules }
}

func WithLogger(logger *slog.Logger) ModelServiceOption {
	return func(s *ModelService) { s.logger = logger }
}

func NewModelService(store modelstore.Store, labeled ports.LabeledTransactionFinder, categories ports.CategoryDirectory, opts ...ModelServiceOption) *ModelService {
	s := &ModelService{
		store:      store,
		labeled:    labeled,
		categories: categories,
		rules:      classifier.DefaultRuleClassifier(),
		trainCfg:   classifier.DefaultTrainConfig(),
		logger:     slog.Default(),
		cacheTTL:   DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheTTL > 0 {
		s.snapshots = cache.NewLRUCache[*modelstore.Snapshot](1, s.cacheTTL)
	}
	return s
}

// SnapshotCache exposes the snapshot cache for registration with a cache.Manager.
// It is nil when caching is disabled.
func (s *ModelService) SnapshotCache() cache.Cleaner {
	if s.snapshots == nil {
		return nil
	}
	return s.snapshots
}

// snapshot returns the current model, or nil when none is usable. Absence is
// not cached so a model saved elsewhere is picked up on the next call.
func (s *ModelService) snapshot(ctx context.Context) *modelstore.Snapshot {
	if s.snapshots != nil {
		if snap, ok := s.snapshots.Get(snapshotKey); ok {
			return snap
		}
	}

	v, _, _ := s.loads.Do(snapshotKey, func() (any, error) {
		gen := s.currentGeneration()
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		snap, ok := s.store.Load(loadCtx)
		if !ok {
			return (*modelstore.Snapshot)(nil), nil
		}
		if !s.cacheSnapshot(snap, gen) {
			s.logger.DebugContext(ctx, "Discarded model loaded during retrain", "version", snap.Manifest.Version)
			return snap, nil
		}
		s.logger.DebugContext(ctx, "Model loaded", "version", snap.Manifest.Version)
		return snap, nil
	})
	return v.(*modelstore.Snapshot)
}

func (s *ModelService) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// cacheSnapshot stores a loaded snapshot unless a retrain published a newer
// model after the load began.
func (s *ModelService) cacheSnapshot(snap *modelstore.Snapshot, gen uint64) bool {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.generation {
		return false
	}
	if s.snapshots != nil {
		s.snapshots.Set(snapshotKey, snap)
	}
	return true
}

func (s *ModelService) publish(snap *modelstore.Snapshot) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.snapshots != nil {
		s.snapshots.Set(snapshotKey, snap)
	}
}

// Predict classifies each input, preserving order. One model snapshot serves
// the whole batch.
func (s *ModelService) Predict(ctx context.Context, inputs []core.ClassificationInput) ([]core.Prediction, error) {
	out := make([]core.Prediction, len(inputs))
	if len(inputs) == 0 {
		return out, nil
	}

	texts := lo.Map(inputs, func(in core.ClassificationInput, _ int) string {
		return classifier.CanonicalText(in.Description, in.MerchantOrEmpty())
	})

	snap := s.snapshot(ctx)
	if snap == nil {
		return s.predictWithRules(ctx, texts, out)
	}

	cats, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	names := lo.SliceToMap(cats, func(c core.Category) (string, string) { return c.ID, c.Name })

	for i, scored := range snap.Model.PredictAll(texts) {
		id, proba := scored.Label, scored.Probability
		name, ok := names[id]
		if !ok {
			name = "(deleted:" + id + ")"
		}
		out[i] = core.Prediction{CategoryID: &id, CategoryName: &name, Confidence: &proba}
	}
	return out, nil
}

func (s *ModelService) predictWithRules(ctx context.Context, texts []string, out []core.Prediction) ([]core.Prediction, error) {
	var cats []core.Category
	loaded := false
	for i, text := range texts {
		match, ok := s.rules.Classify(text)
		if !ok {
			continue
		}
		if !loaded {
			var err error
			if cats, err = s.categories.ListCategories(ctx); err != nil {
				return nil, fmt.Errorf("list categories: %w", err)
			}
			loaded = true
		}
		name, conf := match.Category, match.Confidence
		p := core.Prediction{CategoryName: &name, Confidence: &conf}
		if c, found := lo.Find(cats, func(c core.Category) bool { return strings.EqualFold(c.Name, name) }); found {
			id := c.ID
			p.CategoryID = &id
		}
		out[i] = p
	}
	return out, nil
}

// Retrain fits a new model on every labeled transaction, persists it and
// makes it current. Concurrent calls are serialized.
func (s *ModelService) Retrain(ctx context.Context) (core.RetrainResult, error) {
	s.retrainMu.Lock()
	defer s.retrainMu.Unlock()

	start := time.Now()
	labeled, err := s.labeled.FindLabeled(ctx)
	if err != nil {
		return core.RetrainResult{}, fmt.Errorf("fetch labeled transactions: %w", err)
	}
	examples := lo.FilterMap(labeled, func(t core.Transaction, _ int) (classifier.Example, bool) {
		if !t.IsLabeled() {
			return classifier.Example{}, false
		}
		return classifier.Example{
			Text:  classifier.CanonicalText(t.Description, t.Merchant),
			Label: *t.CategoryID,
		}, true
	})

	model, report, err := classifier.Train(examples, s.trainCfg)
	if err != nil {
		return core.RetrainResult{}, fmt.Errorf("train model: %w", err)
	}

	mf, err := s.store.Save(ctx, model)
	if err != nil {
		return core.RetrainResult{}, fmt.Errorf("save model: %w", err)
	}
	s.publish(&modelstore.Snapshot{Manifest: mf, Model: model})

	attrs := []any{
		"version", mf.Version,
		"rows", report.Rows,
		"classes", len(report.Classes),
		"duration", time.Since(start),
	}
	if report.Accuracy != nil {
		attrs = append(attrs, "accuracy", *report.Accuracy)
	}
	s.logger.InfoContext(ctx, "Model retrained", attrs...)

	return core.RetrainResult{
		TrainedOnRows: report.Rows,
		Classes:       report.Classes,
		Accuracy:      report.Accuracy,
	}, nil
}

// Metrics describes the current model. It never fails.
func (s *ModelService) Metrics(ctx context.Context) core.ModelMetrics {
	snap := s.snapshot(ctx)
	if snap == nil {
		return core.ModelMetrics{}
	}
	return core.ModelMetrics{HasModel: true, NumLabels: len(snap.Model.Labels)}
}

// AnnotateUnlabeled stores the current suggestion on up to limit of the newest
// unlabeled transactions. The suggested category id is stored, or the rule
// name when no directory entry matches. It returns how many were updated.
func (s *ModelService) AnnotateUnlabeled(ctx context.Context, txs ports.TransactionStore, limit int) (int, error) {
	pending, err := txs.ListUnlabeled(ctx, "", limit)
	if err != nil {
		return 0, fmt.Errorf("list unlabeled transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	inputs := lo.Map(pending, func(t core.Transaction, _ int) core.ClassificationInput {
		merchant := t.Merchant
		return core.ClassificationInput{Description: t.Description, Merchant: &merchant}
	})
	preds, err := s.Predict(ctx, inputs)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i, p := range preds {
		if p.IsEmpty() {
			continue
		}
		suggestion := p.CategoryName
		if p.CategoryID != nil {
			suggestion = p.CategoryID
		}
		_, err := txs.UpdateTransaction(ctx, pending[i].ID, core.TransactionUpdate{
			PredictedCategory: suggestion,
			PredictedProba:    p.Confidence,
		})
		if err != nil {
			return updated, fmt.Errorf("annotate transaction %s: %w", pending[i].ID, err)
		}
		updated++
	}
	return updated, nil
}
