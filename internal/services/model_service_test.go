package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/classifier"
	"spendwise/internal/core"
	"spendwise/internal/memory"
	"spendwise/internal/modelstore"
)

func strPtr(s string) *string { return &s }

type fixture struct {
	repo      *memory.Store
	store     *modelstore.FileStore
	svc       *ModelService
	transport core.Category
	food      core.Category
}

func newFixture(t *testing.T, opts ...ModelServiceOption) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := memory.New([]string{"transport", "food"})
	store, err := modelstore.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	transport, err := repo.FindCategoryByName(ctx, "transport")
	require.NoError(t, err)
	food, err := repo.FindCategoryByName(ctx, "food")
	require.NoError(t, err)

	return &fixture{
		repo:      repo,
		store:     store,
		svc:       NewModelService(store, repo, repo, opts...),
		transport: transport,
		food:      food,
	}
}

var trainingRows = []struct{ desc, merchant, label string }{
	{"Grab ride home", "Grab", "transport"},
	{"Grab to office", "Grab", "transport"},
	{"Gojek ride", "Gojek", "transport"},
	{"Taxi airport", "Bluebird", "transport"},
	{"Grab airport", "Grab", "transport"},
	{"Gojek mall", "Gojek", "transport"},
	{"Coffee latte", "Starbucks", "food"},
	{"Lunch rice", "Warteg", "food"},
	{"Fried chicken", "KFC", "food"},
	{"Latte again", "Starbucks", "food"},
	{"Dinner noodles", "Bakmi", "food"},
	{"Coffee beans", "Starbucks", "food"},
}

func (f *fixture) seed(t *testing.T, n int) {
	t.Helper()
	for _, row := range trainingRows[:n] {
		id := f.food.ID
		if row.label == "transport" {
			id = f.transport.ID
		}
		_, err := f.repo.CreateTransaction(context.Background(), core.Transaction{
			Date:        core.NewDate(2025, 1, 1),
			Description: row.desc,
			Merchant:    row.merchant,
			CategoryID:  strPtr(id),
		})
		require.NoError(t, err)
	}
}

func TestPredict_EmptyBatch(t *testing.T) {
	f := newFixture(t)
	preds, err := f.svc.Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestPredict_RuleFallback(t *testing.T) {
	f := newFixture(t)
	preds, err := f.svc.Predict(context.Background(), []core.ClassificationInput{
		{Description: "Grab ride home"},
		{Description: "  ", Merchant: strPtr(" ")},
		{Description: "PLN token top up"},
		{Description: "something unrelated"},
	})
	require.NoError(t, err)
	require.Len(t, preds, 4)

	require.NotNil(t, preds[0].CategoryID)
	assert.Equal(t, f.transport.ID, *preds[0].CategoryID)
	assert.Equal(t, "Transport", *preds[0].CategoryName)
	assert.InDelta(t, 0.65, *preds[0].Confidence, 1e-9)

	assert.True(t, preds[1].IsEmpty(), "blank input yields no suggestion")

	// a rule matched but the directory has no such category
	assert.Nil(t, preds[2].CategoryID)
	require.NotNil(t, preds[2].CategoryName)
	assert.Equal(t, "Bills", *preds[2].CategoryName)

	assert.True(t, preds[3].IsEmpty())
}

func TestRetrain_InsufficientData(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 9)

	_, err := f.svc.Retrain(context.Background())
	var insufficient *classifier.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 9, insufficient.Rows)

	assert.Equal(t, core.ModelMetrics{}, f.svc.Metrics(context.Background()))
}

func TestRetrain_ThenPredictAndMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 12)

	res, err := f.svc.Retrain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, res.TrainedOnRows)
	assert.ElementsMatch(t, []string{f.transport.ID, f.food.ID}, res.Classes)
	if res.Accuracy != nil {
		assert.GreaterOrEqual(t, *res.Accuracy, 0.0)
		assert.LessOrEqual(t, *res.Accuracy, 1.0)
	}

	assert.Equal(t, core.ModelMetrics{HasModel: true, NumLabels: 2}, f.svc.Metrics(ctx))

	preds, err := f.svc.Predict(ctx, []core.ClassificationInput{
		{Description: "Grab ride", Merchant: strPtr("Grab")},
		{Description: "Coffee", Merchant: strPtr("Starbucks")},
		{Description: ""},
	})
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, f.transport.ID, *preds[0].CategoryID)
	assert.Equal(t, "transport", *preds[0].CategoryName)
	assert.Equal(t, f.food.ID, *preds[1].CategoryID)
	for _, p := range preds {
		require.NotNil(t, p.Confidence)
		assert.True(t, *p.Confidence >= 0 && *p.Confidence <= 1)
	}
}

func TestPredict_StaleCategoryID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 12)
	_, err := f.svc.Retrain(ctx)
	require.NoError(t, err)

	_, err = f.repo.DeleteCategory(ctx, f.transport.ID, true)
	require.NoError(t, err)

	preds, err := f.svc.Predict(ctx, []core.ClassificationInput{{Description: "Grab ride", Merchant: strPtr("Grab")}})
	require.NoError(t, err)
	assert.Equal(t, f.transport.ID, *preds[0].CategoryID)
	assert.Equal(t, "(deleted:"+f.transport.ID+")", *preds[0].CategoryName)
}

func TestModelService_PicksUpModelSavedElsewhere(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 12)

	// no model yet; absence must not be cached
	assert.False(t, f.svc.Metrics(ctx).HasModel)

	other := NewModelService(f.store, f.repo, f.repo)
	_, err := other.Retrain(ctx)
	require.NoError(t, err)

	assert.True(t, f.svc.Metrics(ctx).HasModel)
}

type countingStore struct {
	modelstore.Store
	loads atomic.Int32
}

func (c *countingStore) Load(ctx context.Context) (*modelstore.Snapshot, bool) {
	c.loads.Add(1)
	return c.Store.Load(ctx)
}

func TestModelService_CachesSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 12)
	_, err := f.svc.Retrain(ctx)
	require.NoError(t, err)

	counting := &countingStore{Store: f.store}
	svc := NewModelService(counting, f.repo, f.repo, WithCacheTTL(time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Predict(ctx, []core.ClassificationInput{{Description: "Grab"}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	svc.Metrics(ctx)

	assert.LessOrEqual(t, counting.loads.Load(), int32(8))
	before := counting.loads.Load()
	svc.Metrics(ctx)
	assert.Equal(t, before, counting.loads.Load(), "cached snapshot reused")

	uncached := NewModelService(counting, f.repo, f.repo, WithCacheTTL(0))
	uncached.Metrics(ctx)
	uncached.Metrics(ctx)
	assert.Equal(t, before+2, counting.loads.Load())
}

// gatedStore holds the first Load after reading the store until release is
// closed, giving up early if the load's context ends.
type gatedStore struct {
	modelstore.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore(inner modelstore.Store) *gatedStore {
	return &gatedStore{Store: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) Load(ctx context.Context) (*modelstore.Snapshot, bool) {
	snap, ok := g.Store.Load(ctx)
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, false
	}
	return snap, ok
}

func TestModelService_CanceledCallerDoesNotHideModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 12)
	_, err := f.svc.Retrain(ctx)
	require.NoError(t, err)

	gated := newGatedStore(f.store)
	svc := NewModelService(gated, f.repo, f.repo)

	leaderCtx, cancelLeader := context.WithCancel(ctx)
	leader := make(chan core.ModelMetrics, 1)
	go func() { leader <- svc.Metrics(leaderCtx) }()
	<-gated.entered

	follower := make(chan core.ModelMetrics, 1)
	go func() { follower <- svc.Metrics(ctx) }()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	time.Sleep(10 * time.Millisecond)
	close(gated.release)

	assert.Equal(t, core.ModelMetrics{HasModel: true, NumLabels: 2}, <-follower)
	<-leader
	assert.True(t, svc.Metrics(ctx).HasModel)
}

func TestModelService_RetrainWinsOverInFlightLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 12)
	first, err := f.svc.Retrain(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first.Classes)

	gated := newGatedStore(f.store)
	svc := NewModelService(gated, f.repo, f.repo, WithCacheTTL(time.Minute))

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Metrics(ctx)
	}()
	<-gated.entered

	_, err = svc.Retrain(ctx)
	require.NoError(t, err)
	latest, ok := f.store.Load(ctx)
	require.True(t, ok)

	close(gated.release)
	<-done

	snap := svc.snapshot(ctx)
	require.NotNil(t, snap)
	assert.Equal(t, latest.Manifest.Version, snap.Manifest.Version)
}

type failingDirectory struct{}

func (failingDirectory) ListCategories(context.Context) ([]core.Category, error) {
	return nil, errors.New("directory offline")
}

func TestPredict_DirectoryFailurePropagates(t *testing.T) {
	f := newFixture(t)
	svc := NewModelService(f.store, f.repo, failingDirectory{})
	_, err := svc.Predict(context.Background(), []core.ClassificationInput{{Description: "grab"}})
	assert.ErrorContains(t, err, "directory offline")
}

func TestAnnotateUnlabeled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	grab, err := f.repo.CreateTransaction(ctx, core.Transaction{Date: core.NewDate(2025, 1, 2), Description: "Grab ride"})
	require.NoError(t, err)
	other, err := f.repo.CreateTransaction(ctx, core.Transaction{Date: core.NewDate(2025, 1, 2), Description: "mystery"})
	require.NoError(t, err)

	n, err := f.svc.AnnotateUnlabeled(ctx, f.repo, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.repo.GetTransaction(ctx, grab.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PredictedCategory)
	assert.Equal(t, f.transport.ID, *got.PredictedCategory)
	assert.InDelta(t, 0.65, *got.PredictedProba, 1e-9)
	assert.False(t, got.IsLabeled())

	untouched, err := f.repo.GetTransaction(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.PredictedCategory)
}
