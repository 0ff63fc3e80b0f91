package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/classifier"
	"spendwise/internal/core"
)

type fakeTrainer struct {
	err      error
	hasModel bool
	calls    int
}

func (f *fakeTrainer) Retrain(context.Context) (core.RetrainResult, error) {
	f.calls++
	if f.err != nil {
		return core.RetrainResult{}, f.err
	}
	f.hasModel = true
	return core.RetrainResult{TrainedOnRows: 12, Classes: []string{"a", "b"}}, nil
}

func (f *fakeTrainer) Metrics(context.Context) core.ModelMetrics {
	if !f.hasModel {
		return core.ModelMetrics{}
	}
	return core.ModelMetrics{HasModel: true, NumLabels: 2}
}

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newWorker(tr Trainer) (*RetrainWorker, *stepClock) {
	clock := &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := NewRetrainWorker(tr, nil)
	w.now = clock.now
	return w, clock
}

func request(at time.Time) *amqp.RetrainRequestMessage {
	return &amqp.RetrainRequestMessage{ID: "req", Reason: "test", Timestamp: at}
}

func TestHandleRetrainRequest(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "success"},
		{name: "insufficient data is acknowledged", err: fmt.Errorf("train model: %w", &classifier.InsufficientDataError{Rows: 3, MinRows: 10})},
		{name: "empty vocabulary is acknowledged", err: fmt.Errorf("train model: %w", classifier.ErrEmptyVocabulary)},
		{name: "other failures are retried", err: errors.New("disk full"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTrainer{err: tt.err}
			w, clock := newWorker(tr)

			err := w.HandleRetrainRequest(context.Background(), request(clock.t))
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleRetrainRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tr.calls != 1 {
				t.Errorf("Retrain called %d times, want 1", tr.calls)
			}
		})
	}
}

func TestHandleRetrainRequest_SkipsCoveredRequests(t *testing.T) {
	tr := &fakeTrainer{}
	w, clock := newWorker(tr)
	ctx := context.Background()

	stale := request(clock.t)
	if err := w.HandleRetrainRequest(ctx, request(clock.t)); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleRetrainRequest(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if tr.calls != 1 {
		t.Errorf("Retrain called %d times, want 1", tr.calls)
	}

	if err := w.HandleRetrainRequest(ctx, request(clock.t.Add(time.Minute))); err != nil {
		t.Fatal(err)
	}
	if tr.calls != 2 {
		t.Errorf("newer request should retrain, calls = %d", tr.calls)
	}
}

func TestStartupCheck(t *testing.T) {
	tr := &fakeTrainer{}
	w, _ := newWorker(tr)
	ctx := context.Background()

	if err := w.StartupCheck(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.StartupCheck(ctx); err != nil {
		t.Fatal(err)
	}
	if tr.calls != 1 {
		t.Errorf("Retrain called %d times, want 1", tr.calls)
	}
}
