package classifier

import (
	"sort"

	"github.com/samber/lo"
)

// Example is one labeled canonical text.
type Example struct {
	Text  string
	Label string
}

// TrainConfig controls the training pipeline.
type TrainConfig struct {
	MaxFeatures int
	TestSize    float64
	Seed        int64
	LogReg      LogRegConfig
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		MaxFeatures: DefaultMaxFeatures,
		TestSize:    0.2,
		Seed:        42,
		LogReg:      DefaultLogRegConfig(),
	}
}

// TrainReport summarizes a training run. Accuracy is measured on the held-out
// partition and is nil when that partition is empty.
type TrainReport struct {
	Rows     int
	Classes  []string
	Accuracy *float64
}

// Train fits a new model on examples. The vectorizer sees the whole corpus;
// the classifier is fitted on a stratified train partition and scored on the
// rest.
func Train(examples []Example, cfg TrainConfig) (*Model, TrainReport, error) {
	if len(examples) < MinTrainingRows {
		return nil, TrainReport{}, &InsufficientDataError{Rows: len(examples), MinRows: MinTrainingRows}
	}

	counts := lo.CountValuesBy(examples, func(e Example) string { return e.Label })
	labels := lo.Keys(counts)
	sort.Strings(labels)
	if len(labels) < 2 {
		return nil, TrainReport{}, &InsufficientDataError{Rows: len(examples), MinRows: MinTrainingRows, Classes: len(labels)}
	}
	for _, label := range labels {
		if counts[label] < 2 {
			return nil, TrainReport{}, &InsufficientDataError{
				Rows:       len(examples),
				MinRows:    MinTrainingRows,
				Classes:    len(labels),
				Class:      label,
				ClassCount: counts[label],
			}
		}
	}

	labelIndex := make(map[string]int, len(labels))
	for i, label := range labels {
		labelIndex[label] = i
	}
	texts := lo.Map(examples, func(e Example, _ int) string { return e.Text })
	y := lo.Map(examples, func(e Example, _ int) int { return labelIndex[e.Label] })

	vec := NewVectorizer(cfg.MaxFeatures)
	if err := vec.Fit(texts); err != nil {
		return nil, TrainReport{}, err
	}
	x := vec.TransformAll(texts)

	trainIdx, testIdx := stratifiedSplit(y, len(labels), cfg.TestSize, cfg.Seed)
	clf, err := FitLogisticRegression(
		lo.Map(trainIdx, func(i int, _ int) SparseVector { return x[i] }),
		lo.Map(trainIdx, func(i int, _ int) int { return y[i] }),
		len(labels), vec.NumFeatures(), cfg.LogReg,
	)
	if err != nil {
		return nil, TrainReport{}, err
	}

	model := &Model{Vectorizer: vec, Classifier: clf, Labels: labels}
	report := TrainReport{Rows: len(examples), Classes: labels}
	if len(testIdx) > 0 {
		correct := lo.CountBy(testIdx, func(i int) bool {
			return argmax(clf.PredictProba(x[i])) == y[i]
		})
		acc := float64(correct) / float64(len(testIdx))
		report.Accuracy = &acc
	}
	return model, report, nil
}
