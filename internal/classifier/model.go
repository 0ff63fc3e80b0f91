package classifier

import (
	"errors"
	"fmt"
)

// Model bundles the fitted vectorizer, the classifier and the label ordering.
// Labels[i] is the category id for probability column i. The three parts are
// only meaningful together.
type Model struct {
	Vectorizer *Vectorizer
	Classifier *LogisticRegression
	Labels     []string
}

// Scored is a single prediction.
type Scored struct {
	Label       string
	Probability float64
}

// Validate checks that the three parts belong to each other.
func (m *Model) Validate() error {
	if m == nil || m.Vectorizer == nil || m.Classifier == nil {
		return errors.New("model: missing component")
	}
	if len(m.Labels) < 2 {
		return fmt.Errorf("model: expected at least 2 labels, got %d", len(m.Labels))
	}
	if err := m.Vectorizer.validate(); err != nil {
		return err
	}
	if err := m.Classifier.validate(m.Vectorizer.NumFeatures()); err != nil {
		return err
	}
	if m.Classifier.NumClasses() != len(m.Labels) {
		return fmt.Errorf("model: %d labels for %d classifier classes", len(m.Labels), m.Classifier.NumClasses())
	}
	return nil
}

// Predict scores canonical text and returns the most probable label.
func (m *Model) Predict(text string) Scored {
	proba := m.Classifier.PredictProba(m.Vectorizer.Transform(text))
	best := argmax(proba)
	return Scored{Label: m.Labels[best], Probability: proba[best]}
}

// PredictAll scores a batch of canonical texts, preserving order.
func (m *Model) PredictAll(texts []string) []Scored {
	out := make([]Scored, len(texts))
	for i, text := range texts {
		out[i] = m.Predict(text)
	}
	return out
}
