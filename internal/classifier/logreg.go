package classifier

import (
	"errors"
	"math"
)

// LogRegConfig controls softmax regression fitting.
type LogRegConfig struct {
	// C is the inverse L2 regularization strength.
	C            float64
	MaxIter      int
	LearningRate float64
	// Tol stops fitting once every gradient component is below it.
	Tol float64
}

func DefaultLogRegConfig() LogRegConfig {
	return LogRegConfig{
		C:            1.0,
		MaxIter:      300,
		LearningRate: 1.0,
		Tol:          1e-4,
	}
}

// LogisticRegression is a multinomial (softmax) linear classifier.
type LogisticRegression struct {
	Weights    [][]float64 `json:"weights"`
	Intercepts []float64   `json:"intercepts"`
	Iterations int         `json:"iterations"`
}

// FitLogisticRegression fits weights by full-batch gradient descent from a
// zero start, so the result depends only on the inputs.
func FitLogisticRegression(x []SparseVector, y []int, numClasses, numFeatures int, cfg LogRegConfig) (*LogisticRegression, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("logreg: samples and labels must be non-empty and aligned")
	}
	if numClasses < 2 {
		return nil, errors.New("logreg: need at least two classes")
	}
	if cfg.C <= 0 {
		cfg.C = 1.0
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 300
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 1.0
	}

	m := &LogisticRegression{
		Weights:    make([][]float64, numClasses),
		Intercepts: make([]float64, numClasses),
	}
	gradW := make([][]float64, numClasses)
	for k := range m.Weights {
		m.Weights[k] = make([]float64, numFeatures)
		gradW[k] = make([]float64, numFeatures)
	}
	gradB := make([]float64, numClasses)

	n := float64(len(x))
	reg := 1.0 / (cfg.C * n)
	proba := make([]float64, numClasses)

	for iter := 1; iter <= cfg.MaxIter; iter++ {
		for k := range gradW {
			clear(gradW[k])
		}
		clear(gradB)

		for i, xi := range x {
			m.probaInto(xi, proba)
			for k := 0; k < numClasses; k++ {
				diff := proba[k]
				if y[i] == k {
					diff -= 1
				}
				diff /= n
				gradB[k] += diff
				for j, idx := range xi.Indices {
					gradW[k][idx] += diff * xi.Values[j]
				}
			}
		}

		maxGrad := 0.0
		for k := 0; k < numClasses; k++ {
			for f := 0; f < numFeatures; f++ {
				g := gradW[k][f] + reg*m.Weights[k][f]
				gradW[k][f] = g
				if a := math.Abs(g); a > maxGrad {
					maxGrad = a
				}
			}
			if a := math.Abs(gradB[k]); a > maxGrad {
				maxGrad = a
			}
		}

		m.Iterations = iter
		if maxGrad < cfg.Tol {
			break
		}

		for k := 0; k < numClasses; k++ {
			w := m.Weights[k]
			for f, g := range gradW[k] {
				w[f] -= cfg.LearningRate * g
			}
			m.Intercepts[k] -= cfg.LearningRate * gradB[k]
		}
	}
	return m, nil
}

// NumClasses is the number of output columns.
func (m *LogisticRegression) NumClasses() int {
	return len(m.Intercepts)
}

// PredictProba returns one probability per class, summing to 1.
func (m *LogisticRegression) PredictProba(x SparseVector) []float64 {
	out := make([]float64, len(m.Intercepts))
	m.probaInto(x, out)
	return out
}

func (m *LogisticRegression) probaInto(x SparseVector, out []float64) {
	maxScore := math.Inf(-1)
	for k := range m.Intercepts {
		score := m.Intercepts[k]
		w := m.Weights[k]
		for j, idx := range x.Indices {
			score += w[idx] * x.Values[j]
		}
		out[k] = score
		if score > maxScore {
			maxScore = score
		}
	}
	var sum float64
	for k := range out {
		out[k] = math.Exp(out[k] - maxScore)
		sum += out[k]
	}
	for k := range out {
		out[k] /= sum
	}
}

func (m *LogisticRegression) validate(numFeatures int) error {
	if len(m.Weights) != len(m.Intercepts) {
		return errors.New("logreg: weights and intercepts sizes differ")
	}
	for _, w := range m.Weights {
		if len(w) != numFeatures {
			return errors.New("logreg: weight row does not match feature count")
		}
	}
	return nil
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
