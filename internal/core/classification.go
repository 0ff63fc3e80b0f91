package core

// ClassificationInput is one item of a prediction request. Amount is accepted
// but not used by the classifier.
type ClassificationInput struct {
	Description string   `json:"description"`
	Amount      *float64 `json:"amount,omitempty"`
	Merchant    *string  `json:"merchant,omitempty"`
}

// MerchantOrEmpty returns the merchant, or "" when absent.
func (in ClassificationInput) MerchantOrEmpty() string {
	if in.Merchant == nil {
		return ""
	}
	return *in.Merchant
}

// Prediction is the classifier's suggestion for one input. All fields are nil
// when no suggestion could be made.
type Prediction struct {
	CategoryID   *string  `json:"predicted_category_id"`
	CategoryName *string  `json:"predicted_category_name"`
	Confidence   *float64 `json:"confidence"`
}

// IsEmpty reports whether the prediction carries no suggestion.
func (p Prediction) IsEmpty() bool {
	return p.CategoryID == nil && p.CategoryName == nil && p.Confidence == nil
}

// RetrainResult summarizes a completed training run.
type RetrainResult struct {
	TrainedOnRows int      `json:"trained_on_rows"`
	Classes       []string `json:"classes"`
	Accuracy      *float64 `json:"accuracy"`
}

// ModelMetrics describes the currently persisted model.
type ModelMetrics struct {
	HasModel  bool `json:"has_model"`
	NumLabels int  `json:"num_labels"`
}
