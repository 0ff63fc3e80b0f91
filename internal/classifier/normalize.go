// Package classifier implements transaction category classification: a
// keyword fallback, a TF-IDF vectorizer and a softmax regression model, plus
// the training pipeline that produces them.
package classifier

import "strings"

// CanonicalText joins description and merchant into the single string every
// classifier stage consumes. Training and prediction must both go through it.
func CanonicalText(description, merchant string) string {
	return strings.TrimSpace(strings.TrimSpace(description) + " " + strings.TrimSpace(merchant))
}
