package classifier

import "fmt"

// MinTrainingRows is the smallest labeled set a model is trained on.
const MinTrainingRows = 10

// InsufficientDataError reports that the labeled set cannot support training.
type InsufficientDataError struct {
	Rows    int
	MinRows int
	Classes int
	// Class is set when a single category has too few examples to split.
	Class      string
	ClassCount int
}

func (e *InsufficientDataError) Error() string {
	switch {
	case e.Rows < e.MinRows:
		return fmt.Sprintf("need at least %d labeled transactions to train, have %d", e.MinRows, e.Rows)
	case e.Class != "":
		return fmt.Sprintf("category %q has %d labeled transaction(s), need at least 2 per category", e.Class, e.ClassCount)
	default:
		return fmt.Sprintf("need at least 2 distinct categories to train, have %d", e.Classes)
	}
}
