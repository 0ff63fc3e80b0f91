package classifier

import (
	"fmt"
	"strings"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Rule maps a keyword set to a category name with a fixed confidence.
type Rule struct {
	Category   string
	Confidence float64
	Keywords   []string
}

// DefaultRules are evaluated in order; the first rule with a matching keyword wins.
var DefaultRules = []Rule{
	{Category: "Transport", Confidence: 0.65, Keywords: []string{"GRAB", "GOJEK", "GOCAR"}},
	{Category: "Food", Confidence: 0.60, Keywords: []string{"STARBUCKS", "KFC", "MCD", "WARTEG", "NASI", "RESTO", "BAKSO"}},
	{Category: "Bills", Confidence: 0.60, Keywords: []string{"PLN", "TOKEN", "PULSA", "TELKOM", "PDAM"}},
}

// RuleMatch is the outcome of a keyword rule hit.
type RuleMatch struct {
	Category   string
	Confidence float64
	Keyword    string
}

type compiledRule struct {
	Rule
	matcher *goahocorasick.Machine
}

// RuleClassifier matches text against keyword rules, case-insensitively and
// anywhere in the text. It is safe for concurrent use.
type RuleClassifier struct {
	rules []compiledRule
}

// NewRuleClassifier builds one Aho-Corasick automaton per rule.
func NewRuleClassifier(rules []Rule) (*RuleClassifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("rule %q has no keywords", r.Category)
		}
		patterns := make([][]rune, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToUpper(strings.TrimSpace(kw))
			if kw == "" {
				return nil, fmt.Errorf("rule %q has an empty keyword", r.Category)
			}
			patterns = append(patterns, []rune(kw))
		}
		m := new(goahocorasick.Machine)
		if err := m.Build(patterns); err != nil {
			return nil, fmt.Errorf("build matcher for %q: %w", r.Category, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, matcher: m})
	}
	return &RuleClassifier{rules: compiled}, nil
}

// Classify returns the first matching rule. Blank text never matches.
func (c *RuleClassifier) Classify(text string) (RuleMatch, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return RuleMatch{}, false
	}
	content := []rune(strings.ToUpper(text))
	for _, r := range c.rules {
		hits := r.matcher.MultiPatternSearch(content, true)
		if len(hits) == 0 {
			continue
		}
		return RuleMatch{
			Category:   r.Category,
			Confidence: r.Confidence,
			Keyword:    string(hits[0].Word),
		}, true
	}
	return RuleMatch{}, false
}

var defaultRuleClassifier = mustRuleClassifier(DefaultRules)

func mustRuleClassifier(rules []Rule) *RuleClassifier {
	c, err := NewRuleClassifier(rules)
	if err != nil {
		panic(fmt.Sprintf("failed to build default rules: %v", err))
	}
	return c
}

// DefaultRuleClassifier returns the shared classifier over DefaultRules.
func DefaultRuleClassifier() *RuleClassifier {
	return defaultRuleClassifier
}

// Fallback classifies text with DefaultRules.
func Fallback(text string) (RuleMatch, bool) {
	return defaultRuleClassifier.Classify(text)
}
