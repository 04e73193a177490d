package identity

import (
	"strings"

	"github.com/joseph-ayodele/idscan/constants"
)

// Candidate is an accepted capture and the rule that produced it.
type Candidate struct {
	Value  string
	RuleID string
}

// Extract walks the chain in order and returns the first accepted candidate.
// Empty captures and captures that fail the chain's shape are skipped.
func (c *Chain) Extract(text string) (Candidate, bool) {
	for _, rule := range c.Rules {
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil || rule.Group >= len(m) {
			continue
		}
		value := strings.TrimSpace(m[rule.Group])
		if value == "" {
			continue
		}
		if c.Shape != nil && !c.Shape.MatchString(value) {
			continue
		}
		return Candidate{Value: value, RuleID: rule.ID}, true
	}
	return Candidate{}, false
}

// ExtractField runs the chain for (docType, field) over normalized text.
// It reports false when no rule produced an accepted candidate or no chain exists.
func ExtractField(rules Rules, text string, docType constants.DocumentType, field constants.Field) (Candidate, bool) {
	rs, ok := rules[docType]
	if !ok {
		return Candidate{}, false
	}
	chain := rs.Chain(field)
	if chain == nil {
		return Candidate{}, false
	}
	return chain.Extract(text)
}
