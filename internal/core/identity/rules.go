package identity

import (
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/idscan/constants"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// PatternRule is one extraction attempt: a pattern and the capture group to keep.
type PatternRule struct {
	ID      string
	Pattern *regexp.Regexp
	Group   int
}

// Chain is the ordered rule list for a single field. When Shape is set, a
// candidate must match it in full to be accepted.
type Chain struct {
	Field constants.Field
	Shape *regexp.Regexp
	Rules []PatternRule
}

// RuleSet holds the three chains of one document type.
type RuleSet struct {
	DocumentType   constants.DocumentType
	Name           Chain
	DocumentNumber Chain
	ExpirationDate Chain
}

// Chain returns the chain for field, or nil for an unknown field.
func (rs *RuleSet) Chain(field constants.Field) *Chain {
	switch field {
	case constants.FieldName:
		return &rs.Name
	case constants.FieldDocumentNumber:
		return &rs.DocumentNumber
	case constants.FieldExpirationDate:
		return &rs.ExpirationDate
	}
	return nil
}

// Rules maps each document type to its rule set. Treat as read-only.
type Rules map[constants.DocumentType]*RuleSet

var defaultRules = mustParseRules(defaultRulesYAML)

// DefaultRules returns the built-in rule tables compiled from rules.yaml.
func DefaultRules() Rules {
	return defaultRules
}

type yamlRule struct {
	ID      string `yaml:"id"`
	Pattern string `yaml:"pattern"`
	Group   int    `yaml:"group"`
}

type yamlChain struct {
	Shape string     `yaml:"shape"`
	Rules []yamlRule `yaml:"rules"`
}

// ParseRules compiles a rules document. Every supported document type must
// define exactly one non-empty chain for each field.
func ParseRules(data []byte) (Rules, error) {
	var doc map[string]map[string]yamlChain
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	rules := make(Rules, len(doc))
	seen := make(map[string]bool)
	for typeName, chains := range doc {
		docType := constants.DocumentType(typeName)
		if !docType.Valid() {
			return nil, fmt.Errorf("rules: unknown document type %q", typeName)
		}
		rs := &RuleSet{DocumentType: docType}
		for fieldName := range chains {
			if rs.Chain(constants.Field(fieldName)) == nil {
				return nil, fmt.Errorf("rules: %s: unknown field %q", docType, fieldName)
			}
		}
		for _, field := range constants.Fields() {
			raw, ok := chains[string(field)]
			if !ok {
				return nil, fmt.Errorf("rules: %s: missing chain for %s", docType, field)
			}
			chain, err := compileChain(field, raw, seen)
			if err != nil {
				return nil, fmt.Errorf("rules: %s: %w", docType, err)
			}
			*rs.Chain(field) = chain
		}
		rules[docType] = rs
	}
	for _, dt := range constants.DocumentTypes() {
		if _, ok := rules[dt]; !ok {
			return nil, fmt.Errorf("rules: missing rule set for %s", dt)
		}
	}
	return rules, nil
}

func compileChain(field constants.Field, raw yamlChain, seen map[string]bool) (Chain, error) {
	chain := Chain{Field: field}
	if len(raw.Rules) == 0 {
		return chain, fmt.Errorf("%s: empty chain", field)
	}
	if raw.Shape != "" {
		shape, err := regexp.Compile(raw.Shape)
		if err != nil {
			return chain, fmt.Errorf("%s: compile shape: %w", field, err)
		}
		chain.Shape = shape
	}
	for _, r := range raw.Rules {
		if r.ID == "" {
			return chain, fmt.Errorf("%s: rule without id", field)
		}
		if seen[r.ID] {
			return chain, fmt.Errorf("%s: duplicate rule id %q", field, r.ID)
		}
		seen[r.ID] = true
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return chain, fmt.Errorf("%s: compile %s: %w", field, r.ID, err)
		}
		if r.Group < 1 || r.Group > re.NumSubexp() {
			return chain, fmt.Errorf("%s: rule %s: group %d out of range (pattern has %d)", field, r.ID, r.Group, re.NumSubexp())
		}
		chain.Rules = append(chain.Rules, PatternRule{ID: r.ID, Pattern: re, Group: r.Group})
	}
	return chain, nil
}

func mustParseRules(data []byte) Rules {
	rules, err := ParseRules(data)
	if err != nil {
		panic(err)
	}
	return rules
}

// RuleIDs lists every rule ID in the set, sorted.
func (r Rules) RuleIDs() []string {
	var ids []string
	for _, rs := range r {
		for _, field := range constants.Fields() {
			for _, rule := range rs.Chain(field).Rules {
				ids = append(ids, rule.ID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
