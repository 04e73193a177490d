package identity

import (
	"log/slog"

	"github.com/joseph-ayodele/idscan/constants"
)

// Engine turns recognized text into a Result. It holds only compiled rules and
// is safe for concurrent use.
type Engine struct {
	rules  Rules
	dates  *DateFormatter
	logger *slog.Logger
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.dates = NewDateFormatter(c) }
}

// WithRules replaces the built-in rule tables. Intended for tests.
func WithRules(r Rules) Option {
	return func(e *Engine) {
		if r != nil {
			e.rules = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rules:  DefaultRules(),
		dates:  NewDateFormatter(SystemClock),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract normalizes raw text and extracts every field for docType.
func (e *Engine) Extract(raw string, docType constants.DocumentType) Result {
	return e.ExtractNormalized(Normalize(raw).Text, docType)
}

// ExtractNormalized extracts from text that has already been normalized.
// It never fails: unresolved fields and unknown document types yield NotFound.
func (e *Engine) ExtractNormalized(text string, docType constants.DocumentType) Result {
	res := notFoundResult(docType)
	if _, ok := e.rules[docType]; !ok {
		e.logger.Warn("no rule set for document type", "document_type", string(docType))
		return res
	}

	matched := make(map[constants.Field]string, 3)
	if c, ok := ExtractField(e.rules, text, docType, constants.FieldName); ok {
		res.Name = c.Value
		matched[constants.FieldName] = c.RuleID
	}
	if c, ok := ExtractField(e.rules, text, docType, constants.FieldDocumentNumber); ok {
		res.DocumentNumber = c.Value
		matched[constants.FieldDocumentNumber] = c.RuleID
	}
	if c, ok := ExtractField(e.rules, text, docType, constants.FieldExpirationDate); ok {
		res.ExpirationDate = e.dates.Format(c.Value)
		matched[constants.FieldExpirationDate] = c.RuleID
	}
	if len(matched) > 0 {
		res.MatchedRules = matched
	}

	e.logger.Debug("identity fields extracted",
		"document_type", string(docType),
		"matched", len(matched),
		"undetected", len(res.UndetectedFields()))
	return res
}
