package identity

import (
	"encoding/json"

	"github.com/joseph-ayodele/idscan/constants"
)

// Result holds the extracted fields of one document. Fields the engine could
// not resolve carry constants.NotFound.
type Result struct {
	Name           string                 `json:"name"`
	DocumentNumber string                 `json:"document_number"`
	ExpirationDate string                 `json:"expiration_date"`
	DocumentType   constants.DocumentType `json:"document_type"`
	// MatchedRules maps each resolved field to the ID of the rule that produced it.
	MatchedRules map[constants.Field]string `json:"matched_rules,omitempty"`
}

func notFoundResult(docType constants.DocumentType) Result {
	return Result{
		Name:           constants.NotFound,
		DocumentNumber: constants.NotFound,
		ExpirationDate: constants.NotFound,
		DocumentType:   docType,
	}
}

// Value returns the value of field, or "" for an unknown field.
func (r Result) Value(field constants.Field) string {
	switch field {
	case constants.FieldName:
		return r.Name
	case constants.FieldDocumentNumber:
		return r.DocumentNumber
	case constants.FieldExpirationDate:
		return r.ExpirationDate
	}
	return ""
}

// UndetectedFields lists the fields left at the sentinel, in result order.
func (r Result) UndetectedFields() []constants.Field {
	var out []constants.Field
	for _, f := range constants.Fields() {
		if r.Value(f) == constants.NotFound {
			out = append(out, f)
		}
	}
	return out
}

func (r Result) HasUndetectedFields() bool {
	return len(r.UndetectedFields()) > 0
}

// Map is the result as a plain map, in the JSON wire shape.
func (r Result) Map() map[string]any {
	m := map[string]any{
		"name":            r.Name,
		"document_number": r.DocumentNumber,
		"expiration_date": r.ExpirationDate,
		"document_type":   string(r.DocumentType),
	}
	if len(r.MatchedRules) > 0 {
		matched := make(map[string]any, len(r.MatchedRules))
		for f, id := range r.MatchedRules {
			matched[string(f)] = id
		}
		m["matched_rules"] = matched
	}
	return m
}

func (r Result) JSON() ([]byte, error) {
	return json.Marshal(r)
}
