package constants

import (
	"fmt"
	"strings"
)

// NotFound is the reserved value for a field the extractor could not resolve.
// It is used for every field and never collides with a real capture: captures
// are upper-cased, and dates are digits and dashes.
const NotFound = "Not Found"

// DocumentType selects which rule set applies to recognized text.
type DocumentType string

const (
	Passport DocumentType = "passport"
	License  DocumentType = "license"
)

var allDocumentTypes = []DocumentType{Passport, License}

// DocumentTypes returns the supported document types in declaration order.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(allDocumentTypes))
	copy(out, allDocumentTypes)
	return out
}

// ParseDocumentType accepts a document type name in any case.
// "driver_license" and "dl" are accepted as aliases for License.
func ParseDocumentType(s string) (DocumentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Passport):
		return Passport, nil
	case string(License), "driver_license", "drivers_license", "dl":
		return License, nil
	}
	return "", fmt.Errorf("unknown document type %q (want passport or license)", s)
}

func (d DocumentType) Valid() bool {
	return d == Passport || d == License
}

func (d DocumentType) String() string { return string(d) }

// Field names one extracted value of an identity document.
type Field string

const (
	FieldName           Field = "name"
	FieldDocumentNumber Field = "document_number"
	FieldExpirationDate Field = "expiration_date"
)

// Fields lists the extracted fields in result order.
func Fields() []Field {
	return []Field{FieldName, FieldDocumentNumber, FieldExpirationDate}
}
