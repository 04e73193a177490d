package ocr

import (
	"regexp"
	"strings"
)

var (
	reIDLabel  = regexp.MustCompile(`(?i)\b(passport|licen[cs]e|surname|given names?|name|nationality|date of birth|dob|expiry|expiration|validity|valid)\b`)
	reIDDate   = regexp.MustCompile(`\b\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}\b`)
	reIDNumber = regexp.MustCompile(`(?i)\b[a-z]{0,3}\d{6,13}\b`)
)

// heuristicConfidence scores decoded text by how much it looks like an
// identity document: field labels, a date, and a document-number-like token.
func heuristicConfidence(txt string) float32 {
	score := float32(0.2)

	labels := map[string]bool{}
	for _, m := range reIDLabel.FindAllString(txt, -1) {
		labels[strings.ToLower(m)] = true
	}
	switch {
	case len(labels) >= 3:
		score += 0.3
	case len(labels) > 0:
		score += 0.1 * float32(len(labels))
	}
	if reIDDate.MatchString(txt) {
		score += 0.2
	}
	if reIDNumber.MatchString(txt) {
		score += 0.2
	}
	if len(txt) > 80 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
