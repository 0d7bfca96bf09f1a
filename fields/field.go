// Package fields extracts scalar order and invoice fields from page text.
//
// Every extractor is an ordered list of (pattern, confidence) strategies.
// The first strategy that matches and passes validation wins; partial
// matches from different strategies are never merged.
package fields

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Confidence grades how trustworthy an extracted value is.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Source records which kind of strategy produced a value.
type Source string

const (
	SourcePrimary        Source = "primary"
	SourceFallback       Source = "fallback"
	SourceOCRPlaceholder Source = "ocr_placeholder"
)

// Field is one extracted scalar value with its provenance. An empty Value
// means nothing was found.
type Field struct {
	Value         string           `json:"value"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Source        Source           `json:"source"`
	Confidence    Confidence       `json:"confidence"`
	Strategy      string           `json:"strategy,omitempty"`
	TokensMatched []string         `json:"tokens_matched"`
}

// Found reports whether the field carries a value.
func (f Field) Found() bool {
	return f.Value != ""
}

// MarshalJSON encodes a missing value as null.
func (f Field) MarshalJSON() ([]byte, error) {
	type alias Field
	var value *string
	if f.Value != "" {
		v := f.Value
		value = &v
	}
	tokens := f.TokensMatched
	if tokens == nil {
		tokens = []string{}
	}
	return json.Marshal(struct {
		alias
		Value         *string  `json:"value"`
		TokensMatched []string `json:"tokens_matched"`
	}{alias: alias(f), Value: value, TokensMatched: tokens})
}

// Missing is the result of an extractor that found nothing.
func Missing() Field {
	return Field{Source: SourceFallback, Confidence: Low}
}

// Placeholder marks a field on a page without a text layer (a scanned
// image awaiting OCR).
func Placeholder() Field {
	return Field{Source: SourceOCRPlaceholder, Confidence: Low}
}

// Strategy is one pattern attempt. The value is taken from the first
// capture group, or the whole match when the pattern has no groups.
type Strategy struct {
	Name       string
	Pattern    *regexp.Regexp
	Confidence Confidence
}

// Extractor evaluates its strategies in order.
type Extractor struct {
	Name       string
	Strategies []Strategy
	// Normalize rewrites a raw match before validation. Optional.
	Normalize func(string) string
	// Accept rejects implausible matches so the next strategy gets a turn.
	// Optional.
	Accept func(string) bool
}

// Extract runs the strategies against text and returns the first
// accepted match.
func (e Extractor) Extract(text string) Field {
	for i, s := range e.Strategies {
		for _, m := range s.Pattern.FindAllStringSubmatch(text, -1) {
			raw := m[0]
			if len(m) > 1 {
				raw = m[1]
			}
			value := strings.TrimSpace(raw)
			if e.Normalize != nil {
				value = e.Normalize(value)
			}
			if value == "" || (e.Accept != nil && !e.Accept(value)) {
				continue
			}
			src := SourceFallback
			if i == 0 {
				src = SourcePrimary
			}
			return Field{
				Value:         value,
				Source:        src,
				Confidence:    s.Confidence,
				Strategy:      s.Name,
				TokensMatched: strings.Fields(m[0]),
			}
		}
	}
	return Missing()
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}
