package models

import "fmt"

// Variant identifies an independently cached analysis family. Analyses
// produced by one variant never satisfy cache lookups for another.
type Variant string

const (
	// VariantClaude uses Anthropic Claude for commentary generation
	VariantClaude Variant = "claude"
	// VariantGemini uses Google Gemini for commentary generation
	VariantGemini Variant = "gemini"
)

// AllVariants lists every known variant in a stable order.
func AllVariants() []Variant {
	return []Variant{VariantClaude, VariantGemini}
}

// Valid reports whether the variant is a member of the closed set.
func (v Variant) Valid() bool {
	switch v {
	case VariantClaude, VariantGemini:
		return true
	}
	return false
}

// String returns the variant name.
func (v Variant) String() string {
	return string(v)
}

// ParseVariant converts a string to a Variant, rejecting unknown values so
// that typos cannot create a new cache namespace.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown analysis variant: %q", s)
	}
	return v, nil
}
