// Package identity implements organization-name canonicalization and the
// identity-matching cascade used to reconcile source records against
// inventory tenants.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// defaultSuffixes lists the legal-entity and sector qualifier tokens stripped
// from the tail of a normalized name. Matching is repeated until the last
// token is no longer in the set, so "ACME TELECOM LTDA" and "ACME" compare
// equal while a qualifier appearing mid-name is preserved.
var defaultSuffixes = []string{
	// corporate forms
	"LTDA", "LTD", "ME", "MEI", "EPP", "EIRELI", "SA", "S", "A",
	"INC", "LLC", "CORP", "CIA",
	// sector qualifiers
	"TELECOM", "TELECOMUNICACOES", "INTERNET", "PROVEDOR",
	"SERVICOS", "COMERCIO", "TECNOLOGIA", "INFORMATICA",
	"COMUNICACAO", "COMUNICACOES", "REDES",
}

// Normalizer canonicalizes organization names into ordered token sequences.
// Two names are equivalent iff their token sequences are identical.
type Normalizer struct {
	suffixes map[string]struct{}
}

// NewNormalizer creates a Normalizer with the default suffix set plus any
// extra tokens (compared after normalization, so case does not matter).
func NewNormalizer(extra ...string) *Normalizer {
	n := &Normalizer{suffixes: make(map[string]struct{}, len(defaultSuffixes)+len(extra))}
	for _, s := range defaultSuffixes {
		n.suffixes[s] = struct{}{}
	}
	for _, s := range extra {
		for _, tok := range n.tokenize(s) {
			n.suffixes[tok] = struct{}{}
		}
	}
	return n
}

// Normalize canonicalizes a name into its ordered token sequence: fold
// diacritics, uppercase, replace every non-alphanumeric rune with a space,
// split on whitespace, then strip trailing suffix tokens until none match.
// Normalize is idempotent.
func (n *Normalizer) Normalize(name string) []string {
	tokens := n.tokenize(name)
	for len(tokens) > 0 {
		if _, ok := n.suffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// Key returns the normalized token sequence joined with single spaces,
// suitable as a map key for equivalence lookups.
func (n *Normalizer) Key(name string) string {
	return strings.Join(n.Normalize(name), " ")
}

// Equivalent reports whether two names normalize to identical sequences.
func (n *Normalizer) Equivalent(a, b string) bool {
	return n.Key(a) == n.Key(b)
}

// tokenize performs the character-level canonicalization without suffix
// stripping.
func (n *Normalizer) tokenize(name string) []string {
	folded := foldDiacritics(name)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

// foldDiacritics strips combining marks so "São" and "Sao" tokenize equally.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
