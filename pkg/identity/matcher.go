package identity

import (
	"github.com/opshub/tenantsync/pkg/records"
)

// Kind classifies how a source record matched against the target set.
type Kind int

const (
	// Unmatched means no cascade step succeeded.
	Unmatched Kind = iota

	// MatchedExternalID means the source's external id equals a target's
	// stored external-id attribute.
	MatchedExternalID

	// MatchedTaxID means both records carry the same non-empty tax id.
	MatchedTaxID

	// FallbackName means only a name-equivalence lookup succeeded.
	FallbackName
)

// String returns a short label for logging.
func (k Kind) String() string {
	switch k {
	case MatchedExternalID:
		return "external_id"
	case MatchedTaxID:
		return "tax_id"
	case FallbackName:
		return "name"
	default:
		return "none"
	}
}

// Result is the outcome of matching one source record.
type Result struct {
	Kind   Kind
	Target *records.TargetRecord

	// Ambiguous is set when a name lookup found more than one target with
	// the same normalized name. The first hit is returned, but callers
	// should surface the ambiguity instead of trusting the selection.
	Ambiguous bool
}

// Matched reports whether the result came from id or tax-id evidence.
func (r Result) Matched() bool {
	return r.Kind == MatchedExternalID || r.Kind == MatchedTaxID
}

// Fallback reports whether only name evidence produced the match.
func (r Result) Fallback() bool {
	return r.Kind == FallbackName
}

// Index holds the lookup tables built from one cycle's target snapshot.
type Index struct {
	byExternalID map[string]*records.TargetRecord
	byTaxID      map[string]*records.TargetRecord
	byName       map[string][]*records.TargetRecord
}

// Matcher classifies source records against target records using the
// identity cascade: external id, then tax id, then name equivalence.
// Id and tax-id evidence always outrank name similarity.
type Matcher struct {
	norm *Normalizer
}

// NewMatcher creates a Matcher using the given normalizer for name
// equivalence.
func NewMatcher(norm *Normalizer) *Matcher {
	return &Matcher{norm: norm}
}

// Normalizer returns the normalizer the matcher compares names with.
func (m *Matcher) Normalizer() *Normalizer {
	return m.norm
}

// BuildIndex builds the per-cycle lookup tables. The slice is indexed by
// pointer, so it must not be mutated while the index is in use.
func (m *Matcher) BuildIndex(targets []records.TargetRecord) *Index {
	idx := &Index{
		byExternalID: make(map[string]*records.TargetRecord, len(targets)),
		byTaxID:      make(map[string]*records.TargetRecord, len(targets)),
		byName:       make(map[string][]*records.TargetRecord, len(targets)),
	}
	for i := range targets {
		t := &targets[i]
		if id := t.ExternalID(); id != "" {
			if _, dup := idx.byExternalID[id]; !dup {
				idx.byExternalID[id] = t
			}
		}
		if tax := t.TaxID(); tax != "" {
			if _, dup := idx.byTaxID[tax]; !dup {
				idx.byTaxID[tax] = t
			}
		}
		key := m.norm.Key(t.Name)
		if key != "" {
			idx.byName[key] = append(idx.byName[key], t)
		}
	}
	return idx
}

// Match runs the cascade for one source record. Steps are evaluated in order
// and the first success wins.
func (m *Matcher) Match(src records.SourceRecord, idx *Index) Result {
	if src.ExternalID != "" {
		if t, ok := idx.byExternalID[src.ExternalID]; ok {
			return Result{Kind: MatchedExternalID, Target: t}
		}
	}

	if src.TaxID != "" {
		if t, ok := idx.byTaxID[src.TaxID]; ok {
			return Result{Kind: MatchedTaxID, Target: t}
		}
	}

	for _, candidate := range src.NameCandidates {
		key := m.norm.Key(candidate)
		if key == "" {
			continue
		}
		if hits := idx.byName[key]; len(hits) > 0 {
			return Result{
				Kind:      FallbackName,
				Target:    hits[0],
				Ambiguous: len(hits) > 1,
			}
		}
	}

	return Result{Kind: Unmatched}
}
