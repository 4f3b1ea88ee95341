// Package records defines the canonical record shapes exchanged between the
// reconciliation engine and the external-system clients. Each client adapts
// its native payloads into these shapes at the boundary, so downstream logic
// never branches on wire formats.
package records

import "strings"

// SourceRecord is an immutable snapshot of a customer/organization from the
// source registry, taken once per reconciliation cycle.
type SourceRecord struct {
	// ExternalID is the registry's own identifier for the organization.
	ExternalID string

	// NameCandidates holds the name fields in declared priority order
	// (business name, trade name, fallback). The first non-empty entry is
	// the record's effective name.
	NameCandidates []string

	// TaxID is the fiscal identifier, empty when the registry has none.
	TaxID string

	// Active reports whether the registry still considers the organization
	// active.
	Active bool
}

// Name returns the first non-empty name candidate, or "" when the record has
// no usable name.
func (r SourceRecord) Name() string {
	for _, c := range r.NameCandidates {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return ""
}

// Attribute key variants recognized on target records. Older deployments used
// the lowercase forms; both are read, only the canonical form is written.
var (
	// ExternalIDKeys lists the attribute names that may carry the source
	// registry's id on a target record, in lookup priority order.
	ExternalIDKeys = []string{"ERP_ID", "erp_id", "crm_id"}

	// TaxIDKeys lists the attribute names that may carry the tax id.
	TaxIDKeys = []string{"TAX_ID", "tax_id"}
)

// TargetRecord is a tenant in the inventory registry.
type TargetRecord struct {
	// ID is the inventory system's identifier.
	ID string

	// Name is the tenant's canonical display name.
	Name string

	// Attributes carries the custom-field map, including the external-id
	// and tax-id references under one of the recognized key variants.
	Attributes map[string]string

	// Group is the tenant group/scope the record belongs to.
	Group string
}

// ExternalID returns the stored source-registry reference, trying each known
// key variant in order.
func (r TargetRecord) ExternalID() string {
	return firstAttr(r.Attributes, ExternalIDKeys)
}

// TaxID returns the stored tax-id reference, trying each known key variant.
func (r TargetRecord) TaxID() string {
	return firstAttr(r.Attributes, TaxIDKeys)
}

func firstAttr(attrs map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(attrs[k]); v != "" {
			return v
		}
	}
	return ""
}
