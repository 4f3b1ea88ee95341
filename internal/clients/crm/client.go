// Package crm reads customer companies from the CRM and adapts them to the
// canonical source-record shape consumed by the reconciliation planner.
package crm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/errors"
	"github.com/opshub/tenantsync/pkg/logging"
	"github.com/opshub/tenantsync/pkg/records"

	"github.com/opshub/tenantsync/internal/transport"
)

const personsEndpoint = "/public/v1/persons"

// companyPersonType selects companies (as opposed to individual contacts)
// in the persons listing.
const companyPersonType = 2

// Client reads active customer companies from the CRM. The CRM
// authenticates with an access token passed as a query parameter on every
// request, not as a header.
type Client struct {
	rest  *transport.Client
	token string
}

// NewClient creates a CRM client. An empty token produces a client whose
// reads fail with a configuration error, letting callers treat the source
// as disabled rather than broken.
func NewClient(baseURL, token string) (*Client, error) {
	rest, err := transport.New(baseURL, transport.NoAuth{}, "crm")
	if err != nil {
		return nil, err
	}
	// The full company listing is one large unpaginated response.
	rest.SetHTTPClient(&http.Client{Timeout: constants.SourceFetchTimeout})
	return &Client{rest: rest, token: token}, nil
}

// Rest exposes the underlying transport (tests swap its http.Client).
func (c *Client) Rest() *transport.Client { return c.rest }

// personPayload is the CRM's native company shape. BusinessName is the
// trade name, CorporateName the registered legal name.
type personPayload struct {
	ID            string `json:"id"`
	BusinessName  string `json:"businessName"`
	CorporateName string `json:"corporateName"`
	TaxDocument   string `json:"cpfCnpj"`
	IsActive      bool   `json:"isActive"`
	PersonType    int    `json:"personType"`
}

// ListActiveRecords fetches all active companies and adapts them to source
// records. Inactive entries and non-company person types are filtered
// server-side and dropped again here in case the filter is ignored.
func (c *Client) ListActiveRecords(ctx context.Context) ([]records.SourceRecord, error) {
	if c.token == "" {
		return nil, errors.NewConfigError("crm", "access token is not configured", nil)
	}

	query := url.Values{}
	query.Set("token", c.token)
	query.Set("$select", "id,businessName,corporateName,cpfCnpj,isActive,personType")
	query.Set("$filter", "personType eq 2 and isActive eq true")

	var people []personPayload
	endpoint := personsEndpoint + "?" + query.Encode()
	if err := c.rest.DoJSON(ctx, http.MethodGet, endpoint, nil, &people, nil); err != nil {
		return nil, err
	}

	out := make([]records.SourceRecord, 0, len(people))
	for _, p := range people {
		if !p.IsActive || p.PersonType != companyPersonType {
			continue
		}
		rec := adaptPerson(p)
		if rec.ExternalID == "" || rec.Name() == "" {
			logging.FromContext(ctx).Warn().
				Str("crm_id", p.ID).
				Msg("skipping company without id or name")
			continue
		}
		out = append(out, rec)
	}

	logging.FromContext(ctx).Debug().
		Int("count", len(out)).
		Msg("loaded active companies from crm")
	return out, nil
}

// adaptPerson maps a CRM company to the canonical record. The trade name is
// the preferred display name, with the legal name as fallback.
func adaptPerson(p personPayload) records.SourceRecord {
	return records.SourceRecord{
		ExternalID: strings.TrimSpace(p.ID),
		NameCandidates: []string{
			strings.TrimSpace(p.BusinessName),
			strings.TrimSpace(p.CorporateName),
		},
		TaxID:  strings.TrimSpace(p.TaxDocument),
		Active: p.IsActive,
	}
}
