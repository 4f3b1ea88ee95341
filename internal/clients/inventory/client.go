// Package inventory is the tenant-registry client. It adapts the registry's
// native tenant payloads (numeric ids, nested groups, custom-field maps)
// into canonical target records and implements the reconciliation engine's
// inventory interface.
package inventory

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/errors"
	"github.com/opshub/tenantsync/pkg/logging"
	"github.com/opshub/tenantsync/pkg/records"
	"github.com/opshub/tenantsync/pkg/recon"

	"github.com/opshub/tenantsync/internal/transport"
)

const (
	tenantsEndpoint = "/api/tenancy/tenants/"
	groupsEndpoint  = "/api/tenancy/tenant-groups/"
	devicesEndpoint = "/api/dcim/devices/"
)

// Client talks to the inventory registry using static token auth.
type Client struct {
	rest *transport.Client
}

// NewClient creates an inventory client authenticating with the given API
// token.
func NewClient(baseURL, token string) (*Client, error) {
	rest, err := transport.New(baseURL, transport.StaticToken{Scheme: "Token", Token: token}, "inventory")
	if err != nil {
		return nil, err
	}
	return &Client{rest: rest}, nil
}

// Rest exposes the underlying transport (tests swap its http.Client).
func (c *Client) Rest() *transport.Client { return c.rest }

// tenantPayload is the registry's native tenant shape.
type tenantPayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Group *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"group"`
	CustomFields map[string]any `json:"custom_fields"`
}

type tenantPage struct {
	Count   int             `json:"count"`
	Next    string          `json:"next"`
	Results []tenantPayload `json:"results"`
}

// adaptTenant maps the native payload onto the canonical record. Custom
// fields become string attributes; null and empty fields are dropped.
func adaptTenant(p tenantPayload) records.TargetRecord {
	attrs := make(map[string]string, len(p.CustomFields))
	for k, v := range p.CustomFields {
		if s := stringifyField(v); s != "" {
			attrs[k] = s
		}
	}
	rec := records.TargetRecord{
		ID:         strconv.Itoa(p.ID),
		Name:       p.Name,
		Attributes: attrs,
	}
	if p.Group != nil {
		rec.Group = p.Group.Name
	}
	return rec
}

func stringifyField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// ListTargets returns all tenants, optionally restricted to the named
// group. The group filter resolves the group to its id first so renamed
// slugs cannot silently widen the scope.
func (c *Client) ListTargets(ctx context.Context, group string) ([]records.TargetRecord, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(constants.DefaultPageSize))

	if group != "" {
		gid, err := c.GetGroup(ctx, group)
		if err != nil {
			return nil, err
		}
		query.Set("group_id", gid)
	}

	var out []records.TargetRecord
	next := tenantsEndpoint + "?" + query.Encode()
	for next != "" {
		var page tenantPage
		if err := c.rest.DoJSON(ctx, http.MethodGet, next, nil, &page, nil); err != nil {
			return nil, err
		}
		for _, p := range page.Results {
			out = append(out, adaptTenant(p))
		}
		if page.Next == "" {
			break
		}
		next = c.rest.URL(page.Next)
	}

	logging.FromContext(ctx).Debug().
		Int("count", len(out)).
		Str("group", group).
		Msg("loaded inventory tenants")
	return out, nil
}

// GetTarget fetches one tenant by id. A missing tenant is a not-found
// error, not an API failure.
func (c *Client) GetTarget(ctx context.Context, id string) (*records.TargetRecord, error) {
	var p tenantPayload
	err := c.rest.DoJSON(ctx, http.MethodGet, tenantsEndpoint+id+"/", nil, &p, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, errors.NewNotFoundError("tenant", id)
		}
		return nil, err
	}
	rec := adaptTenant(p)
	return &rec, nil
}

// GetTargetByAttribute finds the tenant whose custom field key equals
// value. Registry filters address custom fields with a "cf_" prefix.
func (c *Client) GetTargetByAttribute(ctx context.Context, key, value string) (*records.TargetRecord, error) {
	query := url.Values{}
	query.Set("cf_"+key, value)
	query.Set("limit", "2")

	var page tenantPage
	endpoint := tenantsEndpoint + "?" + query.Encode()
	if err := c.rest.DoJSON(ctx, http.MethodGet, endpoint, nil, &page, nil); err != nil {
		// Registries without the custom field defined reject the filter.
		if isStatus(err, http.StatusBadRequest) {
			return nil, errors.NewNotFoundError("tenant by "+key, value)
		}
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, errors.NewNotFoundError("tenant by "+key, value)
	}
	rec := adaptTenant(page.Results[0])
	return &rec, nil
}

type groupPage struct {
	Results []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"results"`
}

// GetGroup resolves a tenant-group name to its id.
func (c *Client) GetGroup(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.NewValidationError("group", name, "group name is empty")
	}

	query := url.Values{}
	query.Set("name", name)

	var page groupPage
	endpoint := groupsEndpoint + "?" + query.Encode()
	if err := c.rest.DoJSON(ctx, http.MethodGet, endpoint, nil, &page, nil); err != nil {
		return "", err
	}
	for _, g := range page.Results {
		if strings.EqualFold(g.Name, name) {
			return strconv.Itoa(g.ID), nil
		}
	}
	return "", errors.NewNotFoundError("tenant group", name)
}

// createPayload is the write shape for new tenants.
type createPayload struct {
	Name         string            `json:"name"`
	Slug         string            `json:"slug"`
	Group        *int              `json:"group,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// CreateTarget creates a tenant with the given attributes, scoped to
// groupID when non-empty.
func (c *Client) CreateTarget(ctx context.Context, name, slug string, attrs map[string]string, groupID string) (*records.TargetRecord, error) {
	payload := createPayload{Name: name, Slug: slug, CustomFields: attrs}
	if groupID != "" {
		gid, err := strconv.Atoi(groupID)
		if err != nil {
			return nil, errors.NewValidationError("group_id", groupID, "group id must be numeric")
		}
		payload.Group = &gid
	}

	var p tenantPayload
	if err := c.rest.DoJSON(ctx, http.MethodPost, tenantsEndpoint, payload, &p, nil); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info().
		Str("tenant_id", strconv.Itoa(p.ID)).
		Str("name", name).
		Msg("created inventory tenant")
	rec := adaptTenant(p)
	return &rec, nil
}

// updatePayload carries only the fields being changed.
type updatePayload struct {
	Name         string            `json:"name,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// UpdateTarget applies a partial update to a tenant.
func (c *Client) UpdateTarget(ctx context.Context, id string, patch recon.TargetPatch) error {
	payload := updatePayload{Name: patch.Name, CustomFields: patch.Attributes}
	return c.rest.DoJSON(ctx, http.MethodPatch, tenantsEndpoint+id+"/", payload, nil, nil)
}

// devicePayload is the registry's native device shape, reduced to the
// fields the audit needs.
type devicePayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Site *struct {
		Name string `json:"name"`
	} `json:"site"`
	Tenant *struct {
		Name string `json:"name"`
	} `json:"tenant"`
	PrimaryIP *struct {
		Address string `json:"address"`
	} `json:"primary_ip"`
}

type devicePage struct {
	Next    string          `json:"next"`
	Results []devicePayload `json:"results"`
}

// ListDevices returns active devices with a primary IP, for the access-tree
// audit. The address's prefix length is stripped so it compares cleanly
// against asset addresses.
func (c *Client) ListDevices(ctx context.Context) ([]records.Device, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(constants.DefaultPageSize))
	query.Set("status", "active")

	var out []records.Device
	next := devicesEndpoint + "?" + query.Encode()
	for next != "" {
		var page devicePage
		if err := c.rest.DoJSON(ctx, http.MethodGet, next, nil, &page, nil); err != nil {
			return nil, err
		}
		for _, d := range page.Results {
			if d.PrimaryIP == nil || d.PrimaryIP.Address == "" {
				continue
			}
			dev := records.Device{
				ID:   strconv.Itoa(d.ID),
				Name: d.Name,
				IP:   stripPrefixLen(d.PrimaryIP.Address),
			}
			if d.Tenant != nil {
				dev.Tenant = d.Tenant.Name
			}
			if d.Site != nil {
				dev.Site = d.Site.Name
			}
			out = append(out, dev)
		}
		if page.Next == "" {
			break
		}
		next = c.rest.URL(page.Next)
	}
	return out, nil
}

func stripPrefixLen(addr string) string {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// isStatus reports whether err is an API error with the given status code.
func isStatus(err error, code int) bool {
	var apiErr *errors.APIError
	return stderrors.As(err, &apiErr) && apiErr.StatusCode == code
}
