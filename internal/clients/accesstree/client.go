// Package accesstree implements the access-tree system integration: the raw
// node/asset API client, the credential broker that owns the session token
// lifecycle, and the hierarchical path resolver.
package accesstree

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/errors"
	"github.com/opshub/tenantsync/pkg/logging"
	"github.com/opshub/tenantsync/pkg/records"

	"github.com/opshub/tenantsync/internal/transport"
)

// OrgHeader carries the organization scope on node mutations. Without it the
// API defaults to the root organization and places nodes in the wrong scope.
const OrgHeader = "X-ORG-ID"

// API endpoints.
const (
	nodesEndpoint  = "/api/v1/assets/nodes/"
	assetsEndpoint = "/api/v1/assets/assets/"
)

// Node is a grouping node in the access tree.
type Node struct {
	ID string `json:"id"`

	// Value is the node's own segment name.
	Value string `json:"value"`

	// FullValue is the materialized path, e.g. "/DEFAULT/PRODUCTION/Acme".
	FullValue string `json:"full_value"`

	// Key is the API's internal hierarchy key (informational only).
	Key string `json:"key,omitempty"`

	ParentID string `json:"parent_id,omitempty"`
	OrgID    string `json:"org_id,omitempty"`
}

// Client is the thin pass-through client for the access-tree API. All calls
// go through the shared transport, which applies the credential broker's
// headers and the refresh-once-retry-once unauthorized policy.
type Client struct {
	rest *transport.Client
}

// NewClient creates a Client against baseURL, authenticating via auth
// (normally a *Broker).
func NewClient(baseURL string, auth transport.HeaderSource) (*Client, error) {
	rest, err := transport.New(baseURL, auth, "tree")
	if err != nil {
		return nil, err
	}
	return &Client{rest: rest}, nil
}

// Rest exposes the underlying transport (tests swap its http.Client).
func (c *Client) Rest() *transport.Client { return c.rest }

// nodePage models the API's paginated listing envelope. Results is the
// current field name and Data the older one; ListNodes prefers Results.
// Some deployments return a flat array instead, which is also accepted.
type nodePage struct {
	Results []Node `json:"results"`
	Data    []Node `json:"data"`
	Next    string `json:"next"`
}

// ListNodes fetches the complete node set, following the server-supplied
// continuation reference until none remains. Continuation URLs are
// normalized to the client's configured authority before following.
func (c *Client) ListNodes(ctx context.Context) ([]Node, error) {
	log := logging.FromContext(ctx)

	var nodes []Node
	next := nodesEndpoint + "?limit=" + itoa(constants.DefaultPageSize)

	for next != "" {
		resp, err := c.rest.Do(ctx, http.MethodGet, next, nil, nil)
		if err != nil {
			return nil, err
		}

		var raw json.RawMessage
		if err := transport.DecodeResponse("tree", resp, &raw); err != nil {
			return nil, err
		}

		page, flat, err := decodeNodePayload(raw)
		if err != nil {
			return nil, err
		}
		if flat != nil {
			nodes = append(nodes, flat...)
			break
		}

		items := page.Results
		if len(items) == 0 {
			items = page.Data
		}
		nodes = append(nodes, items...)

		if page.Next == "" {
			break
		}
		next = c.rest.URL(page.Next)
		log.Debug().Str("next", next).Msg("following node pagination")
	}

	log.Debug().Int("count", len(nodes)).Msg("loaded tree nodes")
	return nodes, nil
}

// decodeNodePayload accepts either a flat node array or a paginated envelope.
func decodeNodePayload(raw json.RawMessage) (*nodePage, []Node, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var flat []Node
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, nil, errors.WrapParse("json", "tree node list", err)
		}
		return nil, flat, nil
	}
	var page nodePage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, nil, errors.WrapParse("json", "tree node page", err)
	}
	return &page, nil, nil
}

// CreateNamedChild materializes one child node under parentID using the
// API's two-step contract: create an anonymous child, then rename it to the
// requested segment. The parent's organization scope is propagated on both
// calls when present.
func (c *Client) CreateNamedChild(ctx context.Context, parentID, name, orgID string) (*Node, error) {
	log := logging.FromContext(ctx)

	if parentID == "" {
		return nil, errors.NewValidationError("parent_id", parentID, "cannot create a child node without a parent")
	}

	extra := orgHeaders(orgID)

	var created Node
	createURL := nodesEndpoint + parentID + "/children/"
	if err := c.rest.DoJSON(ctx, http.MethodPost, createURL, struct{}{}, &created, extra); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, errors.NewAPIError("tree", 0, "create child response missing id")
	}

	var renamed Node
	renameURL := nodesEndpoint + created.ID + "/"
	if err := c.rest.DoJSON(ctx, http.MethodPatch, renameURL, map[string]string{"value": name}, &renamed, extra); err != nil {
		return nil, err
	}

	log.Info().
		Str("node_id", renamed.ID).
		Str("path", renamed.FullValue).
		Msg("created tree node")
	return &renamed, nil
}

// DeleteNode removes a node. Used to clean up wrong placements; a 404 is
// treated as already deleted.
func (c *Client) DeleteNode(ctx context.Context, nodeID string) error {
	resp, err := c.rest.Do(ctx, http.MethodDelete, nodesEndpoint+nodeID+"/", nil, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return errors.NewAPIError("tree", resp.StatusCode, "delete node failed")
	}
}

// assetPayload models the asset listing entries consumed by the audit
// operation.
type assetPayload struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	IP           string          `json:"ip"`
	Address      string          `json:"address"`
	NodesDisplay []string        `json:"nodes_display"`
	Nodes        json.RawMessage `json:"nodes"`
}

type assetPage struct {
	Results []assetPayload `json:"results"`
	Next    string         `json:"next"`
}

// ListAssets fetches all connectable assets, following pagination like
// ListNodes.
func (c *Client) ListAssets(ctx context.Context) ([]records.Asset, error) {
	var assets []records.Asset
	next := assetsEndpoint + "?limit=" + itoa(constants.DefaultPageSize)

	for next != "" {
		var page assetPage
		if err := c.rest.DoJSON(ctx, http.MethodGet, next, nil, &page, nil); err != nil {
			return nil, err
		}
		for _, a := range page.Results {
			assets = append(assets, adaptAsset(a))
		}
		if page.Next == "" {
			break
		}
		next = c.rest.URL(page.Next)
	}
	return assets, nil
}

// adaptAsset maps the native payload into the canonical record shape.
func adaptAsset(a assetPayload) records.Asset {
	ip := a.IP
	if ip == "" {
		ip = a.Address
	}
	paths := make([]string, 0, len(a.NodesDisplay))
	for _, p := range a.NodesDisplay {
		if s := strings.TrimSpace(p); s != "" {
			paths = append(paths, s)
		}
	}
	return records.Asset{ID: a.ID, Name: a.Name, IP: ip, NodePaths: paths}
}

func orgHeaders(orgID string) http.Header {
	if orgID == "" {
		return nil
	}
	h := http.Header{}
	h.Set(OrgHeader, orgID)
	return h
}

// itoa avoids strconv for a small positive constant.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [8]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
