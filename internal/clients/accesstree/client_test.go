package accesstree

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opshub/tenantsync/internal/transport"
)

func TestListNodesFollowsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "":
			// Continuation comes back relative; the client resolves it
			// against its own base.
			fmt.Fprint(w, `{"results":[{"id":"n1","value":"A","full_value":"/A"}],"next":"/api/v1/assets/nodes/?limit=100&offset=100"}`)
		case "100":
			fmt.Fprint(w, `{"results":[{"id":"n2","value":"B","full_value":"/A/B"}],"next":""}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, transport.NoAuth{})
	require.NoError(t, err)

	nodes, err := c.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "/A", nodes[0].FullValue)
	assert.Equal(t, "/A/B", nodes[1].FullValue)
}

func TestListNodesPrefersResultsOverData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "":
			// A server that populates both field names must not produce
			// duplicate nodes.
			fmt.Fprint(w, `{"results":[{"id":"n1","value":"A","full_value":"/A"}],"data":[{"id":"n1","value":"A","full_value":"/A"}],"next":"/api/v1/assets/nodes/?limit=100&offset=100"}`)
		case "100":
			fmt.Fprint(w, `{"data":[{"id":"n2","value":"B","full_value":"/A/B"}],"next":""}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, transport.NoAuth{})
	require.NoError(t, err)

	nodes, err := c.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "n1", nodes[0].ID)
	assert.Equal(t, "n2", nodes[1].ID, "data field still honored when results is empty")
}

func TestListNodesAcceptsFlatArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[{"id":"n1","value":"A","full_value":"/A"}]`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, transport.NoAuth{})
	require.NoError(t, err)

	nodes, err := c.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "n1", nodes[0].ID)
}

func TestCreateNamedChildCreatesThenRenames(t *testing.T) {
	type call struct {
		method, path, org string
		body              map[string]string
	}
	var calls []call

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, call{r.Method, r.URL.Path, r.Header.Get(OrgHeader), body})

		switch {
		case r.Method == http.MethodPost:
			fmt.Fprint(w, `{"id":"n9","value":"Untitled","full_value":"/A/Untitled"}`)
		case r.Method == http.MethodPatch:
			fmt.Fprint(w, `{"id":"n9","value":"Acme","full_value":"/A/Acme"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, transport.NoAuth{})
	require.NoError(t, err)

	node, err := c.CreateNamedChild(context.Background(), "n1", "Acme", "org-7")
	require.NoError(t, err)
	assert.Equal(t, "n9", node.ID)
	assert.Equal(t, "/A/Acme", node.FullValue)

	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, "/api/v1/assets/nodes/n1/children/", calls[0].path)
	assert.Equal(t, "org-7", calls[0].org)

	assert.Equal(t, http.MethodPatch, calls[1].method)
	assert.Equal(t, "/api/v1/assets/nodes/n9/", calls[1].path)
	assert.Equal(t, "org-7", calls[1].org)
	assert.Equal(t, map[string]string{"value": "Acme"}, calls[1].body)
}

func TestCreateNamedChildRequiresParent(t *testing.T) {
	c, err := NewClient("http://tree.local", transport.NoAuth{})
	require.NoError(t, err)

	_, err = c.CreateNamedChild(context.Background(), "", "Acme", "")
	require.Error(t, err)
}

func TestListAssetsMapsRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"results":[
			{"id":"a1","name":"core-rtr","ip":"10.0.0.1","nodes_display":["/DEFAULT/PRODUCTION/Acme"]},
			{"id":"a2","name":"edge-sw","address":"10.0.0.2","nodes_display":[" "]}
		],"next":""}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, transport.NoAuth{})
	require.NoError(t, err)

	assets, err := c.ListAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 2)

	assert.Equal(t, "10.0.0.1", assets[0].IP)
	assert.Equal(t, []string{"/DEFAULT/PRODUCTION/Acme"}, assets[0].NodePaths)

	assert.Equal(t, "10.0.0.2", assets[1].IP, "address field used when ip is absent")
	assert.Empty(t, assets[1].NodePaths)
}
