package accesstree

import (
	"context"
	"strings"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/errors"
	"github.com/opshub/tenantsync/pkg/logging"
)

// MatchPolicy selects how Exists compares a requested path against the
// stored node set.
type MatchPolicy string

const (
	// PolicyExact matches the full path. An exact-case hit wins; a
	// case-insensitive hit is accepted with a warning.
	PolicyExact MatchPolicy = "exact"

	// PolicyTrailing matches when the requested segments form a
	// case-insensitive suffix of a stored path. Useful when customers sit
	// under per-site intermediate nodes the requested root does not name.
	PolicyTrailing MatchPolicy = "trailing"
)

// nodeAPI is the slice of the tree client the resolver needs.
type nodeAPI interface {
	ListNodes(ctx context.Context) ([]Node, error)
	CreateNamedChild(ctx context.Context, parentID, name, orgID string) (*Node, error)
}

// Resolver resolves hierarchical tree paths against the live node set and
// materializes missing segments. It implements the planner's existence
// check and the executor's ensure operation.
type Resolver struct {
	api        nodeAPI
	policy     MatchPolicy
	defaultOrg string
}

// NewResolver creates a Resolver. An empty policy defaults to PolicyExact.
// defaultOrg is the organization scope used for node creation when the
// parent node carries none.
func NewResolver(api nodeAPI, policy MatchPolicy, defaultOrg string) *Resolver {
	if policy == "" {
		policy = PolicyExact
	}
	return &Resolver{api: api, policy: policy, defaultOrg: defaultOrg}
}

// NormalizePath canonicalizes a tree path: trimmed segments, single
// separators, one leading separator, no trailing separator.
func NormalizePath(path string) string {
	segs := splitPath(path)
	if len(segs) == 0 {
		return constants.PathSeparator
	}
	return constants.PathSeparator + strings.Join(segs, constants.PathSeparator)
}

func splitPath(path string) []string {
	var segs []string
	for _, seg := range strings.Split(path, constants.PathSeparator) {
		if s := strings.TrimSpace(seg); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// nodeIndex maps lowercased full paths to nodes for case-insensitive
// descent. When two nodes share a folded path the first one listed wins.
type nodeIndex map[string]*Node

func buildIndex(nodes []Node) nodeIndex {
	idx := make(nodeIndex, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		key := strings.ToLower(NormalizePath(n.FullValue))
		if _, dup := idx[key]; !dup {
			idx[key] = n
		}
	}
	return idx
}

// Ensure resolves path to a leaf node id, creating any missing trailing
// segments. The descent is case-insensitive and keeps the stored casing of
// segments that already exist, so "/A/b/C" against an existing "/A/B"
// creates only "C" under the stored "/A/B". The first segment must already
// exist; a missing root means the caller is pointed at the wrong tree and
// creating one would silently build a parallel hierarchy.
func (r *Resolver) Ensure(ctx context.Context, path string) (string, error) {
	ctx = logging.WithPath(ctx, path)
	log := logging.FromContext(ctx)

	segs := splitPath(path)
	if len(segs) == 0 {
		return "", errors.NewValidationError("path", path, "path has no segments")
	}

	nodes, err := r.api.ListNodes(ctx)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", errors.NewAPIError("tree", 0, "node listing returned an empty tree; refusing to create from scratch")
	}
	idx := buildIndex(nodes)

	var current *Node
	currentPath := ""

	for i, seg := range segs {
		candidate := strings.ToLower(currentPath + constants.PathSeparator + seg)

		if found, ok := idx[candidate]; ok {
			current = found
			currentPath = NormalizePath(found.FullValue)
			continue
		}

		if current == nil {
			return "", errors.NewNotFoundError("tree root node", constants.PathSeparator+seg)
		}

		org := current.OrgID
		if org == "" {
			org = r.defaultOrg
		}
		created, err := r.api.CreateNamedChild(ctx, current.ID, seg, org)
		if err != nil {
			return "", err
		}

		// Re-list after each create. The server assigns the child's full
		// path and hierarchy key; trusting the listing over locally glued
		// strings keeps later lookups honest.
		nodes, err = r.api.ListNodes(ctx)
		if err != nil {
			return "", err
		}
		idx = buildIndex(nodes)

		refreshed := findByID(nodes, created.ID)
		if refreshed == nil {
			return "", errors.NewAPIError("tree", 0, "created node "+created.ID+" missing from listing")
		}
		current = refreshed
		currentPath = NormalizePath(refreshed.FullValue)

		log.Debug().
			Str("segment", seg).
			Str("node_id", refreshed.ID).
			Int("depth", i+1).
			Msg("materialized path segment")
	}

	return current.ID, nil
}

// Exists reports whether path is present in the tree under the configured
// match policy. Lookup errors propagate; the caller decides how to degrade.
func (r *Resolver) Exists(ctx context.Context, path string) (bool, error) {
	nodes, err := r.api.ListNodes(ctx)
	if err != nil {
		return false, err
	}

	want := NormalizePath(path)

	if r.policy == PolicyTrailing {
		return trailingMatch(nodes, want), nil
	}

	for i := range nodes {
		if NormalizePath(nodes[i].FullValue) == want {
			return true, nil
		}
	}
	folded := strings.ToLower(want)
	for i := range nodes {
		if strings.ToLower(NormalizePath(nodes[i].FullValue)) == folded {
			logging.FromContext(ctx).Warn().
				Str("path", want).
				Str("stored", nodes[i].FullValue).
				Msg("path exists with different casing")
			return true, nil
		}
	}
	return false, nil
}

func trailingMatch(nodes []Node, want string) bool {
	wantSegs := splitPath(strings.ToLower(want))
	if len(wantSegs) == 0 {
		return false
	}
	for i := range nodes {
		got := splitPath(strings.ToLower(nodes[i].FullValue))
		if len(got) < len(wantSegs) {
			continue
		}
		tail := got[len(got)-len(wantSegs):]
		if equalSegs(tail, wantSegs) {
			return true
		}
	}
	return false
}

func equalSegs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func findByID(nodes []Node, id string) *Node {
	for i := range nodes {
		if nodes[i].ID == id {
			return &nodes[i]
		}
	}
	return nil
}
