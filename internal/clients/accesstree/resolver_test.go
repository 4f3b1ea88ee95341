package accesstree

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTree is an in-memory node API that mimics the create-then-rename
// contract's observable outcome: each created child gets a server-assigned
// id and a full path glued onto its parent's stored path.
type fakeTree struct {
	nodes   []Node
	nextID  int
	creates int
	lastOrg string
	listErr error
}

func newFakeTree(paths ...string) *fakeTree {
	f := &fakeTree{}
	for _, p := range paths {
		f.nextID++
		f.nodes = append(f.nodes, Node{
			ID:        fmt.Sprintf("n%d", f.nextID),
			Value:     p[strings.LastIndex(p, "/")+1:],
			FullValue: p,
		})
	}
	return f
}

func (f *fakeTree) ListNodes(context.Context) ([]Node, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Node, len(f.nodes))
	copy(out, f.nodes)
	return out, nil
}

func (f *fakeTree) CreateNamedChild(_ context.Context, parentID, name, orgID string) (*Node, error) {
	f.creates++
	f.lastOrg = orgID
	for _, n := range f.nodes {
		if n.ID == parentID {
			f.nextID++
			child := Node{
				ID:        fmt.Sprintf("n%d", f.nextID),
				Value:     name,
				FullValue: n.FullValue + "/" + name,
				ParentID:  parentID,
				OrgID:     n.OrgID,
			}
			f.nodes = append(f.nodes, child)
			return &child, nil
		}
	}
	return nil, fmt.Errorf("parent %s not found", parentID)
}

func TestEnsureCreatesMissingSegments(t *testing.T) {
	tree := newFakeTree("/DEFAULT", "/DEFAULT/PRODUCTION")
	r := NewResolver(tree, PolicyExact, "")

	leaf, err := r.Ensure(context.Background(), "/DEFAULT/PRODUCTION/Acme/Branch")
	require.NoError(t, err)
	assert.Equal(t, 2, tree.creates)

	last := tree.nodes[len(tree.nodes)-1]
	assert.Equal(t, last.ID, leaf)
	assert.Equal(t, "/DEFAULT/PRODUCTION/Acme/Branch", last.FullValue)
}

func TestEnsureIsIdempotent(t *testing.T) {
	tree := newFakeTree("/DEFAULT", "/DEFAULT/PRODUCTION")
	r := NewResolver(tree, PolicyExact, "")

	first, err := r.Ensure(context.Background(), "/DEFAULT/PRODUCTION/Acme")
	require.NoError(t, err)
	require.Equal(t, 1, tree.creates)

	second, err := r.Ensure(context.Background(), "/DEFAULT/PRODUCTION/Acme")
	require.NoError(t, err)
	assert.Equal(t, 1, tree.creates, "no extra creates on the second pass")
	assert.Equal(t, first, second)
}

func TestEnsureDescendsCaseInsensitively(t *testing.T) {
	tree := newFakeTree("/A", "/A/B")
	r := NewResolver(tree, PolicyExact, "")

	leaf, err := r.Ensure(context.Background(), "/A/b/C")
	require.NoError(t, err)
	assert.Equal(t, 1, tree.creates, "existing segments reused regardless of case")

	last := tree.nodes[len(tree.nodes)-1]
	assert.Equal(t, last.ID, leaf)
	assert.Equal(t, "/A/B/C", last.FullValue, "stored casing of existing ancestors wins")
}

func TestEnsureMissingRootFails(t *testing.T) {
	tree := newFakeTree("/DEFAULT")
	r := NewResolver(tree, PolicyExact, "")

	_, err := r.Ensure(context.Background(), "/OTHER/Acme")
	require.Error(t, err)
	assert.Equal(t, 0, tree.creates, "never creates a new root")
}

func TestEnsureEmptyTreeFails(t *testing.T) {
	r := NewResolver(&fakeTree{}, PolicyExact, "")

	_, err := r.Ensure(context.Background(), "/DEFAULT/Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty tree")
}

func TestEnsurePropagatesOrgScope(t *testing.T) {
	tree := newFakeTree("/DEFAULT")
	tree.nodes[0].OrgID = "org-7"
	r := NewResolver(tree, PolicyExact, "")

	_, err := r.Ensure(context.Background(), "/DEFAULT/Acme")
	require.NoError(t, err)
	assert.Equal(t, "org-7", tree.lastOrg)
}

func TestEnsureFallsBackToDefaultOrg(t *testing.T) {
	tree := newFakeTree("/DEFAULT")
	r := NewResolver(tree, PolicyExact, "org-9")

	_, err := r.Ensure(context.Background(), "/DEFAULT/Acme")
	require.NoError(t, err)
	assert.Equal(t, "org-9", tree.lastOrg, "creation under an unscoped parent uses the configured org")
}

func TestEnsureRejectsEmptyPath(t *testing.T) {
	r := NewResolver(newFakeTree("/DEFAULT"), PolicyExact, "")

	_, err := r.Ensure(context.Background(), "  / / ")
	require.Error(t, err)
}

func TestExistsExactPolicy(t *testing.T) {
	tree := newFakeTree("/DEFAULT/PRODUCTION/Acme")
	r := NewResolver(tree, PolicyExact, "")
	ctx := context.Background()

	ok, err := r.Exists(ctx, "/DEFAULT/PRODUCTION/Acme")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists(ctx, "/default/production/ACME")
	require.NoError(t, err)
	assert.True(t, ok, "case-insensitive hit still counts")

	ok, err = r.Exists(ctx, "/DEFAULT/PRODUCTION/Globex")
	require.NoError(t, err)
	assert.False(t, ok)

	// Exact policy does not match suffixes.
	ok, err = r.Exists(ctx, "/PRODUCTION/Acme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistsTrailingPolicy(t *testing.T) {
	tree := newFakeTree("/ROOT/SITE-1/PRODUCTION/Acme")
	r := NewResolver(tree, PolicyTrailing, "")
	ctx := context.Background()

	ok, err := r.Exists(ctx, "/PRODUCTION/acme")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists(ctx, "/STAGING/Acme")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistsPropagatesListError(t *testing.T) {
	tree := newFakeTree("/DEFAULT")
	tree.listErr = fmt.Errorf("listing down")
	r := NewResolver(tree, PolicyExact, "")

	_, err := r.Exists(context.Background(), "/DEFAULT")
	require.Error(t, err)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/A/B", "/A/B"},
		{"A/B/", "/A/B"},
		{"//A//B//", "/A/B"},
		{" /A / B ", "/A/B"},
		{"", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), "input %q", tt.in)
	}
}
