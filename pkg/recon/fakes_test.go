package recon

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/opshub/tenantsync/pkg/errors"
	"github.com/opshub/tenantsync/pkg/records"
)

// fakeSource serves a fixed snapshot of source records.
type fakeSource struct {
	records []records.SourceRecord
	err     error
}

func (f *fakeSource) ListActiveRecords(_ context.Context) ([]records.SourceRecord, error) {
	return f.records, f.err
}

// fakeInventory is an in-memory stand-in for the target registry.
type fakeInventory struct {
	mu      sync.Mutex
	targets []records.TargetRecord
	groups  map[string]string
	err     error

	creates []records.TargetRecord
	updates map[string]TargetPatch
	nextID  int
}

func newFakeInventory(targets ...records.TargetRecord) *fakeInventory {
	return &fakeInventory{
		targets: targets,
		groups:  map[string]string{"Managed Customers": "g1"},
		updates: make(map[string]TargetPatch),
		nextID:  100,
	}
}

func (f *fakeInventory) ListTargets(_ context.Context, _ string) ([]records.TargetRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]records.TargetRecord, len(f.targets))
	copy(out, f.targets)
	return out, nil
}

func (f *fakeInventory) GetTarget(_ context.Context, id string) (*records.TargetRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.targets {
		if f.targets[i].ID == id {
			t := f.targets[i]
			return &t, nil
		}
	}
	return nil, errors.NewNotFoundError("tenant", id)
}

func (f *fakeInventory) GetTargetByAttribute(_ context.Context, key, value string) (*records.TargetRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.targets {
		if f.targets[i].Attributes[key] == value {
			t := f.targets[i]
			return &t, nil
		}
	}
	return nil, errors.NewNotFoundError("tenant", key+"="+value)
}

func (f *fakeInventory) GetGroup(_ context.Context, name string) (string, error) {
	if id, ok := f.groups[name]; ok {
		return id, nil
	}
	return "", errors.NewNotFoundError("group", name)
}

func (f *fakeInventory) CreateTarget(_ context.Context, name, slug string, attrs map[string]string, groupID string) (*records.TargetRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	_ = slug
	t := records.TargetRecord{
		ID:         fmt.Sprintf("t%d", f.nextID),
		Name:       name,
		Attributes: attrs,
		Group:      groupID,
	}
	f.nextID++
	f.targets = append(f.targets, t)
	f.creates = append(f.creates, t)
	return &t, nil
}

func (f *fakeInventory) UpdateTarget(_ context.Context, id string, patch TargetPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = patch
	for i := range f.targets {
		if f.targets[i].ID == id {
			if patch.Name != "" {
				f.targets[i].Name = patch.Name
			}
			if f.targets[i].Attributes == nil {
				f.targets[i].Attributes = map[string]string{}
			}
			for k, v := range patch.Attributes {
				f.targets[i].Attributes[k] = v
			}
		}
	}
	return nil
}

// fakeTree records Ensure calls and answers Exists from a path set.
type fakeTree struct {
	mu      sync.Mutex
	paths   map[string]bool // lowercased path -> exists
	ensures []string
	err     error
}

func newFakeTree(existing ...string) *fakeTree {
	f := &fakeTree{paths: make(map[string]bool)}
	for _, p := range existing {
		f.paths[strings.ToLower(p)] = true
	}
	return f
}

func (f *fakeTree) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.paths[strings.ToLower(path)], nil
}

func (f *fakeTree) Ensure(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.ensures = append(f.ensures, path)
	f.paths[strings.ToLower(path)] = true
	return "leaf-id", nil
}
