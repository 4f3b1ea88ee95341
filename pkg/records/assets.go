package records

// Device is a managed device from the inventory registry, used by the audit
// operation to verify access-tree coverage.
type Device struct {
	ID     string
	Name   string
	IP     string
	Tenant string
	Site   string
}

// Asset is a connectable asset registered in the access-tree system.
type Asset struct {
	ID   string
	Name string
	IP   string

	// NodePaths lists the materialized paths of the tree nodes the asset
	// is grouped under.
	NodePaths []string
}
