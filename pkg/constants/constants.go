// Package constants provides shared constants used throughout the tenantsync
// codebase. This includes timeouts, limits, and other configuration values
// that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for HTTP requests to external systems
	DefaultHTTPTimeout = 10 * time.Second

	// SourceFetchTimeout is the timeout for fetching the full company list
	// from the source registry (larger payloads than single-object calls)
	SourceFetchTimeout = 15 * time.Second

	// LoginTimeout is the timeout for credential-exchange calls against the
	// access-tree API
	LoginTimeout = 10 * time.Second

	// ReportTimeout bounds a full report generation run
	ReportTimeout = 2 * time.Minute
)

// Token lifecycle constants
const (
	// TokenSafetyMargin is subtracted from a token's expiry when deciding
	// whether the cached token is still usable. A token inside the margin is
	// treated as already expired so in-flight calls don't race the deadline.
	TokenSafetyMargin = 30 * time.Second

	// TokenSettleMin and TokenSettleMax bound the randomized delay applied
	// after a first-time login. The access-tree backend propagates freshly
	// issued tokens asynchronously; calls issued immediately can 401.
	TokenSettleMin = 3 * time.Second
	TokenSettleMax = 5 * time.Second
)

// Limit constants define various limits and capacities
const (
	// DefaultPageSize is the page size requested when listing tree nodes
	DefaultPageSize = 100

	// MaxSlugLength is the maximum length of generated target slugs
	MaxSlugLength = 50
)

// Tree path constants
const (
	// PathSeparator separates segments in a materialized tree path
	PathSeparator = "/"

	// DefaultPathRoot is the fixed prefix under which tenant nodes live
	DefaultPathRoot = "/DEFAULT/PRODUCTION"
)

// Cache constants
const (
	// SnapshotTTL is the default freshness window for snapshot-store entries
	SnapshotTTL = 5 * time.Minute

	// SnapshotCleanupInterval is how often expired snapshot entries are purged
	SnapshotCleanupInterval = 15 * time.Minute
)

// Sync constants
const (
	// DefaultScanInterval is the default interval between periodic preview scans
	DefaultScanInterval = 10 * time.Minute
)
