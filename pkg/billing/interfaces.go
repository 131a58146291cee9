package billing

import (
	"context"
	"time"
)

// DailySource is the minimal billing pull every provider supports
type DailySource interface {
	// DailyBillItems returns all billing lines for one calendar day.
	// Returns a DataNotReadyError when the provider has not generated the
	// day's slice yet.
	DailyBillItems(ctx context.Context, day time.Time) ([]Item, error)
}

// UsageSource serves side-channel usage data for accounts that price usage
// through a cost model instead of provider bills.
type UsageSource interface {
	// RawUsage returns usage records of one resource kind in [start, end)
	RawUsage(ctx context.Context, resourceKind string, start, end time.Time) ([]UsageRecord, error)
}

// Source pulls billing and usage data for one cloud account
type Source interface {
	DailySource

	// RoundDownDiscounts returns the per-resource round-down discount of a
	// billing month, keyed by instance id.
	RoundDownDiscounts(ctx context.Context, month time.Time) ([]Discount, error)

	// SnapshotChains lists snapshot chains in a region. An empty region
	// lists the account's default region.
	SnapshotChains(ctx context.Context, region string) ([]SnapshotChain, error)

	// SystemDiskOwners maps system disk ids to the instance that owns them
	SystemDiskOwners(ctx context.Context) (map[string]string, error)

	// TestConnection verifies the credentials with a minimal call
	TestConnection(ctx context.Context) error
}
