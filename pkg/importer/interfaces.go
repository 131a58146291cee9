package importer

import (
	"context"
	"time"

	"costscan/internal/models"
)

// RawStore is the upsert-capable store of normalized billing line items
type RawStore interface {
	// UpsertMany writes records keyed by their unique hash; an existing row
	// with the same hash is overwritten (refreshing its report identity),
	// never duplicated. Returns the number of records written.
	UpsertMany(ctx context.Context, uniqueFields []string, records []RawRecord) (int, error)

	// FetchGrouped returns raw records for the given resources since the
	// given time, grouped by resource with per-day cost sums. A zero since
	// means the full history.
	FetchGrouped(ctx context.Context, accountID string, resourceIDs []string, since time.Time) ([]ResourceExpenses, error)

	// ListResourceIDs returns distinct resource ids with raw records for the
	// account; nil since means every resource the account has ever seen.
	ListResourceIDs(ctx context.Context, accountID string, since *time.Time) ([]string, error)

	// DeleteRudiments removes records inside [from, to] whose report identity
	// differs from keepIdentity.
	DeleteRudiments(ctx context.Context, accountID string, from, to time.Time, keepIdentity string) (int64, error)

	// DeleteSince removes all records with start_date >= since
	DeleteSince(ctx context.Context, accountID string, since time.Time) (int64, error)

	// HasRecordsSince reports whether the resource has any raw record with
	// start_date >= since.
	HasRecordsSince(ctx context.Context, accountID, resourceID string, since time.Time) (bool, error)

	// LastRecordBefore returns the chronologically last record of the
	// resource strictly before the given time, if any.
	LastRecordBefore(ctx context.Context, accountID, resourceID string, before time.Time) (*RawRecord, error)

	// UpdateCosts rewrites record costs in place through the reprice
	// function, without re-fetching from the provider.
	UpdateCosts(ctx context.Context, accountID string, reprice func(RawRecord) float64) (int64, error)

	// DeleteAccount removes all raw records of a cloud account
	DeleteAccount(ctx context.Context, accountID string) (int64, error)
}

// AggregateStore is the append-only signed ledger of clean expenses
type AggregateStore interface {
	InsertSigned(ctx context.Context, rows []CleanExpenseRow) error

	// SumSigned returns SUM(cost*sign) per (resource, day). Zero from/to
	// bounds mean an open interval on that side. Keys with a zero sum are
	// omitted.
	SumSigned(ctx context.Context, accountID string, resourceIDs []string, from, to time.Time) (map[ResourceDay]float64, error)

	// LatestExpenseDate returns the account's most recent ledger date, or
	// nil when the account has no rows.
	LatestExpenseDate(ctx context.Context, accountID string) (*time.Time, error)

	// DeleteAccount tears down the full ledger of a cloud account. The only
	// permitted delete; corrections always go through signed inserts.
	DeleteAccount(ctx context.Context, accountID string) error
}

// ResourceRegistry creates missing resources and maintains cost summaries
type ResourceRegistry interface {
	CreateIfAbsent(ctx context.Context, accountID string, infos map[string]ResourceInfo) (map[string]*models.Resource, error)
	UpdateSummary(ctx context.Context, resourceID string, totalCost float64, lastDate time.Time, lastCost float64) error
	ListByType(ctx context.Context, accountID, resourceType string) ([]*models.Resource, error)
	ListCloudResourceIDs(ctx context.Context, accountID string) ([]string, error)
	Delete(ctx context.Context, resourceID string) error
	DeleteAccount(ctx context.Context, accountID string) (int64, error)
}

// AccountStore persists watermark bookkeeping on the cloud account
type AccountStore interface {
	RecordAttempt(ctx context.Context, accountID string, at time.Time) error
	RecordFailure(ctx context.Context, accountID string, message string) error
	RecordSuccess(ctx context.Context, accountID string, at time.Time) error
}

// TaskStore records pipeline runs and downstream follow-up tasks
type TaskStore interface {
	Create(ctx context.Context, task *models.ImportTask) error
	Update(ctx context.Context, task *models.ImportTask) error
	DeleteAccount(ctx context.Context, accountID string) (int64, error)
}

// Notifier delivers operator alerts (import failures, ledger mismatches)
type Notifier interface {
	SendMessage(ctx context.Context, message string) error
}

// ProviderAdapter is the per-cloud variant behind the shared pipeline.
// A factory selects the adapter from the account's kind; the base importer
// owns the day loop, merging, chunked flushing, and cleanup.
type ProviderAdapter interface {
	Kind() models.CloudKind

	// UniqueFields names the tuple identifying one logical line item
	UniqueFields() []string

	// UpdateFields names the numeric fields summed when merging split items
	UpdateFields() []string

	// DisambiguateWithRecN reports whether the provider legitimately emits
	// several records per logical key within one run. When true the base
	// pipeline assigns _rec_n occurrence numbers instead of merging.
	DisambiguateWithRecN() bool

	// NeedsInitialWidening reports whether a first import should widen the
	// fetch window to the last few months.
	NeedsInitialWidening() bool

	// BillingItems pulls and normalizes one day of billing data
	BillingItems(ctx context.Context, run *RunContext, day time.Time) ([]RawRecord, error)

	// ResourceInfoFromRecord extracts registry info from a raw record
	ResourceInfoFromRecord(rec RawRecord) ResourceInfo
}

// PeriodStartOverrider lets a provider replace the default watermark logic
// (Azure re-pulls from last_import_at − 1 day on every run).
type PeriodStartOverrider interface {
	PeriodStart(ctx context.Context, run *RunContext) (time.Time, bool)
}

// PostProcessor runs a provider-specific pass after the day loop
// (Alibaba round-down discount).
type PostProcessor interface {
	PostProcess(ctx context.Context, run *RunContext) ([]RawRecord, error)
}

// ProvisionalReconciler marks providers that record shared costs under a
// provisional fallback resource until split data arrives.
type ProvisionalReconciler interface {
	// ProvisionalResourceType is the registry type of fallback resources
	ProvisionalResourceType() string
}
