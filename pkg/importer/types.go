package importer

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"costscan/internal/models"
)

// Well-known field names usable in a provider's unique-field list.
// Anything else is looked up in the record's Attrs map.
const (
	FieldCloudAccountID = "cloud_account_id"
	FieldResourceID     = "resource_id"
	FieldStartDate      = "start_date"
	FieldCost           = "cost"
)

// Attr keys shared across providers
const (
	AttrItemType     = "item_type"
	AttrRegion       = "region"
	AttrNickName     = "nick_name"
	AttrService      = "service"
	AttrTags         = "tags"
	AttrProduct      = "product_code"
	AttrResourceType = "resource_type"
)

// ItemTypeRefund marks line items dropped when an account skips refunds
const ItemTypeRefund = "refund"

// RawRecord is one normalized billing line item before it reaches the raw
// store. Provider-specific fields live in Attrs verbatim; numeric fields a
// provider wants summed during merge live in Metrics.
type RawRecord struct {
	CloudAccountID string
	ResourceID     string
	StartDate      time.Time
	EndDate        time.Time
	Cost           float64
	ReportIdentity string
	RecN           int
	Attrs          map[string]string
	Metrics        map[string]float64
}

// FieldValue resolves a unique-field name against the record
func (r *RawRecord) FieldValue(name string) string {
	switch name {
	case FieldCloudAccountID:
		return r.CloudAccountID
	case FieldResourceID:
		return r.ResourceID
	case FieldStartDate:
		return r.StartDate.UTC().Format(time.RFC3339)
	default:
		return r.Attrs[name]
	}
}

// UniqueKey builds the grouping key for one record from the provider's
// unique-field tuple. RecN is deliberately excluded: records differing only
// by RecN share a logical key but remain distinct upsert targets.
func (r *RawRecord) UniqueKey(uniqueFields []string) string {
	key := ""
	for _, f := range uniqueFields {
		key += f + "=" + r.FieldValue(f) + ";"
	}
	return key
}

// UniqueHash derives the upsert identity for the raw store: the unique-field
// tuple plus RecN. A refresh in a later run hits the same hash and overwrites
// instead of duplicating.
func (r *RawRecord) UniqueHash(uniqueFields []string) string {
	sum := sha1.Sum([]byte(r.UniqueKey(uniqueFields) + fmt.Sprintf("rec_n=%d", r.RecN)))
	return hex.EncodeToString(sum[:])
}

// ResourceInfo is what the importer hands to the resource registry for
// create-if-absent registration and summary bookkeeping.
type ResourceInfo struct {
	Name         string
	ResourceType string
	Region       string
	Service      string
	Tags         map[string]string
	FirstSeen    time.Time
	LastSeen     time.Time
}

// CleanExpenseRow is one signed ledger row in the aggregate store
type CleanExpenseRow struct {
	CloudAccountID string
	ResourceID     string
	Day            time.Time
	Cost           float64
	Sign           int8
}

// ResourceDay keys a signed sum in the aggregate store
type ResourceDay struct {
	ResourceID string
	Day        time.Time
}

// ResourceExpenses is the server-side grouping of raw records for one
// resource: per-day summed cost plus the chronologically last record,
// which is authoritative for resource_info extraction.
type ResourceExpenses struct {
	ResourceID string
	Days       map[time.Time]float64
	Last       RawRecord
}

// SortedDays returns the group's days in ascending order
func (re *ResourceExpenses) SortedDays() []time.Time {
	days := make([]time.Time, 0, len(re.Days))
	for d := range re.Days {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// RunContext carries the state of one import run through the pipeline
// stages instead of scattering it over instance fields.
type RunContext struct {
	Account        *models.CloudAccount
	ReportIdentity string
	Now            time.Time
	PeriodStart    time.Time
	FirstImport    bool

	// start_date bounds touched by this run; the rudiment cleaner only
	// deletes inside [MinTouched, MaxTouched]
	MinTouched time.Time
	MaxTouched time.Time
	touched    bool

	RecordsFetched  int64
	RecordsUpserted int64
	RawCostTotal    float64
}

// NewRunContext starts a run for an account at the given wall-clock time.
// The report identity is a timestamp-derived token distinguishing this run's
// records from any previous run's.
func NewRunContext(account *models.CloudAccount, now time.Time) *RunContext {
	return &RunContext{
		Account:        account,
		ReportIdentity: fmt.Sprintf("%s-%d", account.ID, now.UTC().UnixNano()),
		Now:            now.UTC(),
		FirstImport:    account.LastImportAt == nil || account.LastImportAt.IsZero(),
	}
}

// Touch widens the run's touched start_date window to include day
func (rc *RunContext) Touch(day time.Time) {
	if !rc.touched {
		rc.MinTouched = day
		rc.MaxTouched = day
		rc.touched = true
		return
	}
	if day.Before(rc.MinTouched) {
		rc.MinTouched = day
	}
	if day.After(rc.MaxTouched) {
		rc.MaxTouched = day
	}
}

// Touched reports whether the run imported at least one record
func (rc *RunContext) Touched() bool {
	return rc.touched
}
