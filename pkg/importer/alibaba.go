package importer

import (
	"context"
	"fmt"
	"time"

	"costscan/internal/models"
	"costscan/pkg/billing"
	"costscan/pkg/logger"
	"costscan/pkg/utils/dateutils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// snapshotProductCode marks the regional snapshot storage aggregate line
	snapshotProductCode = "snapshot"

	// SnapshotChainType is the registry type of snapshot chain resources,
	// both split-out chains and regional fallbacks.
	SnapshotChainType = "Snapshot Chain"

	itemTypeRoundDownDiscount = "RoundDownDiscount"
)

// Alibaba-specific attr keys
const (
	attrBillingItem      = "billing_item"
	attrProductDetail    = "product_detail"
	attrSubscriptionType = "subscription_type"
	attrZone             = "zone"
	attrSourceDiskID     = "source_disk_id"
	attrChainID          = "chain_id"
)

// AlibabaAdapter pulls Alibaba instance bills, re-attributes system disk
// costs to the owning instance, and splits regional snapshot aggregates
// across snapshot chains by byte size. Adapters live for one run, so the
// side-channel caches never go stale.
type AlibabaAdapter struct {
	source billing.Source

	diskOwners  map[string]string
	diskLoaded  bool
	chainsCache map[string][]billing.SnapshotChain
}

var (
	_ ProviderAdapter       = (*AlibabaAdapter)(nil)
	_ PostProcessor         = (*AlibabaAdapter)(nil)
	_ ProvisionalReconciler = (*AlibabaAdapter)(nil)
)

func NewAlibabaAdapter(source billing.Source) *AlibabaAdapter {
	return &AlibabaAdapter{
		source:      source,
		chainsCache: make(map[string][]billing.SnapshotChain),
	}
}

func (a *AlibabaAdapter) Kind() models.CloudKind { return models.KindAlibaba }

// UniqueFields identifies one logical Alibaba billing line. Split lines of
// the same tuple are merged by summing cost and usage.
func (a *AlibabaAdapter) UniqueFields() []string {
	return []string{
		FieldCloudAccountID,
		FieldResourceID,
		FieldStartDate,
		AttrProduct,
		AttrItemType,
		attrBillingItem,
		attrProductDetail,
		attrSubscriptionType,
		attrZone,
	}
}

func (a *AlibabaAdapter) UpdateFields() []string {
	return []string{FieldCost, "usage"}
}

func (a *AlibabaAdapter) DisambiguateWithRecN() bool { return false }

func (a *AlibabaAdapter) NeedsInitialWidening() bool { return true }

func (a *AlibabaAdapter) ProvisionalResourceType() string { return SnapshotChainType }

// BillingItems pulls one day of instance bills and normalizes them. System
// disk lines are re-attributed to the owning instance; regional snapshot
// aggregates are split across chains when byte sizes are available.
func (a *AlibabaAdapter) BillingItems(ctx context.Context, run *RunContext, day time.Time) ([]RawRecord, error) {
	items, err := a.source.DailyBillItems(ctx, day)
	if err != nil {
		if billing.IsDataNotReady(err) {
			return nil, &ReportNotReadyError{Day: day}
		}
		if billing.IsAuthError(err) {
			return nil, &FatalProviderError{Code: "auth", Err: err}
		}
		return nil, err
	}

	if err := a.ensureDiskOwners(ctx); err != nil {
		return nil, err
	}

	records := make([]RawRecord, 0, len(items))
	for _, item := range items {
		rec, err := a.normalize(item, day)
		if err != nil {
			logger.Warn("skipping malformed billing line",
				zap.String("provider", "alicloud"),
				zap.String("instance_id", item.InstanceID),
				zap.Error(err))
			continue
		}

		if rec.Attrs[AttrProduct] == snapshotProductCode {
			split, err := a.splitSnapshotCost(ctx, run, rec)
			if err != nil {
				return nil, err
			}
			records = append(records, split...)
			continue
		}

		if owner, ok := a.diskOwners[rec.ResourceID]; ok {
			// System disk costs belong to the instance that boots from it
			rec.Attrs[attrSourceDiskID] = rec.ResourceID
			rec.ResourceID = owner
		}

		records = append(records, rec)
	}

	return records, nil
}

func (a *AlibabaAdapter) normalize(item billing.Item, day time.Time) (RawRecord, error) {
	start := day
	if item.BillingDate != "" {
		parsed, err := time.Parse(dateutils.LayoutDate, item.BillingDate)
		if err != nil {
			return RawRecord{}, fmt.Errorf("bad billing date %q: %w", item.BillingDate, err)
		}
		start = parsed.UTC()
	}

	resourceID := item.InstanceID
	if resourceID == "" {
		// Product-level lines without an instance get a synthetic identity
		resourceID = fmt.Sprintf("%s-%s", item.ProductCode, item.Region)
	}

	rec := RawRecord{
		ResourceID: resourceID,
		StartDate:  start,
		EndDate:    dateutils.NextDay(start),
		Cost:       item.Cost,
		Attrs: map[string]string{
			AttrItemType:         item.ItemType,
			AttrRegion:           item.Region,
			AttrNickName:         item.NickName,
			AttrService:          item.ProductName,
			AttrProduct:          item.ProductCode,
			attrBillingItem:      item.BillingItem,
			attrProductDetail:    item.ProductDetail,
			attrSubscriptionType: item.SubscriptionType,
			attrZone:             item.Zone,
		},
		Metrics: map[string]float64{},
	}

	if item.Usage != "" {
		var usage float64
		if _, err := fmt.Sscanf(item.Usage, "%f", &usage); err == nil {
			rec.Metrics["usage"] = usage
		}
	}

	if tags := ParseAlibabaTags(item.Tag); len(tags) > 0 {
		rec.Attrs[AttrTags] = EncodeTags(tags)
	}

	return rec, nil
}

// splitSnapshotCost distributes a regional snapshot aggregate across the
// region's snapshot chains proportionally to chain byte sizes. The last
// chain absorbs the rounding remainder so the split conserves the regional
// total exactly. Without usable chain data the cost stays on a regional
// fallback resource until the reconciler can fix it up.
func (a *AlibabaAdapter) splitSnapshotCost(ctx context.Context, run *RunContext, rec RawRecord) ([]RawRecord, error) {
	region := rec.Attrs[AttrRegion]

	chains, ok := a.chainsCache[region]
	if !ok {
		var err error
		chains, err = a.source.SnapshotChains(ctx, region)
		if err != nil {
			if billing.IsAuthError(err) {
				return nil, &FatalProviderError{Code: "auth", Err: err}
			}
			logger.Warn("snapshot chain lookup failed, recording provisionally",
				zap.String("provider", "alicloud"),
				zap.String("region", region),
				zap.Error(err))
			chains = nil
		}
		a.chainsCache[region] = chains
	}

	var totalBytes int64
	for _, c := range chains {
		totalBytes += c.SizeBytes
	}

	if totalBytes <= 0 {
		return []RawRecord{a.provisionalFallback(rec, region)}, nil
	}

	regionCost := decimal.NewFromFloat(rec.Cost)
	total := decimal.NewFromInt(totalBytes)

	records := make([]RawRecord, 0, len(chains))
	remaining := regionCost
	for i, chain := range chains {
		var share decimal.Decimal
		if i == len(chains)-1 {
			share = remaining
		} else {
			share = regionCost.Mul(decimal.NewFromInt(chain.SizeBytes)).Div(total).Round(8)
			remaining = remaining.Sub(share)
		}

		chainRec := rec
		chainRec.ResourceID = chain.ChainID
		chainRec.Cost, _ = share.Float64()
		chainRec.Attrs = cloneAttrs(rec.Attrs)
		chainRec.Attrs[AttrResourceType] = SnapshotChainType
		chainRec.Attrs[attrChainID] = chain.ChainID
		if chain.SourceDiskID != "" {
			chainRec.Attrs[attrSourceDiskID] = chain.SourceDiskID
		}
		chainRec.Metrics = map[string]float64{"size_bytes": float64(chain.SizeBytes)}
		records = append(records, chainRec)
	}

	return records, nil
}

func (a *AlibabaAdapter) provisionalFallback(rec RawRecord, region string) RawRecord {
	logger.Warn("no snapshot chain data, recording regional fallback",
		zap.String("provider", "alicloud"),
		zap.String("region", region),
		zap.Float64("cost", rec.Cost))

	fallback := rec
	fallback.ResourceID = "snapshot-chain-" + region
	fallback.Attrs = cloneAttrs(rec.Attrs)
	fallback.Attrs[AttrResourceType] = SnapshotChainType
	fallback.Attrs[AttrNickName] = fmt.Sprintf("Snapshots in %s", region)
	return fallback
}

// PostProcess inserts the round-down discount corrections: one negative
// record per resource at the end of every fully elapsed month in the run's
// window. Re-running the pass hits the same upsert identities, so the
// corrections never duplicate.
func (a *AlibabaAdapter) PostProcess(ctx context.Context, run *RunContext) ([]RawRecord, error) {
	months := dateutils.FullMonthsInRange(run.PeriodStart, run.Now)
	if len(months) == 0 {
		return nil, nil
	}

	var records []RawRecord
	for _, month := range months {
		discounts, err := a.source.RoundDownDiscounts(ctx, month)
		if err != nil {
			if billing.IsAuthError(err) {
				return nil, &FatalProviderError{Code: "auth", Err: err}
			}
			return nil, fmt.Errorf("failed to pull round-down discounts for %s: %w",
				month.Format(dateutils.LayoutYearMonth), err)
		}

		monthEnd := month.AddDate(0, 1, 0).AddDate(0, 0, -1)
		for _, d := range discounts {
			if d.Amount == 0 {
				continue
			}
			records = append(records, RawRecord{
				ResourceID: d.InstanceID,
				StartDate:  monthEnd,
				EndDate:    dateutils.NextDay(monthEnd),
				Cost:       -d.Amount,
				Attrs: map[string]string{
					AttrItemType: itemTypeRoundDownDiscount,
				},
				Metrics: map[string]float64{},
			})
		}
	}

	if len(records) > 0 {
		logger.Info("round-down discount corrections prepared",
			zap.String("provider", "alicloud"),
			zap.String("cloud_account_id", run.Account.ID),
			zap.Int("months", len(months)),
			zap.Int("records", len(records)))
	}
	return records, nil
}

func (a *AlibabaAdapter) ResourceInfoFromRecord(rec RawRecord) ResourceInfo {
	info := ResourceInfo{
		Name:         rec.Attrs[AttrNickName],
		ResourceType: rec.Attrs[AttrResourceType],
		Region:       rec.Attrs[AttrRegion],
		Service:      rec.Attrs[AttrService],
		Tags:         DecodeTags(rec.Attrs[AttrTags]),
	}
	if info.ResourceType == "" {
		info.ResourceType = rec.Attrs[attrProductDetail]
	}
	if info.ResourceType == "" {
		info.ResourceType = rec.Attrs[AttrProduct]
	}
	return info
}

func (a *AlibabaAdapter) ensureDiskOwners(ctx context.Context) error {
	if a.diskLoaded {
		return nil
	}

	owners, err := a.source.SystemDiskOwners(ctx)
	if err != nil {
		if billing.IsAuthError(err) {
			return &FatalProviderError{Code: "auth", Err: err}
		}
		// Attribution degrades gracefully: disk lines keep their own id
		logger.Warn("system disk lookup failed, skipping re-attribution",
			zap.String("provider", "alicloud"),
			zap.Error(err))
		owners = map[string]string{}
	}

	a.diskOwners = owners
	a.diskLoaded = true
	return nil
}

func cloneAttrs(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
