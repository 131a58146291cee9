package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"costscan/internal/models"
	"costscan/pkg/billing"
	"costscan/pkg/logger"
	"costscan/pkg/utils/dateutils"

	"go.uber.org/zap"
)

const (
	attrMeterID  = "meter_id"
	attrMeterCat = "meter_category"
)

// AzureAdapter imports exported Azure consumption lines. Azure legitimately
// emits several lines per logical key within one export, so records are
// disambiguated with occurrence numbers instead of merged. The newest day of
// Azure data is provisionally wrong, so every run re-pulls from the day
// before the last successful import.
type AzureAdapter struct {
	source billing.DailySource
}

var (
	_ ProviderAdapter      = (*AzureAdapter)(nil)
	_ PeriodStartOverrider = (*AzureAdapter)(nil)
)

func NewAzureAdapter(source billing.DailySource) *AzureAdapter {
	return &AzureAdapter{source: source}
}

func (a *AzureAdapter) Kind() models.CloudKind { return models.KindAzure }

func (a *AzureAdapter) UniqueFields() []string {
	return []string{
		FieldCloudAccountID,
		FieldResourceID,
		FieldStartDate,
		attrMeterID,
		AttrItemType,
	}
}

func (a *AzureAdapter) UpdateFields() []string { return nil }

func (a *AzureAdapter) DisambiguateWithRecN() bool { return true }

func (a *AzureAdapter) NeedsInitialWidening() bool { return true }

// PeriodStart always re-pulls from last_import_at minus one day. The first
// import has no watermark and falls back to the default branch.
func (a *AzureAdapter) PeriodStart(ctx context.Context, run *RunContext) (time.Time, bool) {
	if run.Account.LastImportAt == nil || run.Account.LastImportAt.IsZero() {
		return time.Time{}, false
	}
	return dateutils.StartOfDay(run.Account.LastImportAt.AddDate(0, 0, -1)), true
}

func (a *AzureAdapter) BillingItems(ctx context.Context, run *RunContext, day time.Time) ([]RawRecord, error) {
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

	records := make([]RawRecord, 0, len(items))
	for _, item := range items {
		rec, err := normalizeExportItem(item, day, "azure")
		if err != nil {
			logger.Warn("skipping malformed consumption line",
				zap.String("provider", "azure"),
				zap.String("instance_id", item.InstanceID),
				zap.Error(err))
			continue
		}
		rec.Attrs[attrMeterID] = item.BillingItem
		rec.Attrs[attrMeterCat] = item.ProductCode
		records = append(records, rec)
	}
	return records, nil
}

func (a *AzureAdapter) ResourceInfoFromRecord(rec RawRecord) ResourceInfo {
	return exportResourceInfo(rec)
}

// normalizeExportItem maps one exported billing line into a raw record.
// Tags arrive as nested JSON and are flattened to dotted keys.
func normalizeExportItem(item billing.Item, day time.Time, provider string) (RawRecord, error) {
	if item.InstanceID == "" {
		return RawRecord{}, fmt.Errorf("line has no resource id")
	}

	start := day
	if item.BillingDate != "" {
		parsed, err := time.Parse(dateutils.LayoutDate, item.BillingDate)
		if err != nil {
			return RawRecord{}, fmt.Errorf("bad billing date %q: %w", item.BillingDate, err)
		}
		start = parsed.UTC()
	}

	rec := RawRecord{
		ResourceID: item.InstanceID,
		StartDate:  start,
		EndDate:    dateutils.NextDay(start),
		Cost:       item.Cost,
		Attrs: map[string]string{
			AttrItemType:     item.ItemType,
			AttrRegion:       item.Region,
			AttrNickName:     item.NickName,
			AttrService:      item.ProductName,
			AttrProduct:      item.ProductCode,
			AttrResourceType: item.ProductType,
		},
		Metrics: map[string]float64{},
	}

	if item.Tag != "" {
		var nested map[string]interface{}
		if err := json.Unmarshal([]byte(item.Tag), &nested); err != nil {
			logger.Warn("unparseable tag payload, skipping tags",
				zap.String("provider", provider),
				zap.String("instance_id", item.InstanceID),
				zap.Error(err))
		} else if flat := FlattenTags(nested); len(flat) > 0 {
			rec.Attrs[AttrTags] = EncodeTags(flat)
		}
	}

	return rec, nil
}

func exportResourceInfo(rec RawRecord) ResourceInfo {
	info := ResourceInfo{
		Name:         rec.Attrs[AttrNickName],
		ResourceType: rec.Attrs[AttrResourceType],
		Region:       rec.Attrs[AttrRegion],
		Service:      rec.Attrs[AttrService],
		Tags:         DecodeTags(rec.Attrs[AttrTags]),
	}
	if info.ResourceType == "" {
		info.ResourceType = rec.Attrs[AttrProduct]
	}
	return info
}
