package importer

import (
	"context"
	"time"

	"costscan/internal/models"
	"costscan/pkg/billing"
	"costscan/pkg/logger"

	"go.uber.org/zap"
)

const attrSKUID = "sku_id"

// NebiusAdapter imports exported Nebius billing lines. Like Azure, one
// logical key can appear several times within one export, so records get
// occurrence numbers instead of being merged.
type NebiusAdapter struct {
	source billing.DailySource
}

var _ ProviderAdapter = (*NebiusAdapter)(nil)

func NewNebiusAdapter(source billing.DailySource) *NebiusAdapter {
	return &NebiusAdapter{source: source}
}

func (a *NebiusAdapter) Kind() models.CloudKind { return models.KindNebius }

func (a *NebiusAdapter) UniqueFields() []string {
	return []string{
		FieldCloudAccountID,
		FieldResourceID,
		FieldStartDate,
		attrSKUID,
		AttrItemType,
	}
}

func (a *NebiusAdapter) UpdateFields() []string { return nil }

func (a *NebiusAdapter) DisambiguateWithRecN() bool { return true }

func (a *NebiusAdapter) NeedsInitialWidening() bool { return true }

func (a *NebiusAdapter) BillingItems(ctx context.Context, run *RunContext, day time.Time) ([]RawRecord, error) {
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
		rec, err := normalizeExportItem(item, day, "nebius")
		if err != nil {
			logger.Warn("skipping malformed billing line",
				zap.String("provider", "nebius"),
				zap.String("instance_id", item.InstanceID),
				zap.Error(err))
			continue
		}
		rec.Attrs[attrSKUID] = item.BillingItem
		records = append(records, rec)
	}
	return records, nil
}

func (a *NebiusAdapter) ResourceInfoFromRecord(rec RawRecord) ResourceInfo {
	return exportResourceInfo(rec)
}
