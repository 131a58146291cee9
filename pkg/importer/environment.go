package importer

import (
	"context"
	"time"

	"costscan/internal/models"
	"costscan/pkg/utils/dateutils"
)

const itemTypeUsage = "usage"

// EnvironmentAdapter synthesizes expenses for on-prem environment accounts:
// every registered resource is billed its cost-model hourly price for each
// hour of the day. There is no provider report, so there is nothing to
// widen on first import and nothing can be not-ready.
type EnvironmentAdapter struct {
	registry ResourceRegistry
}

var _ ProviderAdapter = (*EnvironmentAdapter)(nil)

func NewEnvironmentAdapter(registry ResourceRegistry) *EnvironmentAdapter {
	return &EnvironmentAdapter{registry: registry}
}

func (a *EnvironmentAdapter) Kind() models.CloudKind { return models.KindEnvironment }

func (a *EnvironmentAdapter) UniqueFields() []string {
	return []string{FieldCloudAccountID, FieldResourceID, FieldStartDate}
}

func (a *EnvironmentAdapter) UpdateFields() []string { return []string{FieldCost, "hours"} }

func (a *EnvironmentAdapter) DisambiguateWithRecN() bool { return false }

func (a *EnvironmentAdapter) NeedsInitialWidening() bool { return false }

func (a *EnvironmentAdapter) BillingItems(ctx context.Context, run *RunContext, day time.Time) ([]RawRecord, error) {
	model, err := run.Account.GetCostModel()
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, ErrNoCostModel
	}

	ids, err := a.registry.ListCloudResourceIDs(ctx, run.Account.ID)
	if err != nil {
		return nil, err
	}

	hours := billableHours(day, run.Now)
	if hours <= 0 {
		return nil, nil
	}

	records := make([]RawRecord, 0, len(ids))
	for _, id := range ids {
		price := model.HourlyPriceFor(id)
		if price == 0 {
			continue
		}
		records = append(records, RawRecord{
			ResourceID: id,
			StartDate:  day,
			EndDate:    dateutils.NextDay(day),
			Cost:       price * hours,
			Attrs: map[string]string{
				AttrItemType:     itemTypeUsage,
				AttrResourceType: "Environment",
			},
			Metrics: map[string]float64{"hours": hours},
		})
	}
	return records, nil
}

func (a *EnvironmentAdapter) ResourceInfoFromRecord(rec RawRecord) ResourceInfo {
	return ResourceInfo{
		Name:         rec.ResourceID,
		ResourceType: rec.Attrs[AttrResourceType],
	}
}

// billableHours returns how many hours of day have elapsed by now, capped
// at a full day. Days entirely in the future bill nothing.
func billableHours(day, now time.Time) float64 {
	start := dateutils.StartOfDay(day)
	if !now.After(start) {
		return 0
	}
	hours := now.Sub(start).Hours()
	if hours > 24 {
		return 24
	}
	return hours
}
