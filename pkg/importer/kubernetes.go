package importer

import (
	"context"
	"fmt"
	"time"

	"costscan/internal/models"
	"costscan/pkg/billing"
	"costscan/pkg/utils/dateutils"
)

const (
	attrNamespace = "namespace"
	podKind       = "pod"
)

// KubernetesAdapter prices collector-reported pod usage through the
// account's cost model: cpu-hours and memory-gb-hours each carry their own
// rate, plus an optional flat hourly price per pod.
type KubernetesAdapter struct {
	source billing.UsageSource
}

var _ ProviderAdapter = (*KubernetesAdapter)(nil)

func NewKubernetesAdapter(source billing.UsageSource) *KubernetesAdapter {
	return &KubernetesAdapter{source: source}
}

func (a *KubernetesAdapter) Kind() models.CloudKind { return models.KindKubernetes }

func (a *KubernetesAdapter) UniqueFields() []string {
	return []string{FieldCloudAccountID, FieldResourceID, FieldStartDate, attrNamespace}
}

func (a *KubernetesAdapter) UpdateFields() []string {
	return []string{FieldCost, "cpu_hours", "mem_gb_hours"}
}

func (a *KubernetesAdapter) DisambiguateWithRecN() bool { return false }

func (a *KubernetesAdapter) NeedsInitialWidening() bool { return true }

func (a *KubernetesAdapter) BillingItems(ctx context.Context, run *RunContext, day time.Time) ([]RawRecord, error) {
	model, err := run.Account.GetCostModel()
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, ErrNoCostModel
	}

	usage, err := a.source.RawUsage(ctx, podKind, day, dateutils.NextDay(day))
	if err != nil {
		if billing.IsDataNotReady(err) {
			return nil, &ReportNotReadyError{Day: day}
		}
		return nil, fmt.Errorf("failed to pull pod usage: %w", err)
	}

	records := make([]RawRecord, 0, len(usage))
	for _, u := range usage {
		cost := u.CPUHours*model.CPUHourly +
			u.MemGBHours*model.MemGBHourly +
			u.Hours*model.HourlyPriceFor(u.ResourceID)

		rec := RawRecord{
			ResourceID: u.ResourceID,
			StartDate:  day,
			EndDate:    dateutils.NextDay(day),
			Cost:       cost,
			Attrs: map[string]string{
				AttrItemType:     itemTypeUsage,
				AttrNickName:     u.Name,
				AttrResourceType: u.Kind,
				attrNamespace:    u.Labels["namespace"],
			},
			Metrics: map[string]float64{
				"cpu_hours":    u.CPUHours,
				"mem_gb_hours": u.MemGBHours,
				"hours":        u.Hours,
			},
		}
		if len(u.Labels) > 0 {
			rec.Attrs[AttrTags] = EncodeTags(u.Labels)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (a *KubernetesAdapter) ResourceInfoFromRecord(rec RawRecord) ResourceInfo {
	return ResourceInfo{
		Name:         rec.Attrs[AttrNickName],
		ResourceType: rec.Attrs[AttrResourceType],
		Service:      rec.Attrs[attrNamespace],
		Tags:         DecodeTags(rec.Attrs[AttrTags]),
	}
}
