package importer

import (
	"context"
	"math"
	"testing"

	"costscan/internal/models"
	"costscan/pkg/billing"
)

func alibabaRun() *RunContext {
	run := NewRunContext(testAccount(models.KindAlibaba), day("2026-08-15"))
	run.PeriodStart = day("2026-08-01")
	return run
}

func TestAlibabaNormalizeBillingLine(t *testing.T) {
	source := &fakeBillingSource{
		items: map[string][]billing.Item{
			"2026-08-01": {{
				InstanceID:       "i-abc",
				NickName:         "web-1",
				BillingDate:      "2026-08-01",
				ProductCode:      "ecs",
				ProductName:      "Elastic Compute",
				ProductDetail:    "ecs.g6.large",
				BillingItem:      "Cloud server configuration",
				ItemType:         "SubscriptionOrder",
				SubscriptionType: "PayAsYouGo",
				Region:           "cn-hangzhou",
				Zone:             "cn-hangzhou-b",
				Tag:              "key:env value:prod",
				Usage:            "24",
				Cost:             3.5,
			}},
		},
		diskOwners: map[string]string{},
	}

	adapter := NewAlibabaAdapter(source)
	records, err := adapter.BillingItems(context.Background(), alibabaRun(), day("2026-08-01"))
	if err != nil {
		t.Fatalf("BillingItems failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.ResourceID != "i-abc" {
		t.Errorf("expected resource id i-abc, got %s", rec.ResourceID)
	}
	if !rec.StartDate.Equal(day("2026-08-01")) || !rec.EndDate.Equal(day("2026-08-02")) {
		t.Errorf("record must span one day, got [%v, %v]", rec.StartDate, rec.EndDate)
	}
	if rec.Cost != 3.5 {
		t.Errorf("expected cost 3.5, got %v", rec.Cost)
	}
	if rec.Attrs[attrZone] != "cn-hangzhou-b" || rec.Attrs[attrSubscriptionType] != "PayAsYouGo" {
		t.Errorf("provider attrs missing: %v", rec.Attrs)
	}
	if rec.Metrics["usage"] != 24 {
		t.Errorf("expected usage metric 24, got %v", rec.Metrics)
	}
	tags := DecodeTags(rec.Attrs[AttrTags])
	if tags["env"] != "prod" {
		t.Errorf("tags not parsed: %v", tags)
	}
}

func TestAlibabaSyntheticResourceID(t *testing.T) {
	source := &fakeBillingSource{
		items: map[string][]billing.Item{
			"2026-08-01": {{
				ProductCode: "cdn",
				Region:      "cn-hangzhou",
				Cost:        1.2,
			}},
		},
		diskOwners: map[string]string{},
	}

	adapter := NewAlibabaAdapter(source)
	records, err := adapter.BillingItems(context.Background(), alibabaRun(), day("2026-08-01"))
	if err != nil {
		t.Fatalf("BillingItems failed: %v", err)
	}
	if records[0].ResourceID != "cdn-cn-hangzhou" {
		t.Errorf("product line must get a synthetic id, got %s", records[0].ResourceID)
	}
}

func TestAlibabaSystemDiskReattribution(t *testing.T) {
	source := &fakeBillingSource{
		items: map[string][]billing.Item{
			"2026-08-01": {{InstanceID: "d-disk1", ProductCode: "ecs", Cost: 0.4}},
			"2026-08-02": {{InstanceID: "d-disk1", ProductCode: "ecs", Cost: 0.4}},
		},
		diskOwners: map[string]string{"d-disk1": "i-owner"},
	}

	adapter := NewAlibabaAdapter(source)
	run := alibabaRun()

	records, err := adapter.BillingItems(context.Background(), run, day("2026-08-01"))
	if err != nil {
		t.Fatalf("BillingItems failed: %v", err)
	}
	if records[0].ResourceID != "i-owner" {
		t.Errorf("system disk cost must move to the owning instance, got %s", records[0].ResourceID)
	}
	if records[0].Attrs[attrSourceDiskID] != "d-disk1" {
		t.Errorf("original disk id must survive as attr, got %v", records[0].Attrs)
	}

	if _, err := adapter.BillingItems(context.Background(), run, day("2026-08-02")); err != nil {
		t.Fatalf("BillingItems failed: %v", err)
	}
	if source.diskCalls != 1 {
		t.Errorf("disk owners must be fetched once per run, got %d calls", source.diskCalls)
	}
}

func TestAlibabaSystemDiskLookupDegrades(t *testing.T) {
	source := &fakeBillingSource{
		items: map[string][]billing.Item{
			"2026-08-01": {{InstanceID: "d-disk1", ProductCode: "ecs", Cost: 0.4}},
		},
		diskErr: &billing.APIError{Code: "InternalError", Message: "boom"},
	}

	adapter := NewAlibabaAdapter(source)
	records, err := adapter.BillingItems(context.Background(), alibabaRun(), day("2026-08-01"))
	if err != nil {
		t.Fatalf("lookup failure must degrade, not fail: %v", err)
	}
	if records[0].ResourceID != "d-disk1" {
		t.Errorf("without owner data the disk keeps its own id, got %s", records[0].ResourceID)
	}
}

func TestAlibabaSnapshotSplitConservesCost(t *testing.T) {
	source := &fakeBillingSource{
		items: map[string][]billing.Item{
			"2026-08-01": {{
				ProductCode: "snapshot",
				Region:      "cn-hangzhou",
				Cost:        10.0,
			}},
		},
		diskOwners: map[string]string{},
		chains: map[string][]billing.SnapshotChain{
			"cn-hangzhou": {
				{ChainID: "sl-1", SourceDiskID: "d-1", SizeBytes: 1},
				{ChainID: "sl-2", SourceDiskID: "d-2", SizeBytes: 1},
				{ChainID: "sl-3", SourceDiskID: "d-3", SizeBytes: 1},
			},
		},
	}

	adapter := NewAlibabaAdapter(source)
	records, err := adapter.BillingItems(context.Background(), alibabaRun(), day("2026-08-01"))
	if err != nil {
		t.Fatalf("BillingItems failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected one record per chain, got %d", len(records))
	}

	var total float64
	for _, rec := range records {
		total += rec.Cost
		if rec.Attrs[AttrResourceType] != SnapshotChainType {
			t.Errorf("chain record missing type attr: %v", rec.Attrs)
		}
	}
	// 10/3 does not divide evenly; the last chain must absorb the remainder
	if math.Abs(total-10.0) > 1e-9 {
		t.Errorf("split must conserve the regional total exactly, got %v", total)
	}
	if records[0].ResourceID != "sl-1" || records[2].ResourceID != "sl-3" {
		t.Errorf("chain ids must become resource ids, got %s %s", records[0].ResourceID, records[2].ResourceID)
	}
	if records[0].Attrs[attrSourceDiskID] != "d-1" {
		t.Errorf("source disk must survive as attr, got %v", records[0].Attrs)
	}
}

func TestAlibabaSnapshotFallbackWithoutChains(t *testing.T) {
	source := &fakeBillingSource{
		items: map[string][]billing.Item{
			"2026-08-01": {{
				ProductCode: "snapshot",
				Region:      "cn-hangzhou",
				Cost:        10.0,
			}},
		},
		diskOwners: map[string]string{},
		chainsErr:  &billing.APIError{Code: "InternalError", Message: "boom"},
	}

	adapter := NewAlibabaAdapter(source)
	records, err := adapter.BillingItems(context.Background(), alibabaRun(), day("2026-08-01"))
	if err != nil {
		t.Fatalf("BillingItems failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one fallback record, got %d", len(records))
	}

	rec := records[0]
	if rec.ResourceID != "snapshot-chain-cn-hangzhou" {
		t.Errorf("fallback must use the regional id, got %s", rec.ResourceID)
	}
	if rec.Cost != 10.0 {
		t.Errorf("fallback carries the full regional cost, got %v", rec.Cost)
	}
	if rec.Attrs[AttrResourceType] != SnapshotChainType {
		t.Errorf("fallback must be typed as a snapshot chain, got %v", rec.Attrs)
	}
}

func TestAlibabaNotReadyMapsToSoftCancel(t *testing.T) {
	source := &fakeBillingSource{
		itemsErr: &billing.DataNotReadyError{BillingDate: "2026-08-15"},
	}

	adapter := NewAlibabaAdapter(source)
	_, err := adapter.BillingItems(context.Background(), alibabaRun(), day("2026-08-15"))
	if !IsNotReady(err) {
		t.Errorf("expected not-ready signal, got %v", err)
	}
}

func TestAlibabaAuthErrorIsFatal(t *testing.T) {
	source := &fakeBillingSource{
		itemsErr: &billing.APIError{Code: "InvalidAccessKeyId", Message: "bad key"},
	}

	adapter := NewAlibabaAdapter(source)
	_, err := adapter.BillingItems(context.Background(), alibabaRun(), day("2026-08-15"))
	if !IsFatal(err) {
		t.Errorf("expected fatal error for bad credentials, got %v", err)
	}
}

func TestAlibabaPostProcessRoundDownDiscounts(t *testing.T) {
	source := &fakeBillingSource{
		discounts: map[string][]billing.Discount{
			"2026-06": {
				{InstanceID: "i-abc", Amount: 1.25},
				{InstanceID: "i-zero", Amount: 0},
			},
			"2026-07": {
				{InstanceID: "i-abc", Amount: 0.75},
			},
		},
	}

	adapter := NewAlibabaAdapter(source)
	run := NewRunContext(testAccount(models.KindAlibaba), day("2026-08-15"))
	run.PeriodStart = day("2026-06-01")

	records, err := adapter.PostProcess(context.Background(), run)
	if err != nil {
		t.Fatalf("PostProcess failed: %v", err)
	}

	// June and July are fully elapsed; August is not. Zero amounts are skipped.
	if len(records) != 2 {
		t.Fatalf("expected 2 discount records, got %d", len(records))
	}
	if records[0].Cost != -1.25 || !records[0].StartDate.Equal(day("2026-06-30")) {
		t.Errorf("June discount wrong: %+v", records[0])
	}
	if records[1].Cost != -0.75 || !records[1].StartDate.Equal(day("2026-07-31")) {
		t.Errorf("July discount wrong: %+v", records[1])
	}
	for _, rec := range records {
		if rec.Attrs[AttrItemType] != itemTypeRoundDownDiscount {
			t.Errorf("discount records must carry the discount item type: %v", rec.Attrs)
		}
	}
}

func TestAlibabaPostProcessNoFullMonths(t *testing.T) {
	adapter := NewAlibabaAdapter(&fakeBillingSource{})
	run := NewRunContext(testAccount(models.KindAlibaba), day("2026-08-15"))
	run.PeriodStart = day("2026-08-05")

	records, err := adapter.PostProcess(context.Background(), run)
	if err != nil {
		t.Fatalf("PostProcess failed: %v", err)
	}
	if records != nil {
		t.Errorf("window without a full month must produce nothing, got %v", records)
	}
}

func TestAlibabaResourceInfoTypeFallback(t *testing.T) {
	adapter := NewAlibabaAdapter(nil)

	rec := RawRecord{Attrs: map[string]string{
		AttrProduct:       "ecs",
		attrProductDetail: "ecs.g6.large",
	}}
	if got := adapter.ResourceInfoFromRecord(rec).ResourceType; got != "ecs.g6.large" {
		t.Errorf("product detail should win as type, got %s", got)
	}

	rec = RawRecord{Attrs: map[string]string{AttrProduct: "cdn"}}
	if got := adapter.ResourceInfoFromRecord(rec).ResourceType; got != "cdn" {
		t.Errorf("product code is the last fallback, got %s", got)
	}
}
