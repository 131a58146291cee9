package importer

import (
	"testing"
)

func TestMergeSameBillingItems(t *testing.T) {
	unique := []string{FieldResourceID, FieldStartDate, AttrItemType}
	update := []string{FieldCost, "usage"}

	d := day("2026-08-01")
	items := []RawRecord{
		{ResourceID: "i-1", StartDate: d, Cost: 1.5, Attrs: map[string]string{AttrItemType: "usage"}, Metrics: map[string]float64{"usage": 2}},
		{ResourceID: "i-2", StartDate: d, Cost: 3.0, Attrs: map[string]string{AttrItemType: "usage"}, Metrics: map[string]float64{"usage": 1}},
		{ResourceID: "i-1", StartDate: d, Cost: 2.5, Attrs: map[string]string{AttrItemType: "usage"}, Metrics: map[string]float64{"usage": 4}},
	}

	merged := MergeSameBillingItems(items, unique, update)

	if len(merged) != 2 {
		t.Fatalf("expected 2 merged records, got %d", len(merged))
	}
	if merged[0].ResourceID != "i-1" {
		t.Errorf("merge must preserve first-seen order, got %s first", merged[0].ResourceID)
	}
	if merged[0].Cost != 4.0 {
		t.Errorf("expected summed cost 4.0, got %v", merged[0].Cost)
	}
	if merged[0].Metrics["usage"] != 6 {
		t.Errorf("expected summed usage 6, got %v", merged[0].Metrics["usage"])
	}
	if merged[1].Cost != 3.0 {
		t.Errorf("unrelated record must stay untouched, got cost %v", merged[1].Cost)
	}
}

func TestMergeSameBillingItemsKeepsInputIntact(t *testing.T) {
	unique := []string{FieldResourceID, FieldStartDate}
	d := day("2026-08-01")

	items := []RawRecord{
		{ResourceID: "i-1", StartDate: d, Cost: 1, Metrics: map[string]float64{"usage": 1}},
		{ResourceID: "i-1", StartDate: d, Cost: 2, Metrics: map[string]float64{"usage": 2}},
	}

	merged := MergeSameBillingItems(items, unique, []string{FieldCost, "usage"})

	if merged[0].Metrics["usage"] != 3 {
		t.Errorf("expected merged usage 3, got %v", merged[0].Metrics["usage"])
	}
	if items[0].Metrics["usage"] != 1 {
		t.Errorf("merge must not write into the caller's records, got usage %v", items[0].Metrics["usage"])
	}
}

func TestMergeSameBillingItemsDistinctKeys(t *testing.T) {
	unique := []string{FieldResourceID, AttrItemType}

	items := []RawRecord{
		{ResourceID: "i-1", Cost: 1, Attrs: map[string]string{AttrItemType: "usage"}},
		{ResourceID: "i-1", Cost: 2, Attrs: map[string]string{AttrItemType: "discount"}},
	}

	merged := MergeSameBillingItems(items, unique, []string{FieldCost})
	if len(merged) != 2 {
		t.Fatalf("records differing in item type must not merge, got %d", len(merged))
	}
}

func TestMergeSameBillingItemsSmallBatch(t *testing.T) {
	items := []RawRecord{{ResourceID: "i-1", Cost: 1}}
	merged := MergeSameBillingItems(items, []string{FieldResourceID}, []string{FieldCost})
	if len(merged) != 1 || merged[0].Cost != 1 {
		t.Errorf("single-record batch must pass through unchanged")
	}
}

func TestAssignRecNumbers(t *testing.T) {
	unique := []string{FieldResourceID, FieldStartDate}
	d := day("2026-08-02")

	items := []RawRecord{
		{ResourceID: "i-1", StartDate: d},
		{ResourceID: "i-1", StartDate: d},
		{ResourceID: "i-2", StartDate: d},
		{ResourceID: "i-1", StartDate: d},
	}

	out := AssignRecNumbers(items, unique)

	want := []int{0, 1, 0, 2}
	for i, rec := range out {
		if rec.RecN != want[i] {
			t.Errorf("record %d: expected rec_n %d, got %d", i, want[i], rec.RecN)
		}
	}
}

func TestUniqueHashDistinguishesRecN(t *testing.T) {
	unique := []string{FieldResourceID, FieldStartDate}
	d := day("2026-08-03")

	a := RawRecord{ResourceID: "i-1", StartDate: d, RecN: 0}
	b := RawRecord{ResourceID: "i-1", StartDate: d, RecN: 1}

	if a.UniqueKey(unique) != b.UniqueKey(unique) {
		t.Error("rec_n must not alter the logical grouping key")
	}
	if a.UniqueHash(unique) == b.UniqueHash(unique) {
		t.Error("rec_n must alter the upsert hash")
	}

	refetched := RawRecord{ResourceID: "i-1", StartDate: d, RecN: 1}
	if b.UniqueHash(unique) != refetched.UniqueHash(unique) {
		t.Error("identical records must hash identically across runs")
	}
}

func TestFieldValueFallsBackToAttrs(t *testing.T) {
	rec := RawRecord{
		CloudAccountID: "acc-1",
		ResourceID:     "i-1",
		Attrs:          map[string]string{"zone": "cn-hangzhou-b"},
	}

	if got := rec.FieldValue(FieldCloudAccountID); got != "acc-1" {
		t.Errorf("expected acc-1, got %s", got)
	}
	if got := rec.FieldValue("zone"); got != "cn-hangzhou-b" {
		t.Errorf("expected attr lookup for zone, got %s", got)
	}
	if got := rec.FieldValue("missing"); got != "" {
		t.Errorf("missing attr must resolve to empty, got %s", got)
	}
}
