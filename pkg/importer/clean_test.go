package importer

import (
	"context"
	"testing"
	"time"

	"costscan/internal/models"
)

func newGeneratorFixtures() (*fakeRawStore, *fakeAggStore, *fakeRegistry, *CleanExpenseGenerator) {
	raw := &fakeRawStore{}
	agg := newFakeAggStore()
	reg := newFakeRegistry()
	gen := NewCleanExpenseGenerator(raw, agg, reg, testImporterConfig())
	return raw, agg, reg, gen
}

func TestGenerateInitialInsert(t *testing.T) {
	raw, agg, reg, gen := newGeneratorFixtures()

	d1 := day("2026-08-01")
	d2 := day("2026-08-02")
	raw.resourceIDs = []string{"i-1"}
	raw.groups = []ResourceExpenses{{
		ResourceID: "i-1",
		Days:       map[time.Time]float64{d1: 10, d2: 12},
		Last: RawRecord{
			ResourceID: "i-1",
			StartDate:  d2,
			Attrs:      map[string]string{AttrNickName: "web-1", AttrRegion: "cn-hangzhou"},
		},
	}}

	run := newTestRun(testAccount(models.KindAlibaba), d1, d2)
	result, err := gen.Generate(context.Background(), run, newFakeAdapter(), false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if result.Inserted != 2 || result.Corrected != 0 {
		t.Errorf("expected 2 inserts and no corrections, got %+v", result)
	}
	for _, row := range agg.inserted {
		if row.Sign != 1 {
			t.Errorf("initial generation must only insert positive rows, got %+v", row)
		}
	}
	if agg.sums[ResourceDay{ResourceID: "i-1", Day: d1}] != 10 {
		t.Errorf("ledger sum for day 1 wrong: %v", agg.sums)
	}

	res := reg.resources["i-1"]
	if res == nil {
		t.Fatal("resource was not registered")
	}
	updates := reg.summaries[res.ID]
	if len(updates) != 1 {
		t.Fatalf("expected one summary update, got %d", len(updates))
	}
	if updates[0].totalCost != 22 || !updates[0].lastDate.Equal(d2) || updates[0].lastCost != 12 {
		t.Errorf("summary update wrong: %+v", updates[0])
	}
}

func TestGenerateCorrectsChangedDay(t *testing.T) {
	raw, agg, reg, gen := newGeneratorFixtures()

	d1 := day("2026-08-01")
	raw.resourceIDs = []string{"i-1"}
	raw.groups = []ResourceExpenses{{
		ResourceID: "i-1",
		Days:       map[time.Time]float64{d1: 15},
		Last:       RawRecord{ResourceID: "i-1", StartDate: d1, Attrs: map[string]string{}},
	}}

	// Prior run booked 10 for the same day
	agg.sums[ResourceDay{ResourceID: "i-1", Day: d1}] = 10
	reg.resources["i-1"] = &models.Resource{ID: "res-i-1", CloudResourceID: "i-1", TotalCost: 10}

	run := newTestRun(testAccount(models.KindAlibaba), d1, d1)
	result, err := gen.Generate(context.Background(), run, newFakeAdapter(), false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if result.Corrected != 1 || result.Inserted != 1 {
		t.Errorf("expected one paired correction, got %+v", result)
	}
	if len(agg.inserted) != 2 {
		t.Fatalf("expected a retraction plus an insert, got %d rows", len(agg.inserted))
	}
	if agg.inserted[0].Sign != -1 || agg.inserted[0].Cost != 10 {
		t.Errorf("retraction row wrong: %+v", agg.inserted[0])
	}
	if agg.inserted[1].Sign != 1 || agg.inserted[1].Cost != 15 {
		t.Errorf("fresh row wrong: %+v", agg.inserted[1])
	}

	if got := agg.sums[ResourceDay{ResourceID: "i-1", Day: d1}]; got != 15 {
		t.Errorf("signed sum must read the fresh value, got %v", got)
	}

	updates := reg.summaries["res-i-1"]
	if len(updates) != 1 || updates[0].totalCost != 15 {
		t.Errorf("summary must fold the +5 delta, got %+v", updates)
	}
}

func TestGenerateSkipsWithinTolerance(t *testing.T) {
	raw, agg, reg, gen := newGeneratorFixtures()

	d1 := day("2026-08-01")
	raw.resourceIDs = []string{"i-1"}
	raw.groups = []ResourceExpenses{{
		ResourceID: "i-1",
		Days:       map[time.Time]float64{d1: 10.00005},
		Last:       RawRecord{ResourceID: "i-1", StartDate: d1, Attrs: map[string]string{}},
	}}
	agg.sums[ResourceDay{ResourceID: "i-1", Day: d1}] = 10.0
	reg.resources["i-1"] = &models.Resource{ID: "res-i-1", CloudResourceID: "i-1", TotalCost: 10}

	run := newTestRun(testAccount(models.KindAlibaba), d1, d1)
	result, err := gen.Generate(context.Background(), run, newFakeAdapter(), false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if result.Inserted != 0 || result.Corrected != 0 {
		t.Errorf("sub-tolerance diff must not generate rows, got %+v", result)
	}
	if len(reg.summaries["res-i-1"]) != 0 {
		t.Error("sub-tolerance diff must not touch the summary")
	}
}

func TestGenerateBackfillKeepsLastExpenseForward(t *testing.T) {
	raw, _, reg, gen := newGeneratorFixtures()

	old := day("2026-07-15")
	raw.resourceIDs = []string{"i-1"}
	raw.groups = []ResourceExpenses{{
		ResourceID: "i-1",
		Days:       map[time.Time]float64{old: 3},
		Last:       RawRecord{ResourceID: "i-1", StartDate: old, Attrs: map[string]string{}},
	}}

	// The resource already saw a newer expense in a previous run
	newer := day("2026-08-10")
	reg.resources["i-1"] = &models.Resource{
		ID:              "res-i-1",
		CloudResourceID: "i-1",
		TotalCost:       50,
		LastExpenseDate: &newer,
		LastExpenseCost: 7,
	}

	run := newTestRun(testAccount(models.KindAlibaba), old, day("2026-08-11"))
	if _, err := gen.Generate(context.Background(), run, newFakeAdapter(), false); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	updates := reg.summaries["res-i-1"]
	if len(updates) != 1 {
		t.Fatalf("expected one summary update, got %d", len(updates))
	}
	if updates[0].totalCost != 53 {
		t.Errorf("total must fold the backfilled delta, got %v", updates[0].totalCost)
	}
	if !updates[0].lastDate.Equal(newer) || updates[0].lastCost != 7 {
		t.Errorf("backfill must not roll the last expense backwards, got %+v", updates[0])
	}
}

func TestGenerateRegistersResourceFromLastRecord(t *testing.T) {
	raw, _, reg, gen := newGeneratorFixtures()

	d1 := day("2026-08-01")
	d2 := day("2026-08-02")
	raw.resourceIDs = []string{"i-1"}
	raw.groups = []ResourceExpenses{{
		ResourceID: "i-1",
		Days:       map[time.Time]float64{d1: 1, d2: 2},
		Last: RawRecord{
			ResourceID: "i-1",
			StartDate:  d2,
			Attrs: map[string]string{
				AttrNickName:     "renamed",
				AttrRegion:       "eu-west-1",
				AttrResourceType: "ecs",
			},
		},
	}}

	run := newTestRun(testAccount(models.KindAlibaba), d1, d2)
	if _, err := gen.Generate(context.Background(), run, newFakeAdapter(), false); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	res := reg.resources["i-1"]
	if res == nil {
		t.Fatal("resource was not registered")
	}
	if res.Name != "renamed" || res.Region != "eu-west-1" || res.ResourceType != "ecs" {
		t.Errorf("resource info must come from the last record, got %+v", res)
	}
}
