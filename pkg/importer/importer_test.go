package importer

import (
	"context"
	"errors"
	"math"
	"testing"

	"costscan/internal/models"

	"gorm.io/datatypes"
)

type importerFixture struct {
	raw      *fakeRawStore
	agg      *fakeAggStore
	registry *fakeRegistry
	accounts *fakeAccountStore
	tasks    *fakeTaskStore
	notifier *fakeNotifier
	importer *ReportImporter
}

func newImporterFixture() *importerFixture {
	f := &importerFixture{
		raw:      &fakeRawStore{},
		agg:      newFakeAggStore(),
		registry: newFakeRegistry(),
		accounts: &fakeAccountStore{},
		tasks:    &fakeTaskStore{},
		notifier: &fakeNotifier{},
	}
	factory := NewAdapterFactory(nil, f.registry)
	f.importer = NewReportImporter(f.raw, f.agg, f.registry, f.accounts, f.tasks, f.notifier, factory, testImporterConfig())
	return f
}

func TestImportReportEnvironmentEndToEnd(t *testing.T) {
	f := newImporterFixture()
	f.registry.cloudIDs = []string{"env-1"}

	account := testAccount(models.KindEnvironment)
	account.Config = datatypes.JSON(`{"cost_model":{"hourly_price":0.5}}`)

	result, err := f.importer.ImportReport(context.Background(), account)
	if err != nil {
		t.Fatalf("ImportReport failed: %v", err)
	}

	if result.RecordsUpserted != 1 {
		t.Errorf("expected 1 record for the registered resource, got %d", result.RecordsUpserted)
	}
	if len(f.accounts.attempts) != 1 || len(f.accounts.successes) != 1 {
		t.Errorf("watermark bookkeeping wrong: %d attempts, %d successes",
			len(f.accounts.attempts), len(f.accounts.successes))
	}
	if len(f.accounts.failures) != 0 {
		t.Errorf("successful run must not record a failure: %v", f.accounts.failures)
	}

	// Import task plus the two downstream follow-up tasks
	if len(f.tasks.created) != 3 {
		t.Fatalf("expected 3 task records, got %d", len(f.tasks.created))
	}
	if f.tasks.created[0].Status != models.TaskStatusCompleted {
		t.Errorf("import task must complete, got %s", f.tasks.created[0].Status)
	}
	types := map[string]bool{}
	for _, task := range f.tasks.created[1:] {
		types[task.Type] = true
		if task.Status != models.TaskStatusPending {
			t.Errorf("follow-up task must start pending, got %s", task.Status)
		}
	}
	if !types[models.TaskTypeTraffic] || !types[models.TaskTypeRISP] {
		t.Errorf("expected traffic and risp follow-ups, got %v", types)
	}

	// Raw and ledger agree, so no mismatch alert fires
	if len(f.notifier.messages) != 0 {
		t.Errorf("unexpected mismatch alert: %v", f.notifier.messages)
	}

	if f.registry.resources["env-1"] == nil {
		t.Error("resource must be registered during generation")
	}
}

func TestImportReportDisabledAccount(t *testing.T) {
	f := newImporterFixture()

	account := testAccount(models.KindEnvironment)
	account.Enabled = false

	_, err := f.importer.ImportReport(context.Background(), account)
	if !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("expected ErrAccountDisabled, got %v", err)
	}
	if len(f.accounts.attempts) != 0 {
		t.Error("disabled account must not record an attempt")
	}
}

func TestImportReportUnsupportedKindFailsRun(t *testing.T) {
	f := newImporterFixture()

	account := testAccount(models.CloudKind("mystery"))

	_, err := f.importer.ImportReport(context.Background(), account)
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("expected ErrUnsupportedKind, got %v", err)
	}

	if len(f.accounts.failures) != 1 {
		t.Errorf("failed run must land on the account, got %v", f.accounts.failures)
	}
	if len(f.accounts.successes) != 0 {
		t.Error("failed run must not advance the watermark")
	}
	if len(f.tasks.created) != 1 || f.tasks.created[0].Status != models.TaskStatusFailed {
		t.Errorf("task must be marked failed, got %+v", f.tasks.created)
	}
}

func TestRecalculateRequiresCostModel(t *testing.T) {
	f := newImporterFixture()

	err := f.importer.RecalculateRawExpenses(context.Background(), testAccount(models.KindEnvironment))
	if !errors.Is(err, ErrNoCostModel) {
		t.Errorf("expected ErrNoCostModel, got %v", err)
	}
}

func TestSanityCheckAlertsOnMismatch(t *testing.T) {
	f := newImporterFixture()

	run := NewRunContext(testAccount(models.KindEnvironment), day("2026-08-15"))
	run.Touch(day("2026-08-10"))
	run.RawCostTotal = 100

	// The ledger only carries half of what the raw import counted
	f.agg.sums[ResourceDay{ResourceID: "env-1", Day: day("2026-08-10")}] = 50

	f.importer.sanityCheck(context.Background(), run)

	if len(f.notifier.messages) != 1 {
		t.Fatalf("expected one mismatch alert, got %d", len(f.notifier.messages))
	}
}

func TestSanityCheckStaysQuietWithinThreshold(t *testing.T) {
	f := newImporterFixture()

	run := NewRunContext(testAccount(models.KindEnvironment), day("2026-08-15"))
	run.Touch(day("2026-08-10"))
	run.RawCostTotal = 100

	f.agg.sums[ResourceDay{ResourceID: "env-1", Day: day("2026-08-10")}] = 100.5

	f.importer.sanityCheck(context.Background(), run)

	if len(f.notifier.messages) != 0 {
		t.Errorf("sub-threshold diff must not alert: %v", f.notifier.messages)
	}
}

func TestRepriceByCostModel(t *testing.T) {
	model := &models.CostModel{
		HourlyPrice: 0.1,
		CPUHourly:   0.02,
		MemGBHourly: 0.005,
	}
	reprice := repriceByCostModel(model)

	usageRec := RawRecord{
		ResourceID: "pod-1",
		Cost:       1.0,
		Metrics:    map[string]float64{"cpu_hours": 10, "mem_gb_hours": 20, "hours": 5},
	}
	// 10*0.02 + 20*0.005 + 5*0.1 = 0.2 + 0.1 + 0.5
	if got := reprice(usageRec); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("expected repriced 0.8, got %v", got)
	}

	billedRec := RawRecord{ResourceID: "i-1", Cost: 3.5}
	if got := reprice(billedRec); got != 3.5 {
		t.Errorf("records without metrics must keep their cost, got %v", got)
	}
}
