package importer

import (
	"context"
	"testing"
	"time"

	"costscan/internal/models"
	"costscan/pkg/utils/dateutils"
)

func detectPeriod(t *testing.T, account *models.CloudAccount, now time.Time, adapter ProviderAdapter, agg AggregateStore, raw *fakeRawStore) *RunContext {
	t.Helper()
	run := NewRunContext(account, now)
	detector := NewPeriodDetector(agg, raw, 3)
	if err := detector.Detect(context.Background(), run, adapter); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	return run
}

func TestDetectFirstImportWidens(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	run := detectPeriod(t, testAccount(models.KindAlibaba), now, newFakeAdapter(), newFakeAggStore(), &fakeRawStore{})

	want := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if !run.PeriodStart.Equal(want) {
		t.Errorf("expected widened start %v, got %v", want, run.PeriodStart)
	}
}

func TestDetectFirstImportNoWidening(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	adapter := newFakeAdapter()
	adapter.widening = false

	run := detectPeriod(t, testAccount(models.KindEnvironment), now, adapter, newFakeAggStore(), &fakeRawStore{})

	want := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	if !run.PeriodStart.Equal(want) {
		t.Errorf("expected same-day start %v, got %v", want, run.PeriodStart)
	}
}

func TestDetectSameMonthUsesLatestExpenseDate(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	lastImport := time.Date(2026, 8, 12, 3, 0, 0, 0, time.UTC)
	account := testAccount(models.KindAlibaba)
	account.LastImportAt = &lastImport

	agg := newFakeAggStore()
	latest := time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC)
	agg.latest = &latest

	run := detectPeriod(t, account, now, newFakeAdapter(), agg, &fakeRawStore{})

	if !run.PeriodStart.Equal(latest) {
		t.Errorf("expected latest expense date %v, got %v", latest, run.PeriodStart)
	}
}

func TestDetectSameMonthFirstOfMonthBacksUp(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	lastImport := time.Date(2026, 8, 2, 3, 0, 0, 0, time.UTC)
	account := testAccount(models.KindAlibaba)
	account.LastImportAt = &lastImport

	agg := newFakeAggStore()
	latest := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	agg.latest = &latest

	run := detectPeriod(t, account, now, newFakeAdapter(), agg, &fakeRawStore{})

	want := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	if !run.PeriodStart.Equal(want) {
		t.Errorf("expected previous month start %v, got %v", want, run.PeriodStart)
	}
}

func TestDetectSameMonthEmptyLedgerWidens(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	lastImport := time.Date(2026, 8, 12, 3, 0, 0, 0, time.UTC)
	account := testAccount(models.KindAlibaba)
	account.LastImportAt = &lastImport

	run := detectPeriod(t, account, now, newFakeAdapter(), newFakeAggStore(), &fakeRawStore{})

	want := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if !run.PeriodStart.Equal(want) {
		t.Errorf("expected widened start %v for empty ledger, got %v", want, run.PeriodStart)
	}
}

func TestDetectEarlierMonthRefetchesTrailingWindow(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	lastImport := time.Date(2026, 7, 20, 3, 0, 0, 0, time.UTC)
	attempt := time.Date(2026, 7, 28, 3, 0, 0, 0, time.UTC)
	account := testAccount(models.KindAlibaba)
	account.LastImportAt = &lastImport
	account.LastImportAttemptAt = &attempt

	raw := &fakeRawStore{}
	run := detectPeriod(t, account, now, newFakeAdapter(), newFakeAggStore(), raw)

	if !run.PeriodStart.Equal(attempt) {
		t.Errorf("expected attempt watermark %v, got %v", attempt, run.PeriodStart)
	}
	if len(raw.deletedSince) != 1 || !raw.deletedSince[0].Equal(attempt) {
		t.Errorf("expected raw delete since %v, got %v", attempt, raw.deletedSince)
	}
}

func TestDetectEarlierMonthWithoutAttemptFallsBack(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	lastImport := time.Date(2026, 7, 20, 3, 0, 0, 0, time.UTC)
	account := testAccount(models.KindAlibaba)
	account.LastImportAt = &lastImport

	raw := &fakeRawStore{}
	run := detectPeriod(t, account, now, newFakeAdapter(), newFakeAggStore(), raw)

	if !run.PeriodStart.Equal(lastImport) {
		t.Errorf("expected last import watermark %v, got %v", lastImport, run.PeriodStart)
	}
}

func TestDetectAzureOverride(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	lastImport := time.Date(2026, 8, 12, 3, 0, 0, 0, time.UTC)
	account := testAccount(models.KindAzure)
	account.LastImportAt = &lastImport

	run := detectPeriod(t, account, now, NewAzureAdapter(nil), newFakeAggStore(), &fakeRawStore{})

	want := dateutils.StartOfDay(lastImport.AddDate(0, 0, -1))
	if !run.PeriodStart.Equal(want) {
		t.Errorf("expected last import minus one day %v, got %v", want, run.PeriodStart)
	}
}

func TestDetectAzureFirstImportFallsThrough(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)

	run := detectPeriod(t, testAccount(models.KindAzure), now, NewAzureAdapter(nil), newFakeAggStore(), &fakeRawStore{})

	want := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if !run.PeriodStart.Equal(want) {
		t.Errorf("first import must use the widening default %v, got %v", want, run.PeriodStart)
	}
}
