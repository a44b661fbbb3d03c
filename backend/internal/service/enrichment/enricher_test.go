package enrichment

import (
	"context"
	"errors"
	"testing"

	"traceability-explorer/backend/internal/config"
	"traceability-explorer/backend/internal/domain/audit"
	"traceability-explorer/backend/internal/infra/auditapi"

	"go.uber.org/zap"
)

// fakeFetcher 按预置表返回运行详情，并记录每次调用的运行标识。
type fakeFetcher struct {
	details map[string]*auditapi.RunDetails
	errs    map[string]error
	calls   []string
}

func (f *fakeFetcher) GetRun(_ context.Context, runID string) (*auditapi.RunDetails, error) {
	f.calls = append(f.calls, runID)
	if err, ok := f.errs[runID]; ok {
		return nil, err
	}
	if detail, ok := f.details[runID]; ok {
		return detail, nil
	}
	return nil, errors.New("run not found")
}

func newTestEnricher(cfg config.EnrichmentConfig, fetcher RunFetcher) *Enricher {
	return New(cfg, fetcher, zap.NewNop().Sugar())
}

// unknownRecord 构造一条所有可回填字段均为占位值的记录。
func unknownRecord(runID string) audit.RunRecord {
	return audit.RunRecord{
		ID:              runID,
		Timestamp:       1757500000000,
		User:            "alice",
		Project:         "churn-model",
		Command:         audit.UnknownValue,
		RunID:           runID,
		RunType:         audit.UnknownValue,
		RunFile:         audit.UnknownValue,
		RunOrigin:       audit.UnknownValue,
		EnvironmentName: audit.UnknownValue,
		ComputeTier:     audit.UnknownValue,
		HardwareTier:    audit.UnknownValue,
		Status:          audit.StatusUnknown,
		UsageClass:      audit.ClassUnknown,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestEnrichFillsMissingFields(t *testing.T) {
	fetcher := &fakeFetcher{details: map[string]*auditapi.RunDetails{
		"run-1": {
			ID:                 "run-1",
			Command:            "proc print data=sashelp.class; run;",
			Status:             "Succeeded",
			DurationInSeconds:  floatPtr(42.5),
			HardwareTierName:   "Large",
			EnvironmentDetails: auditapi.EnvironmentDetails{Name: "Analytics Pro 9.4"},
		},
	}}
	enricher := newTestEnricher(config.EnrichmentConfig{MaxRuns: 10}, fetcher)

	records := enricher.Enrich(context.Background(), []audit.RunRecord{unknownRecord("run-1")})

	got := records[0]
	if got.Command != "proc print data=sashelp.class; run;" {
		t.Fatalf("command = %q", got.Command)
	}
	if got.Status != audit.StatusSucceeded {
		t.Fatalf("status = %q, want Succeeded", got.Status)
	}
	if got.DurationSec == nil || *got.DurationSec != 42.5 {
		t.Fatalf("durationSec = %v, want 42.5", got.DurationSec)
	}
	if got.HardwareTier != "Large" {
		t.Fatalf("hardwareTier = %q", got.HardwareTier)
	}
	if got.EnvironmentName != "Analytics Pro 9.4" {
		t.Fatalf("environmentName = %q", got.EnvironmentName)
	}
	// 补上命令后应当重新定类。
	if got.UsageClass != audit.ClassSAS {
		t.Fatalf("usageClass = %q, want SAS", got.UsageClass)
	}
}

func TestEnrichKeepsResolvedValues(t *testing.T) {
	record := unknownRecord("run-2")
	record.Command = "hubcli submit job.wps"
	record.HardwareTier = "Small"
	record.EnvironmentName = "WPS Workbench"
	record.Status = audit.StatusFailed
	record.DurationSec = floatPtr(5)
	record.UsageClass = audit.ClassSLC

	fetcher := &fakeFetcher{details: map[string]*auditapi.RunDetails{
		"run-2": {
			Command:            "different command",
			Status:             "Succeeded",
			DurationInSeconds:  floatPtr(99),
			HardwareTierName:   "Huge",
			EnvironmentDetails: auditapi.EnvironmentDetails{Name: "Other Env"},
		},
	}}
	enricher := newTestEnricher(config.EnrichmentConfig{MaxRuns: 10}, fetcher)

	records := enricher.Enrich(context.Background(), []audit.RunRecord{record})

	got := records[0]
	if got.Command != "hubcli submit job.wps" {
		t.Fatalf("command overwritten: %q", got.Command)
	}
	if got.HardwareTier != "Small" {
		t.Fatalf("hardwareTier overwritten: %q", got.HardwareTier)
	}
	if got.EnvironmentName != "WPS Workbench" {
		t.Fatalf("environmentName overwritten: %q", got.EnvironmentName)
	}
	if got.Status != audit.StatusFailed {
		t.Fatalf("status overwritten: %q", got.Status)
	}
	if *got.DurationSec != 5 {
		t.Fatalf("durationSec overwritten: %v", *got.DurationSec)
	}
	if got.UsageClass != audit.ClassSLC {
		t.Fatalf("usageClass overwritten: %q", got.UsageClass)
	}
}

func TestEnrichSkipsPlaceholderRunIDs(t *testing.T) {
	fetcher := &fakeFetcher{}
	enricher := newTestEnricher(config.EnrichmentConfig{MaxRuns: 10}, fetcher)

	records := []audit.RunRecord{
		unknownRecord("Unknown"),
		unknownRecord("unknown"),
		unknownRecord(""),
		unknownRecord("   "),
	}
	enricher.Enrich(context.Background(), records)

	if len(fetcher.calls) != 0 {
		t.Fatalf("expected no lookups, got %v", fetcher.calls)
	}
}

func TestEnrichHonorsMaxRuns(t *testing.T) {
	fetcher := &fakeFetcher{details: map[string]*auditapi.RunDetails{
		"run-1": {HardwareTierName: "Small"},
		"run-2": {HardwareTierName: "Medium"},
		"run-3": {HardwareTierName: "Large"},
	}}
	enricher := newTestEnricher(config.EnrichmentConfig{MaxRuns: 2}, fetcher)

	records := []audit.RunRecord{
		unknownRecord("run-1"),
		unknownRecord("run-2"),
		unknownRecord("run-3"),
	}
	records = enricher.Enrich(context.Background(), records)

	if len(fetcher.calls) != 2 || fetcher.calls[0] != "run-1" || fetcher.calls[1] != "run-2" {
		t.Fatalf("calls = %v, want [run-1 run-2]", fetcher.calls)
	}
	if records[2].HardwareTier != audit.UnknownValue {
		t.Fatalf("record beyond quota was enriched: %q", records[2].HardwareTier)
	}
}

func TestEnrichFailureDoesNotAbort(t *testing.T) {
	fetcher := &fakeFetcher{
		errs: map[string]error{"run-1": errors.New("boom")},
		details: map[string]*auditapi.RunDetails{
			"run-2": {HardwareTierName: "Medium"},
		},
	}
	enricher := newTestEnricher(config.EnrichmentConfig{MaxRuns: 10}, fetcher)

	records := []audit.RunRecord{unknownRecord("run-1"), unknownRecord("run-2")}
	records = enricher.Enrich(context.Background(), records)

	if len(fetcher.calls) != 2 {
		t.Fatalf("calls = %v, want both run ids", fetcher.calls)
	}
	if records[0].HardwareTier != audit.UnknownValue {
		t.Fatalf("failed lookup should leave record untouched, got %q", records[0].HardwareTier)
	}
	if records[1].HardwareTier != "Medium" {
		t.Fatalf("surviving lookup should fill record, got %q", records[1].HardwareTier)
	}
}

func TestEnrichDuplicateRunIDsFetchedOnce(t *testing.T) {
	fetcher := &fakeFetcher{details: map[string]*auditapi.RunDetails{
		"run-9": {HardwareTierName: "Large"},
	}}
	enricher := newTestEnricher(config.EnrichmentConfig{MaxRuns: 10}, fetcher)

	records := []audit.RunRecord{unknownRecord("run-9"), unknownRecord("run-9")}
	records = enricher.Enrich(context.Background(), records)

	if len(fetcher.calls) != 1 {
		t.Fatalf("calls = %v, want single lookup", fetcher.calls)
	}
	if records[0].HardwareTier != "Large" || records[1].HardwareTier != "Large" {
		t.Fatalf("both records should be filled, got %q and %q",
			records[0].HardwareTier, records[1].HardwareTier)
	}
}

func TestEnrichStatusKeywordFallback(t *testing.T) {
	fetcher := &fakeFetcher{details: map[string]*auditapi.RunDetails{
		"run-1": {Status: "Finished"},
	}}
	enricher := newTestEnricher(config.EnrichmentConfig{MaxRuns: 10}, fetcher)

	records := enricher.Enrich(context.Background(), []audit.RunRecord{unknownRecord("run-1")})

	if records[0].Status != audit.StatusSucceeded {
		t.Fatalf("status = %q, want Succeeded via keyword fallback", records[0].Status)
	}
}

func TestEnrichRejectsNegativeDuration(t *testing.T) {
	fetcher := &fakeFetcher{details: map[string]*auditapi.RunDetails{
		"run-1": {DurationInSeconds: floatPtr(-3)},
	}}
	enricher := newTestEnricher(config.EnrichmentConfig{MaxRuns: 10}, fetcher)

	records := enricher.Enrich(context.Background(), []audit.RunRecord{unknownRecord("run-1")})

	if records[0].DurationSec != nil {
		t.Fatalf("negative duration should be rejected, got %v", *records[0].DurationSec)
	}
}

func TestEnrichNilFetcherNoop(t *testing.T) {
	enricher := New(config.EnrichmentConfig{MaxRuns: 10}, nil, zap.NewNop().Sugar())

	records := enricher.Enrich(context.Background(), []audit.RunRecord{unknownRecord("run-1")})

	if records[0].HardwareTier != audit.UnknownValue {
		t.Fatalf("nil fetcher must not modify records")
	}
}
