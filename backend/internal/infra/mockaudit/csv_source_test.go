package mockaudit

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCSV = `DATE & TIME,EVENT,USER NAME,TARGET NAME,PROJECT NAME
2026-03-01T08:00:00Z,Start Workspace Session,alice,workspace-1,churn
2026-03-01T09:30:00Z,Run Completed,bob,run-7,forecasting
not-a-date,Login,carol,,ops
2026-03-02T10:00:00Z,Stop Workspace Session,alice,workspace-1,churn
`

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit_sample.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sample csv: %v", err)
	}
	return path
}

func TestLoadAll(t *testing.T) {
	source := NewSource(writeSample(t, sampleCSV))

	events, err := source.Load(0)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	first := events[0]
	if first.ID != "mock-0" {
		t.Fatalf("ID = %q, want mock-0", first.ID)
	}
	if first.Name != "Start Workspace Session" {
		t.Fatalf("Name = %q", first.Name)
	}
	if first.Timestamp != 1772352000000 {
		t.Fatalf("Timestamp = %d, want 1772352000000", first.Timestamp)
	}
	if first.ActorID != "alice" || first.ActorName != "alice" {
		t.Fatalf("用户名应同时写入 ActorID 与 ActorName, got %+v", first)
	}
	if first.TargetID != "workspace-1" || first.WithinProjectName != "churn" {
		t.Fatalf("unexpected target/project: %+v", first)
	}
	if first.Metadata == nil {
		t.Fatalf("metadata should be an empty map, not nil")
	}

	if events[2].Timestamp != 0 {
		t.Fatalf("非法时间应得到零时间戳, got %d", events[2].Timestamp)
	}
	if events[2].TargetID != "" {
		t.Fatalf("空目标列应保持为空, got %q", events[2].TargetID)
	}
	if events[3].ID != "mock-3" {
		t.Fatalf("ID = %q, want mock-3", events[3].ID)
	}
}

func TestLoadLimit(t *testing.T) {
	source := NewSource(writeSample(t, sampleCSV))

	events, err := source.Load(2)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Name != "Run Completed" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}

func TestLoadRange(t *testing.T) {
	source := NewSource(writeSample(t, sampleCSV))

	start := int64(1772323200000) // 2026-03-01 00:00 UTC
	end := int64(1772409599000)   // 2026-03-01 23:59:59 UTC
	events, err := source.LoadRange(start, end, 0)
	if err != nil {
		t.Fatalf("load range failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(events))
	}
	for _, event := range events {
		if event.Timestamp < start || event.Timestamp > end {
			t.Fatalf("event outside window: %+v", event)
		}
	}
}

func TestLoadRangeUnbounded(t *testing.T) {
	source := NewSource(writeSample(t, sampleCSV))

	events, err := source.LoadRange(0, 0, 0)
	if err != nil {
		t.Fatalf("load range failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("零窗口应返回全部事件, got %d", len(events))
	}
}

func TestLoadMissingFile(t *testing.T) {
	source := NewSource(filepath.Join(t.TempDir(), "missing.csv"))
	if _, err := source.Load(0); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestHeaderCaseInsensitive(t *testing.T) {
	lower := `date & time,event,user name,target name,project name
2026-03-01T08:00:00Z,Start Job,dana,job-1,ops
`
	source := NewSource(writeSample(t, lower))

	events, err := source.Load(0)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(events) != 1 || events[0].ActorName != "dana" || events[0].Name != "Start Job" {
		t.Fatalf("lowercase header not handled: %+v", events)
	}
}

func TestEmptyFile(t *testing.T) {
	source := NewSource(writeSample(t, ""))
	events, err := source.Load(0)
	if err != nil || events != nil {
		t.Fatalf("empty file should yield no events, got %v err=%v", events, err)
	}
}
