package runrecords

import (
	"strings"
	"testing"

	"traceability-explorer/backend/internal/domain/audit"
)

// TestExtractStartWorkspaceScenario 覆盖典型场景：工作台启动事件带
// 标题式命令键，命令解析、负载分类与状态推断要同时成立。
func TestExtractStartWorkspaceScenario(t *testing.T) {
	events := []audit.Event{{
		Name:       "Start Workspace",
		TargetType: "Workspace",
		TargetID:   "w1",
		Timestamp:  1000,
		Metadata:   map[string]any{"Run Command": "proc sort data=x;"},
	}}

	records := Extract(events)
	if len(records) != 1 {
		t.Fatalf("Extract returned %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Command != "proc sort data=x;" {
		t.Fatalf("command = %q, want %q", rec.Command, "proc sort data=x;")
	}
	if rec.UsageClass != audit.ClassSAS {
		t.Fatalf("usageClass = %q, want %q", rec.UsageClass, audit.ClassSAS)
	}
	if rec.Status != audit.StatusStarted {
		t.Fatalf("status = %q, want %q", rec.Status, audit.StatusStarted)
	}
	if rec.RunType != "Workspace" {
		t.Fatalf("runType = %q, want %q", rec.RunType, "Workspace")
	}
	// workspace 目标不把 targetId 当作 runId，标识由时间戳加序号合成。
	if rec.RunID != audit.UnknownValue {
		t.Fatalf("runId = %q, want %q", rec.RunID, audit.UnknownValue)
	}
	if rec.ID != "1000-0" {
		t.Fatalf("id = %q, want %q", rec.ID, "1000-0")
	}
	if rec.SourceEvent != &events[0] {
		t.Fatalf("sourceEvent does not reference the contributing event")
	}
}

// TestExtractFiltersExecutionEvents 只保留执行类事件且顺序与输入一致。
func TestExtractFiltersExecutionEvents(t *testing.T) {
	events := []audit.Event{
		{Name: "Start Run", TargetType: "Run", TargetID: "r1", Timestamp: 1},
		{Name: "Update Settings", TargetType: "project", Timestamp: 2},
		{Name: "Queue Execution", Timestamp: 3},
		{Name: "Login", TargetType: "user", Timestamp: 4},
		{Name: "Publish App", TargetType: "APP", Timestamp: 5},
	}

	records := Extract(events)
	if len(records) != 3 {
		t.Fatalf("Extract returned %d records, want 3", len(records))
	}
	wantTimestamps := []int64{1, 3, 5}
	for i, want := range wantTimestamps {
		if records[i].Timestamp != want {
			t.Fatalf("records[%d].Timestamp = %d, want %d", i, records[i].Timestamp, want)
		}
	}
	// 合成序号基于提取后的下标而不是原始事件下标。
	if records[1].ID != "3-1" {
		t.Fatalf("records[1].ID = %q, want %q", records[1].ID, "3-1")
	}
	// run 目标直接把 targetId 当作 runId。
	if records[0].RunID != "r1" || records[0].ID != "r1" {
		t.Fatalf("records[0] runId/id = %q/%q, want r1/r1", records[0].RunID, records[0].ID)
	}
}

// TestExtractNeverEmptyStrings 畸形元数据只能降级为占位值，任何字符串
// 属性都不允许是空串，时长只要存在就必须非负。
func TestExtractNeverEmptyStrings(t *testing.T) {
	events := []audit.Event{
		{Name: "Start Run", TargetType: "run"},
		{Name: "Run Something", Metadata: map[string]any{"runCommand": 42, "status": true}},
		{Name: "Execution finished", Metadata: map[string]any{"stageTime": "not an object"}},
	}

	records := Extract(events)
	if len(records) != len(events) {
		t.Fatalf("Extract returned %d records, want %d", len(records), len(events))
	}
	for _, rec := range records {
		stringFields := map[string]string{
			"id":              rec.ID,
			"user":            rec.User,
			"project":         rec.Project,
			"command":         rec.Command,
			"runId":           rec.RunID,
			"runType":         rec.RunType,
			"runFile":         rec.RunFile,
			"runOrigin":       rec.RunOrigin,
			"environmentName": rec.EnvironmentName,
			"computeTier":     rec.ComputeTier,
			"hardwareTier":    rec.HardwareTier,
		}
		for name, value := range stringFields {
			if strings.TrimSpace(value) == "" {
				t.Fatalf("record %q field %s is empty", rec.ID, name)
			}
		}
		if rec.Status == "" {
			t.Fatalf("record %q status is empty", rec.ID)
		}
		if rec.UsageClass == "" {
			t.Fatalf("record %q usageClass is empty", rec.ID)
		}
		if rec.DurationSec != nil && *rec.DurationSec < 0 {
			t.Fatalf("record %q durationSec = %v, want non-negative", rec.ID, *rec.DurationSec)
		}
	}
}

// TestExtractEmptyInput 空输入返回空切片而不是 nil 错误。
func TestExtractEmptyInput(t *testing.T) {
	if records := Extract(nil); len(records) != 0 {
		t.Fatalf("Extract(nil) returned %d records, want 0", len(records))
	}
	if records := Extract([]audit.Event{}); len(records) != 0 {
		t.Fatalf("Extract(empty) returned %d records, want 0", len(records))
	}
}

// TestExtractRunFileClassification 命令缺失时运行文件参与负载分类。
func TestExtractRunFileClassification(t *testing.T) {
	events := []audit.Event{{
		Name:       "Start Run",
		TargetType: "run",
		TargetID:   "r9",
		Timestamp:  77,
		Metadata:   map[string]any{"Run File": "monthly_report.sas"},
	}}

	records := Extract(events)
	if len(records) != 1 {
		t.Fatalf("Extract returned %d records, want 1", len(records))
	}
	if records[0].Command != audit.UnknownValue {
		t.Fatalf("command = %q, want %q", records[0].Command, audit.UnknownValue)
	}
	if records[0].UsageClass != audit.ClassSAS {
		t.Fatalf("usageClass = %q, want %q", records[0].UsageClass, audit.ClassSAS)
	}
}
