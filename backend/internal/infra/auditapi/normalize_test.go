package auditapi

import (
	"encoding/json"
	"testing"
)

func TestNormalizeAdminGuideShape(t *testing.T) {
	raw := map[string]any{
		"id":        "evt-1",
		"timestamp": float64(1757500000000),
		"actor":     map[string]any{"id": "u-9", "name": "alice"},
		"action":    map[string]any{"eventName": "Start Job"},
		"in":        map[string]any{"id": "p-3", "name": "forecasting"},
		"targets": []any{
			map[string]any{
				"entity": map[string]any{"entityType": "job", "id": "job-7", "name": "train"},
				"customAttributes": []any{
					map[string]any{"key": "hardwareTier", "value": "Large"},
					map[string]any{"name": "runOrigin", "value": "Scheduled"},
					map[string]any{"key": "runCommand", "value": "should not clobber"},
				},
			},
		},
		"metadata": map[string]any{"runCommand": "python train.py"},
		"affecting": []any{
			map[string]any{"entityType": "environment", "name": "Standard Py3.10"},
			map[string]any{"entity": map[string]any{"entityType": "hardwareTier", "name": "Large"}},
		},
		"source": map[string]any{"ip": "10.0.0.4"},
	}

	event := Normalize(raw)

	if event.ID != "evt-1" || event.Name != "Start Job" {
		t.Fatalf("unexpected id/name: %+v", event)
	}
	if event.Timestamp != 1757500000000 {
		t.Fatalf("Timestamp = %d, want 1757500000000", event.Timestamp)
	}
	if event.ActorID != "u-9" || event.ActorName != "alice" {
		t.Fatalf("unexpected actor: %+v", event)
	}
	if event.TargetType != "job" || event.TargetID != "job-7" || event.TargetName != "train" {
		t.Fatalf("unexpected target: %+v", event)
	}
	if event.WithinProjectID != "p-3" || event.WithinProjectName != "forecasting" {
		t.Fatalf("unexpected project: %+v", event)
	}

	if event.Metadata["runCommand"] != "python train.py" {
		t.Fatalf("existing metadata key was clobbered: %v", event.Metadata["runCommand"])
	}
	if event.Metadata["hardwareTier"] != "Large" || event.Metadata["runOrigin"] != "Scheduled" {
		t.Fatalf("custom attributes not merged: %v", event.Metadata)
	}

	if event.Raw == nil {
		t.Fatalf("expected raw snapshot")
	}
	if len(event.Raw.Affecting) != 2 {
		t.Fatalf("expected 2 affecting entities, got %d", len(event.Raw.Affecting))
	}
	if event.Raw.Affecting[0].EntityType != "environment" || event.Raw.Affecting[1].Name != "Large" {
		t.Fatalf("unexpected affecting entities: %+v", event.Raw.Affecting)
	}
	if event.Raw.Source["ip"] != "10.0.0.4" {
		t.Fatalf("unexpected source snapshot: %v", event.Raw.Source)
	}
}

func TestNormalizeFlatShape(t *testing.T) {
	raw := map[string]any{
		"id":                "evt-2",
		"event":             "Run Completed",
		"timestamp":         "1757500000000",
		"targetType":        "run",
		"targetId":          "run-1",
		"targetName":        "analysis",
		"withinProjectId":   "p-1",
		"withinProjectName": "churn",
	}

	event := Normalize(raw)

	if event.Name != "Run Completed" {
		t.Fatalf("Name = %q, want %q", event.Name, "Run Completed")
	}
	if event.Timestamp != 1757500000000 {
		t.Fatalf("string timestamp not coerced: %d", event.Timestamp)
	}
	if event.TargetType != "run" || event.TargetID != "run-1" || event.TargetName != "analysis" {
		t.Fatalf("flat target keys not read: %+v", event)
	}
	if event.WithinProjectName != "churn" {
		t.Fatalf("flat project keys not read: %+v", event)
	}
	if event.ActorID != "" || event.ActorName != "" {
		t.Fatalf("missing actor should stay empty: %+v", event)
	}
	if event.Metadata == nil || len(event.Metadata) != 0 {
		t.Fatalf("missing metadata should become empty map: %v", event.Metadata)
	}
}

func TestNormalizeMetadataNotShared(t *testing.T) {
	original := map[string]any{"status": "Succeeded"}
	raw := map[string]any{"id": "evt-3", "metadata": original}

	event := Normalize(raw)
	event.Metadata["status"] = "mutated"

	if original["status"] != "Succeeded" {
		t.Fatalf("normalized metadata must not alias the raw map")
	}
}

func TestCoerceTimestamp(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  int64
	}{
		{"float", float64(1700000000000), 1700000000000},
		{"digits", "1700000000000", 1700000000000},
		{"iso", "2026-03-10T15:00:00Z", 1773154800000},
		{"blank", "   ", 0},
		{"garbage", "yesterday", 0},
		{"missing", nil, 0},
		{"wrongType", true, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := coerceTimestamp(tc.input); got != tc.want {
				t.Fatalf("coerceTimestamp(%v) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestDecodeEventsPayload(t *testing.T) {
	bare, err := decodeEventsPayload([]byte(`[{"id":"a"},{"id":"b"}]`))
	if err != nil || len(bare) != 2 {
		t.Fatalf("bare array: events=%d err=%v", len(bare), err)
	}

	for _, key := range []string{"events", "data", "items", "results", "auditEvents"} {
		payload := []byte(`{"` + key + `":[{"id":"x"}]}`)
		events, err := decodeEventsPayload(payload)
		if err != nil || len(events) != 1 || events[0]["id"] != "x" {
			t.Fatalf("wrapper %q: events=%v err=%v", key, events, err)
		}
	}

	single, err := decodeEventsPayload([]byte(`{"id":"solo","timestamp":1}`))
	if err != nil || len(single) != 1 {
		t.Fatalf("single object: events=%d err=%v", len(single), err)
	}

	unknown, err := decodeEventsPayload([]byte(`{"message":"no events here"}`))
	if err != nil || unknown != nil {
		t.Fatalf("unknown dict should yield empty result, got %v err=%v", unknown, err)
	}

	if _, err := decodeEventsPayload([]byte(`not json`)); err == nil {
		t.Fatalf("invalid json should error")
	}

	empty, err := decodeEventsPayload([]byte("   "))
	if err != nil || empty != nil {
		t.Fatalf("empty body should yield nil, got %v err=%v", empty, err)
	}
}

func TestCommandTextUnmarshal(t *testing.T) {
	var fromString CommandText
	if err := json.Unmarshal([]byte(`"python train.py"`), &fromString); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if fromString != "python train.py" {
		t.Fatalf("string form = %q", fromString)
	}

	var fromList CommandText
	if err := json.Unmarshal([]byte(`["python","train.py","--epochs","5"]`), &fromList); err != nil {
		t.Fatalf("list form: %v", err)
	}
	if fromList != "python train.py --epochs 5" {
		t.Fatalf("list form = %q", fromList)
	}

	var fromNull CommandText
	if err := json.Unmarshal([]byte(`null`), &fromNull); err != nil {
		t.Fatalf("null form: %v", err)
	}
	if fromNull != "" {
		t.Fatalf("null form = %q", fromNull)
	}

	var fromNumber CommandText
	if err := json.Unmarshal([]byte(`42`), &fromNumber); err == nil {
		t.Fatalf("number form should error")
	}
}

func TestMergeCustomAttributesDictForm(t *testing.T) {
	raw := map[string]any{
		"id": "evt-4",
		"targets": []any{
			map[string]any{
				"entity":     map[string]any{"entityType": "run", "id": "r1"},
				"attributes": map[string]any{"computeTier": "Medium"},
			},
		},
		"metadata": map[string]any{},
	}

	event := Normalize(raw)
	if event.Metadata["computeTier"] != "Medium" {
		t.Fatalf("dict-form attributes not merged: %v", event.Metadata)
	}
}
