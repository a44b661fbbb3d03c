// auditscan 拉取平台审计事件并在标准输出给出三段诊断：原始事件的结构
// 分析、运行记录各属性的解析覆盖率、以及按时间桶汇总的运行报表。接入
// 新部署时先跑一遍，确认审计端点路径与元数据字段命名是否被解析链覆盖。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"traceability-explorer/backend/internal/config"
	"traceability-explorer/backend/internal/domain/audit"
	"traceability-explorer/backend/internal/infra/auditapi"
	appLogger "traceability-explorer/backend/internal/infra/logger"
	"traceability-explorer/backend/internal/infra/metrics"
	"traceability-explorer/backend/internal/infra/mockaudit"
	"traceability-explorer/backend/internal/service/enrichment"
	"traceability-explorer/backend/internal/service/reports"
	"traceability-explorer/backend/internal/service/runrecords"
	"traceability-explorer/backend/internal/service/timebuckets"
)

const (
	sampleRecordCount = 5
	barWidth          = 20
)

// coverageFields 列出覆盖率报表统计的记录属性，顺序即输出顺序。
// 取值函数返回占位值或空串表示该属性未解析出来。
var coverageFields = []struct {
	name string
	get  func(r *audit.RunRecord) string
}{
	{"user", func(r *audit.RunRecord) string { return r.User }},
	{"project", func(r *audit.RunRecord) string { return r.Project }},
	{"command", func(r *audit.RunRecord) string { return r.Command }},
	{"runId", func(r *audit.RunRecord) string { return r.RunID }},
	{"runType", func(r *audit.RunRecord) string { return r.RunType }},
	{"runFile", func(r *audit.RunRecord) string { return r.RunFile }},
	{"runOrigin", func(r *audit.RunRecord) string { return r.RunOrigin }},
	{"environmentName", func(r *audit.RunRecord) string { return r.EnvironmentName }},
	{"computeTier", func(r *audit.RunRecord) string { return r.ComputeTier }},
	{"hardwareTier", func(r *audit.RunRecord) string { return r.HardwareTier }},
	{"status", func(r *audit.RunRecord) string { return string(r.Status) }},
	{"durationSec", func(r *audit.RunRecord) string {
		if r.DurationSec == nil {
			return audit.UnknownValue
		}
		return strconv.FormatFloat(*r.DurationSec, 'f', -1, 64)
	}},
}

func main() {
	hostname := flag.String("hostname", "", "platform host, overrides PLATFORM_API_HOST")
	apiKey := flag.String("api-key", "", "platform API key, overrides PLATFORM_API_KEY")
	bearer := flag.String("jwt", "", "bearer token used instead of the API key")
	limit := flag.Int("limit", 50, "max number of events to fetch")
	startFlag := flag.String("start", "", "range start, RFC3339 or millisecond timestamp")
	endFlag := flag.String("end", "", "range end, RFC3339 or millisecond timestamp")
	mockPath := flag.String("mock", "", "read events from a CSV audit export instead of the API")
	savePath := flag.String("save", "", "save raw events as JSON to this file")
	samples := flag.Int("samples", 3, "number of raw events to print in full")
	flag.Parse()

	config.LoadEnvFiles()
	if _, err := appLogger.Init(); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer appLogger.Sync()
	metrics.MustRegister()

	startMillis, err := parseTimeFlag(*startFlag)
	if err != nil {
		log.Fatalf("parse -start failed: %v", err)
	}
	endMillis, err := parseTimeFlag(*endFlag)
	if err != nil {
		log.Fatalf("parse -end failed: %v", err)
	}
	query := auditapi.FetchQuery{
		StartMillis: startMillis,
		EndMillis:   endMillis,
		MaxEvents:   *limit,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var (
		rawEvents []map[string]any
		events    []audit.Event
		client    *auditapi.Client
	)

	if strings.TrimSpace(*mockPath) != "" {
		source := mockaudit.NewSource(strings.TrimSpace(*mockPath))
		events, err = source.FetchEvents(ctx, query)
		if err != nil {
			log.Fatalf("load mock events failed: %v", err)
		}
		fmt.Printf("Loaded %d events from %s\n", len(events), *mockPath)
	} else {
		cfg, _, err := config.LoadAuditConfigFromEnv()
		if err != nil {
			log.Fatalf("load audit config failed: %v", err)
		}
		if strings.TrimSpace(*hostname) != "" {
			cfg.Host = config.NormalizeHost(*hostname)
		}
		if strings.TrimSpace(*apiKey) != "" {
			cfg.APIKey = strings.TrimSpace(*apiKey)
		}
		if cfg.Host == "" {
			log.Fatal("missing platform host; pass -hostname or set PLATFORM_API_HOST")
		}
		if cfg.APIKey == "" && strings.TrimSpace(*bearer) == "" {
			log.Fatal("missing credentials; pass -api-key or -jwt, or set PLATFORM_API_KEY")
		}

		opts := []auditapi.Option{auditapi.WithLogger(appLogger.S().With("component", "auditapi"))}
		if strings.TrimSpace(*bearer) != "" {
			opts = append(opts, auditapi.WithCredentials(auditapi.NewBearerCredentials(*bearer)))
		}
		client = auditapi.NewClient(cfg, opts...)

		fmt.Printf("Platform host: %s\n", cfg.Host)
		fmt.Printf("Fetching up to %d events...\n", *limit)
		rawEvents, err = client.FetchRawEvents(ctx, query)
		if err != nil {
			log.Fatalf("fetch audit events failed: %v", err)
		}
		fmt.Printf("Fetched %d events\n", len(rawEvents))
		events = auditapi.NormalizeAll(rawEvents)
	}

	if len(events) == 0 {
		fmt.Println("\nNo events fetched. Check hostname, credentials and time range.")
		os.Exit(1)
	}

	if strings.TrimSpace(*savePath) != "" && len(rawEvents) > 0 {
		if err := saveRawEvents(*savePath, rawEvents); err != nil {
			log.Fatalf("save raw events failed: %v", err)
		}
		fmt.Printf("Saved %d raw events to %s\n", len(rawEvents), *savePath)
	}

	if len(rawEvents) > 0 {
		analyzeStructure(rawEvents)
		dumpSampleEvents(rawEvents, *samples)
	}

	svc := runrecords.NewService(nil, buildEnricher(client), appLogger.S().With("component", "cmd.auditscan"))
	records := svc.ProcessEvents(ctx, events)
	if len(records) == 0 {
		fmt.Println("\nNo execution events found in the fetched window.")
		return
	}

	printRecordSamples(records)
	printCoverage(records)
	printReport(records, query)
}

// buildEnricher 在回填开关打开且 API 客户端可用时装配回填器。
func buildEnricher(client *auditapi.Client) runrecords.RecordEnricher {
	if client == nil {
		return nil
	}
	cfg, enabled, err := config.LoadEnrichmentConfigFromEnv()
	if err != nil {
		log.Fatalf("load enrichment config failed: %v", err)
	}
	if !enabled {
		return nil
	}
	return enrichment.New(cfg, client, appLogger.S().With("component", "enrichment"))
}

// parseTimeFlag 接受毫秒时间戳或 RFC3339 文本，空串返回 0 表示不限制。
func parseTimeFlag(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return 0, fmt.Errorf("expect RFC3339 or millisecond timestamp, got %q", raw)
	}
	return t.UnixMilli(), nil
}

func saveRawEvents(path string, events []map[string]any) error {
	payload, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// analyzeStructure 打印原始事件的键分布：顶层键、targets 结构、metadata
// 键与值类型，以及自定义属性出现的位置。
func analyzeStructure(events []map[string]any) {
	printBanner(fmt.Sprintf("STRUCTURE ANALYSIS (%d events)", len(events)))

	topKeys := make(map[string]int)
	for _, ev := range events {
		for key := range ev {
			topKeys[key]++
		}
	}
	fmt.Printf("\nTop-level keys (across %d events):\n", len(events))
	for _, kc := range sortedCounts(topKeys) {
		fmt.Printf("  %-30s %4d/%d\n", kc.key, kc.count, len(events))
	}

	targetKeys := make(map[string]int)
	entityKeys := make(map[string]int)
	for _, ev := range events {
		for _, target := range listOfMaps(ev["targets"]) {
			for key := range target {
				targetKeys[key]++
			}
			if entity, ok := target["entity"].(map[string]any); ok {
				for key := range entity {
					entityKeys[key]++
				}
			}
		}
	}
	fmt.Println("\n--- targets[] structure ---")
	if len(targetKeys) > 0 {
		fmt.Println("  targets[*] keys:")
		for _, kc := range sortedCounts(targetKeys) {
			fmt.Printf("    %-30s %4d\n", kc.key, kc.count)
		}
	}
	if len(entityKeys) > 0 {
		fmt.Println("  targets[*].entity keys:")
		for _, kc := range sortedCounts(entityKeys) {
			fmt.Printf("    %-30s %4d\n", kc.key, kc.count)
		}
	}

	metaKeys := make(map[string]int)
	metaTypes := make(map[string]map[string]int)
	for _, ev := range events {
		meta, ok := ev["metadata"].(map[string]any)
		if !ok {
			continue
		}
		for key, value := range meta {
			metaKeys[key]++
			if metaTypes[key] == nil {
				metaTypes[key] = make(map[string]int)
			}
			metaTypes[key][jsonTypeName(value)]++
		}
	}
	fmt.Println("\n--- metadata keys ---")
	if len(metaKeys) == 0 {
		fmt.Println("  (no metadata object found in any event)")
	} else {
		for _, kc := range sortedCounts(metaKeys) {
			types := make([]string, 0, len(metaTypes[kc.key]))
			for _, tc := range sortedCounts(metaTypes[kc.key]) {
				types = append(types, fmt.Sprintf("%s:%d", tc.key, tc.count))
			}
			fmt.Printf("  %-40s %4d/%d  types: %s\n", kc.key, kc.count, len(events), strings.Join(types, ", "))
		}
	}

	scanCustomAttributes(events)
}

// scanCustomAttributes 统计自定义属性容器在 targets 与 entity 中的出现
// 次数，并给出样例键，帮助确认运行属性藏在哪一层。
func scanCustomAttributes(events []map[string]any) {
	for _, location := range []string{"customAttributes", "attributes", "properties"} {
		inTarget, inEntity := 0, 0
		sampleKeys := make(map[string]struct{})
		for _, ev := range events {
			for _, target := range listOfMaps(ev["targets"]) {
				if value, ok := target[location]; ok && value != nil {
					inTarget++
					collectSampleKeys(value, sampleKeys)
				}
				if entity, ok := target["entity"].(map[string]any); ok {
					if value, ok := entity[location]; ok && value != nil {
						inEntity++
						collectSampleKeys(value, sampleKeys)
					}
				}
			}
		}
		if inTarget == 0 && inEntity == 0 {
			continue
		}
		fmt.Printf("\n  Found %q in targets: %d, in entity: %d\n", location, inTarget, inEntity)
		if len(sampleKeys) > 0 {
			keys := make([]string, 0, len(sampleKeys))
			for key := range sampleKeys {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			if len(keys) > 20 {
				keys = keys[:20]
			}
			fmt.Printf("    sample keys: %s\n", strings.Join(keys, ", "))
		}
	}
}

// collectSampleKeys 兼容对象与键值对列表两种自定义属性形态。
func collectSampleKeys(value any, into map[string]struct{}) {
	switch typed := value.(type) {
	case map[string]any:
		for key := range typed {
			into[key] = struct{}{}
		}
	case []any:
		for i, item := range typed {
			if i >= 5 {
				break
			}
			if pair, ok := item.(map[string]any); ok {
				for key := range pair {
					into[key] = struct{}{}
				}
			}
		}
	}
}

// dumpSampleEvents 原样打印前几条事件，单条超长时截断。
func dumpSampleEvents(events []map[string]any, count int) {
	if count <= 0 {
		return
	}
	if count > len(events) {
		count = len(events)
	}
	printBanner(fmt.Sprintf("RAW EVENT SAMPLES (first %d)", count))
	for i := 0; i < count; i++ {
		payload, err := json.MarshalIndent(events[i], "", "  ")
		if err != nil {
			fmt.Printf("\n--- Event %d --- (marshal failed: %v)\n", i+1, err)
			continue
		}
		fmt.Printf("\n--- Event %d ---\n", i+1)
		text := string(payload)
		if len(text) > 3000 {
			text = text[:3000] + "\n  ... (truncated)"
		}
		fmt.Println(text)
	}
}

// printRecordSamples 展示前几条运行记录的逐字段解析结果。
func printRecordSamples(records []audit.RunRecord) {
	count := sampleRecordCount
	if count > len(records) {
		count = len(records)
	}
	printBanner(fmt.Sprintf("RUN RECORD SAMPLES (first %d of %d)", count, len(records)))
	for i := 0; i < count; i++ {
		rec := &records[i]
		eventName, targetType := "?", "?"
		if rec.SourceEvent != nil {
			eventName = rec.SourceEvent.Name
			targetType = rec.SourceEvent.TargetType
		}
		fmt.Printf("\n  Record %d: %s | target=%s\n", i+1, eventName, targetType)
		for _, field := range coverageFields {
			value := field.get(rec)
			marker := "+"
			display := truncateValue(value, 60)
			if !fieldFilled(value) {
				marker = "-"
				display = "(empty)"
			}
			fmt.Printf("    %s %-20s = %s\n", marker, field.name, display)
		}
	}
}

// printCoverage 输出每个属性的解析覆盖率与进度条。
func printCoverage(records []audit.RunRecord) {
	total := len(records)
	printBanner(fmt.Sprintf("COVERAGE SUMMARY (%d records)", total))
	for _, field := range coverageFields {
		filled := 0
		for i := range records {
			if fieldFilled(field.get(&records[i])) {
				filled++
			}
		}
		pct := 0.0
		if total > 0 {
			pct = float64(filled) / float64(total) * 100
		}
		fmt.Printf("  %-20s %4d/%4d (%5.1f%%) %s\n", field.name, filled, total, pct, coverageBar(pct))
	}
}

// printReport 基于记录时间跨度构建时间桶并打印汇总报表。
func printReport(records []audit.RunRecord, query auditapi.FetchQuery) {
	start, end := query.StartMillis, query.EndMillis
	for i := range records {
		ts := records[i].Timestamp
		if ts <= 0 {
			continue
		}
		if start == 0 || ts < start {
			start = ts
		}
		if end == 0 || ts > end {
			end = ts
		}
	}

	bucketer := timebuckets.New(nil)
	buckets := bucketer.BucketsForRange(timebuckets.Range{Preset: timebuckets.PresetCustom, Start: start, End: end})
	report := reports.Build(records, buckets)

	printBanner(fmt.Sprintf("RUN REPORT (%d records)", len(records)))
	s := report.Summary
	fmt.Printf("\n  total runs: %d   active users: %d\n", s.TotalRuns, s.ActiveUsers)
	fmt.Printf("  succeeded: %d   failed: %d   success rate: %.1f%%\n", s.Succeeded, s.Failed, s.SuccessRate*100)
	fmt.Printf("  average duration: %.1fs\n", s.AverageDurationSec)
	fmt.Printf("  usage split: SAS %d / SLC %d / Unknown %d\n", s.SASRuns, s.SLCRuns, s.UnknownRuns)

	if len(report.TopUsers) > 0 {
		fmt.Println("\n  top users:")
		for _, group := range report.TopUsers {
			fmt.Printf("    %-30s %4d\n", group.Key, group.Count)
		}
	}
	if len(report.TopProjects) > 0 {
		fmt.Println("\n  top projects:")
		for _, group := range report.TopProjects {
			fmt.Printf("    %-30s %4d\n", group.Key, group.Count)
		}
	}
	if len(report.HardwareTiers) > 0 {
		fmt.Println("\n  hardware tiers:")
		for _, group := range report.HardwareTiers {
			fmt.Printf("    %-30s %4d\n", group.Key, group.Count)
		}
	}

	fmt.Println("\n  runs over time:")
	for _, point := range report.Series {
		fmt.Printf("    %-12s total %4d  (SAS %d / SLC %d / Unknown %d)\n",
			point.Bucket.Label, point.Total, point.SAS, point.SLC, point.Unknown)
	}
}

// fieldFilled 与解析链的占位约定保持一致：空串与 Unknown 视为未解析。
func fieldFilled(value string) bool {
	return value != "" && value != audit.UnknownValue
}

// coverageBar 以 5 个百分点为一格渲染定宽进度条。
func coverageBar(pct float64) string {
	filled := int(pct / 5)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

func printBanner(title string) {
	line := strings.Repeat("=", 70)
	fmt.Printf("\n%s\n%s\n%s\n", line, title, line)
}

func truncateValue(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "..."
}

// keyCount 与 sortedCounts 实现键频次表，次数降序，同频按键名升序。
type keyCount struct {
	key   string
	count int
}

func sortedCounts(counts map[string]int) []keyCount {
	result := make([]keyCount, 0, len(counts))
	for key, count := range counts {
		result = append(result, keyCount{key: key, count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].count != result[j].count {
			return result[i].count > result[j].count
		}
		return result[i].key < result[j].key
	})
	return result
}

// listOfMaps 取 JSON 解码后的对象数组，忽略非对象元素。
func listOfMaps(value any) []map[string]any {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	maps := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			maps = append(maps, m)
		}
	}
	return maps
}

// jsonTypeName 把解码后的动态值映射为 JSON 类型名。
func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", value)
	}
}
