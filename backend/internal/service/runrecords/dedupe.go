package runrecords

import (
	"sort"

	"traceability-explorer/backend/internal/domain/audit"
)

// Deduplicate 把共享同一 runId 的多条生命周期记录合并为一条规范记录。
// runId 为占位值的记录没有可靠的关联键，原样保留不参与合并；输出整体
// 按时间戳降序排列，最新的运行排在最前。输入切片不会被修改。
func Deduplicate(records []audit.RunRecord) []audit.RunRecord {
	if len(records) == 0 {
		return []audit.RunRecord{}
	}

	groups := make(map[string][]audit.RunRecord)
	order := make([]string, 0, len(records))
	passthrough := make([]audit.RunRecord, 0)

	for _, rec := range records {
		if rec.RunID == audit.UnknownValue || rec.RunID == "" {
			passthrough = append(passthrough, rec)
			continue
		}
		if _, seen := groups[rec.RunID]; !seen {
			order = append(order, rec.RunID)
		}
		groups[rec.RunID] = append(groups[rec.RunID], rec)
	}

	result := make([]audit.RunRecord, 0, len(order)+len(passthrough))
	for _, runID := range order {
		result = append(result, mergeGroup(groups[runID]))
	}
	result = append(result, passthrough...)

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp > result[j].Timestamp
	})
	return result
}

// mergeGroup 将同一 runId 的记录按时间升序合并：最早一条作为基准，
// 其余记录只用来补齐基准缺失的字段。
func mergeGroup(group []audit.RunRecord) audit.RunRecord {
	if len(group) == 1 {
		return group[0]
	}

	sorted := append([]audit.RunRecord(nil), group...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	base := sorted[0]

	// 除 status 与 durationSec 外，基准缺失的字段取升序扫描中的首个有效值。
	fields := []func(r *audit.RunRecord) *string{
		func(r *audit.RunRecord) *string { return &r.User },
		func(r *audit.RunRecord) *string { return &r.Project },
		func(r *audit.RunRecord) *string { return &r.Command },
		func(r *audit.RunRecord) *string { return &r.RunType },
		func(r *audit.RunRecord) *string { return &r.RunFile },
		func(r *audit.RunRecord) *string { return &r.RunOrigin },
		func(r *audit.RunRecord) *string { return &r.EnvironmentName },
		func(r *audit.RunRecord) *string { return &r.ComputeTier },
		func(r *audit.RunRecord) *string { return &r.HardwareTier },
	}
	for _, field := range fields {
		if *field(&base) != audit.UnknownValue {
			continue
		}
		for i := range sorted {
			if value := *field(&sorted[i]); value != audit.UnknownValue && value != "" {
				*field(&base) = value
				break
			}
		}
	}

	if base.UsageClass == audit.ClassUnknown {
		for i := range sorted {
			if sorted[i].UsageClass != audit.ClassUnknown {
				base.UsageClass = sorted[i].UsageClass
				break
			}
		}
	}

	if base.DurationSec == nil {
		for i := range sorted {
			if sorted[i].DurationSec != nil {
				value := *sorted[i].DurationSec
				base.DurationSec = &value
				break
			}
		}
	}
	// 仍未知时用首末事件的时间差近似运行时长，误差来自事件到达间隔。
	if base.DurationSec == nil {
		first := sorted[0].Timestamp
		last := sorted[len(sorted)-1].Timestamp
		if first > 0 && last > first {
			span := float64(last-first) / 1000
			base.DurationSec = &span
		}
	}

	// 状态从最晚向最早扫描，首个既非 Unknown 也非 Started 的值生效：
	// 生命周期后段的终态覆盖开头的 Started，找不到则保留基准状态。
	for i := len(sorted) - 1; i >= 0; i-- {
		if status := sorted[i].Status; status != audit.StatusUnknown && status != audit.StatusStarted {
			base.Status = status
			break
		}
	}

	return base
}
