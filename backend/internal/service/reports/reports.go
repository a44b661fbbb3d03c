// Package reports 在去重后的运行记录上计算仪表盘需要的聚合视图。
// 所有函数都是输入的纯函数，每次查询从头重算，不持有任何状态。
package reports

import (
	"sort"

	"traceability-explorer/backend/internal/domain/audit"
	"traceability-explorer/backend/internal/service/timebuckets"
)

// defaultLeaderboardSize 控制榜单默认收录的分组数量。
const defaultLeaderboardSize = 10

// Summary 汇总一个时间窗口内的整体运行表现，供仪表盘卡片直接展示。
type Summary struct {
	TotalRuns          int     `json:"total_runs"`
	ActiveUsers        int     `json:"active_users"`
	Succeeded          int     `json:"succeeded"`
	Failed             int     `json:"failed"`
	SuccessRate        float64 `json:"success_rate"`
	AverageDurationSec float64 `json:"average_duration_sec"`
	SASRuns            int     `json:"sas_runs"`
	SLCRuns            int     `json:"slc_runs"`
	UnknownRuns        int     `json:"unknown_runs"`
}

// SeriesPoint 是时间序列中的一列，按负载类别拆分计数。
type SeriesPoint struct {
	Bucket  audit.TimeBucket `json:"bucket"`
	Total   int              `json:"total"`
	SAS     int              `json:"sas"`
	SLC     int              `json:"slc"`
	Unknown int              `json:"unknown"`
}

// GroupCount 表示一个分组键及其运行次数。
type GroupCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Report 是一次查询的完整聚合结果，可直接序列化返回给界面。
type Report struct {
	Summary       Summary       `json:"summary"`
	Series        []SeriesPoint `json:"series"`
	TopUsers      []GroupCount  `json:"top_users"`
	TopProjects   []GroupCount  `json:"top_projects"`
	HardwareTiers []GroupCount  `json:"hardware_tiers"`
	ComputeTiers  []GroupCount  `json:"compute_tiers"`
}

// Build 组装完整聚合结果：窗口汇总、按桶拆分的时间序列与各维度榜单。
func Build(records []audit.RunRecord, buckets []audit.TimeBucket) Report {
	return Report{
		Summary:       BuildSummary(records),
		Series:        BuildSeries(records, buckets),
		TopUsers:      topN(CountBy(records, func(r *audit.RunRecord) string { return r.User }), defaultLeaderboardSize),
		TopProjects:   topN(CountBy(records, func(r *audit.RunRecord) string { return r.Project }), defaultLeaderboardSize),
		HardwareTiers: CountBy(records, func(r *audit.RunRecord) string { return r.HardwareTier }),
		ComputeTiers:  CountBy(records, func(r *audit.RunRecord) string { return r.ComputeTier }),
	}
}

// BuildSummary 计算窗口级汇总。成功率只看有终态的运行，平均时长只统计
// 时长已知的样本。
func BuildSummary(records []audit.RunRecord) Summary {
	summary := Summary{TotalRuns: len(records)}
	users := make(map[string]struct{})
	var durationSum float64
	var durationSamples int

	for i := range records {
		rec := &records[i]
		if rec.User != audit.UnknownValue && rec.User != "" {
			users[rec.User] = struct{}{}
		}
		switch rec.Status {
		case audit.StatusSucceeded:
			summary.Succeeded++
		case audit.StatusFailed:
			summary.Failed++
		}
		switch rec.UsageClass {
		case audit.ClassSAS:
			summary.SASRuns++
		case audit.ClassSLC:
			summary.SLCRuns++
		default:
			summary.UnknownRuns++
		}
		if rec.DurationSec != nil {
			durationSum += *rec.DurationSec
			durationSamples++
		}
	}

	summary.ActiveUsers = len(users)
	summary.SuccessRate = computeRate(summary.Succeeded, summary.Succeeded+summary.Failed)
	summary.AverageDurationSec = computeAverageSec(durationSum, durationSamples)
	return summary
}

// BuildSeries 把运行记录分配到桶序列上并按负载类别拆分，桶数与输入
// 桶序列一致，空桶保留零值列。
func BuildSeries(records []audit.RunRecord, buckets []audit.TimeBucket) []SeriesPoint {
	all := make([]int64, 0, len(records))
	sas := make([]int64, 0, len(records))
	slc := make([]int64, 0, len(records))
	unknown := make([]int64, 0, len(records))
	for i := range records {
		rec := &records[i]
		all = append(all, rec.Timestamp)
		switch rec.UsageClass {
		case audit.ClassSAS:
			sas = append(sas, rec.Timestamp)
		case audit.ClassSLC:
			slc = append(slc, rec.Timestamp)
		default:
			unknown = append(unknown, rec.Timestamp)
		}
	}

	totalCounts := timebuckets.AssignTimestamps(all, buckets)
	sasCounts := timebuckets.AssignTimestamps(sas, buckets)
	slcCounts := timebuckets.AssignTimestamps(slc, buckets)
	unknownCounts := timebuckets.AssignTimestamps(unknown, buckets)

	points := make([]SeriesPoint, 0, len(buckets))
	for _, bucket := range buckets {
		points = append(points, SeriesPoint{
			Bucket:  bucket,
			Total:   totalCounts[bucket.Value],
			SAS:     sasCounts[bucket.Value],
			SLC:     slcCounts[bucket.Value],
			Unknown: unknownCounts[bucket.Value],
		})
	}
	return points
}

// CountBy 按提取的键统计运行数，结果按次数降序、同次数按键名升序，
// 保证输出顺序确定。空键跳过，占位值保留以反映数据质量。
func CountBy(records []audit.RunRecord, key func(r *audit.RunRecord) string) []GroupCount {
	counts := make(map[string]int)
	for i := range records {
		k := key(&records[i])
		if k == "" {
			continue
		}
		counts[k]++
	}

	result := make([]GroupCount, 0, len(counts))
	for k, count := range counts {
		result = append(result, GroupCount{Key: k, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Key < result[j].Key
	})
	return result
}

// topN 截取榜单前 n 项。
func topN(groups []GroupCount, n int) []GroupCount {
	if n <= 0 || len(groups) <= n {
		return groups
	}
	return groups[:n]
}

// computeRate 计算成功率，处理分母为零的场景。
func computeRate(success, total int) float64 {
	if total <= 0 || success < 0 {
		return 0
	}
	return float64(success) / float64(total)
}

// computeAverageSec 根据时长总和与样本数计算平均秒数。
func computeAverageSec(sum float64, samples int) float64 {
	if samples <= 0 || sum <= 0 {
		return 0
	}
	return sum / float64(samples)
}
