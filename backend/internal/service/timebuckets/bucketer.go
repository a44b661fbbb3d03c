// Package timebuckets 为图表聚合生成时间桶边界，并把事件分配到桶内。
// 桶粒度由时间范围预设决定，保证同一预设下横轴列数稳定。
package timebuckets

import (
	"math"
	"sort"
	"strings"
	"time"

	"traceability-explorer/backend/internal/domain/audit"
)

// 预设名称与界面上的时间范围选项一一对应。
const (
	PresetLast24h = "last24h"
	PresetToday   = "today"
	PresetLast7d  = "last7d"
	PresetLast30d = "last30d"
	PresetCustom  = "custom"
	PresetAll     = "all"
)

const (
	dayMillis  = int64(24 * time.Hour / time.Millisecond)
	yearMillis = 365 * dayMillis

	// 小时桶最多铺 24 个，超出范围末端的部分被截断。
	hourlyBucketCap = 24
)

// Range 描述一次查询的时间窗口，Start 与 End 为毫秒时间戳，两端都含。
type Range struct {
	Preset string
	Start  int64
	End    int64
}

// labelKind 决定桶的展示文本格式。
type labelKind int

const (
	labelHourly labelKind = iota
	labelDaily
	labelWeekly
	labelMonthly
)

// Bucketer 按预设粒度生成桶序列。时区只影响零点与整点对齐，默认 UTC。
type Bucketer struct {
	loc *time.Location
}

// New 创建桶生成器，loc 为空时使用 UTC。
func New(loc *time.Location) *Bucketer {
	if loc == nil {
		loc = time.UTC
	}
	return &Bucketer{loc: loc}
}

// BucketsForRange 根据预设生成升序且不重复的桶边界序列：
//   - last24h / today：按整点对齐的小时桶，最多 24 个；
//   - last7d / last30d：按零点对齐的天桶，每个自然日一个；
//   - custom：跨度不超过 31 天用天桶，不超过 90 天用按步长抽稀的天桶
//     （步长为跨度天数除以 30 向上取整），超过 90 天用周桶，超过 365
//     天用月桶（以 30 天为步长）；
//   - all：按 365 天阈值在周桶与月桶之间选择；
//   - 其余预设一律退回天桶策略。
//
// 短预设在退化范围下可能得不到任何小时桶或天桶，此时退回覆盖
// 起止时间的天桶，保证序列至少有一个元素。
func (b *Bucketer) BucketsForRange(r Range) []audit.TimeBucket {
	preset := strings.ToLower(strings.TrimSpace(r.Preset))
	start, end := r.Start, r.End

	var buckets []audit.TimeBucket
	switch preset {
	case PresetLast24h, PresetToday:
		buckets = b.generate(b.hourStart(start), end, hourlyBucketCap, labelHourly, stepHours(1))
	case PresetLast7d, PresetLast30d:
		buckets = b.generate(b.dayStart(start), end, 0, labelDaily, stepDays(1))
	case PresetAll:
		if end-start > yearMillis {
			buckets = b.generate(b.dayStart(start), end, 0, labelMonthly, stepDays(30))
		} else {
			buckets = b.generate(b.dayStart(start), end, 0, labelWeekly, stepDays(7))
		}
	case PresetCustom:
		buckets = b.customBuckets(start, end)
	default:
		buckets = b.generate(b.dayStart(start), end, 0, labelDaily, stepDays(1))
	}

	if len(buckets) == 0 {
		buckets = b.fallbackDaily(start, end)
	}
	return buckets
}

// customBuckets 按自定义范围的跨度挑选粒度。
func (b *Bucketer) customBuckets(start, end int64) []audit.TimeBucket {
	spanDays := float64(end-start) / float64(dayMillis)
	switch {
	case spanDays > 365:
		return b.generate(b.dayStart(start), end, 0, labelMonthly, stepDays(30))
	case spanDays > 90:
		return b.generate(b.dayStart(start), end, 0, labelWeekly, stepDays(7))
	case spanDays > 31:
		step := int(math.Ceil(spanDays / 30))
		return b.generate(b.dayStart(start), end, 0, labelDaily, stepDays(step))
	default:
		return b.generate(b.dayStart(start), end, 0, labelDaily, stepDays(1))
	}
}

// generate 从首个边界按步长铺满到范围末端。limit 为桶数上限，0 表示不限。
func (b *Bucketer) generate(first time.Time, end int64, limit int, kind labelKind, step func(time.Time) time.Time) []audit.TimeBucket {
	buckets := make([]audit.TimeBucket, 0, 32)
	for cursor := first; cursor.UnixMilli() <= end; cursor = step(cursor) {
		if limit > 0 && len(buckets) >= limit {
			break
		}
		buckets = append(buckets, b.bucketAt(cursor, kind))
	}
	return buckets
}

// fallbackDaily 为退化范围兜底，至少产出一个覆盖起点所在日的桶。
func (b *Bucketer) fallbackDaily(start, end int64) []audit.TimeBucket {
	buckets := b.generate(b.dayStart(start), end, 0, labelDaily, stepDays(1))
	if len(buckets) == 0 {
		buckets = []audit.TimeBucket{b.bucketAt(b.dayStart(start), labelDaily)}
	}
	return buckets
}

// bucketAt 生成单个桶并按粒度渲染长短两种展示文本。
func (b *Bucketer) bucketAt(t time.Time, kind labelKind) audit.TimeBucket {
	bucket := audit.TimeBucket{Value: t.UnixMilli()}
	switch kind {
	case labelHourly:
		bucket.Label = t.Format("15:04")
		bucket.Name = t.Format("Jan 2, 15:04")
	case labelWeekly:
		bucket.Label = t.Format("Jan 2")
		bucket.Name = "Week of " + t.Format("Jan 2, 2006")
	case labelMonthly:
		bucket.Label = t.Format("Jan 2006")
		bucket.Name = t.Format("January 2006")
	default:
		bucket.Label = t.Format("Jan 2")
		bucket.Name = t.Format("Jan 2, 2006")
	}
	return bucket
}

// PresetRange 根据相对预设计算时间窗口，custom 与 all 需调用方自带边界。
func (b *Bucketer) PresetRange(preset string, now time.Time) Range {
	end := now.UnixMilli()
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case PresetToday:
		return Range{Preset: PresetToday, Start: b.dayStart(end).UnixMilli(), End: end}
	case PresetLast7d:
		return Range{Preset: PresetLast7d, Start: end - 7*dayMillis, End: end}
	case PresetLast30d:
		return Range{Preset: PresetLast30d, Start: end - 30*dayMillis, End: end}
	default:
		return Range{Preset: PresetLast24h, Start: end - dayMillis, End: end}
	}
}

// hourStart 把毫秒时间戳对齐到所在小时的起点。
func (b *Bucketer) hourStart(ms int64) time.Time {
	t := time.UnixMilli(ms).In(b.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, b.loc)
}

// dayStart 把毫秒时间戳对齐到所在自然日的零点。
func (b *Bucketer) dayStart(ms int64) time.Time {
	t := time.UnixMilli(ms).In(b.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, b.loc)
}

// stepHours 返回按小时推进的步进函数。
func stepHours(n int) func(time.Time) time.Time {
	return func(t time.Time) time.Time { return t.Add(time.Duration(n) * time.Hour) }
}

// stepDays 返回按自然日推进的步进函数，跨夏令时仍保持零点对齐。
func stepDays(n int) func(time.Time) time.Time {
	return func(t time.Time) time.Time { return t.AddDate(0, 0, n) }
}

// Assign 把事件计入起点不超过其时间戳的最近一个桶。时间戳缺失或早于
// 首个桶起点的事件不参与计数；返回的映射为每个桶预置零值。
func Assign(events []audit.Event, buckets []audit.TimeBucket) map[int64]int {
	timestamps := make([]int64, 0, len(events))
	for i := range events {
		timestamps = append(timestamps, events[i].Timestamp)
	}
	return AssignTimestamps(timestamps, buckets)
}

// AssignTimestamps 是 Assign 的底层实现，供运行记录等其他序列复用。
func AssignTimestamps(timestamps []int64, buckets []audit.TimeBucket) map[int64]int {
	counts := make(map[int64]int, len(buckets))
	for _, bucket := range buckets {
		counts[bucket.Value] = 0
	}
	if len(buckets) == 0 {
		return counts
	}
	for _, ts := range timestamps {
		if ts <= 0 || ts < buckets[0].Value {
			continue
		}
		idx := sort.Search(len(buckets), func(i int) bool { return buckets[i].Value > ts }) - 1
		counts[buckets[idx].Value]++
	}
	return counts
}
