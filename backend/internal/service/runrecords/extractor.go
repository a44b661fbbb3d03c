// Package runrecords 将平台审计事件流重建为规范的运行记录：先按目标
// 类型或事件名筛出执行类事件，再对每条事件执行字段回退链与负载分类，
// 最后按运行标识把同一次运行的多条生命周期事件合并成一条。
package runrecords

import (
	"fmt"
	"regexp"
	"strings"

	"traceability-explorer/backend/internal/domain/audit"
	"traceability-explorer/backend/internal/service/usageclass"
)

// executionTargetTypes 指明哪些目标类型直接视为执行类事件。
var executionTargetTypes = map[string]struct{}{
	"run":       {},
	"job":       {},
	"workspace": {},
	"app":       {},
}

// executionNamePattern 对事件名做宽松匹配，兜住目标类型缺失的事件。
var executionNamePattern = regexp.MustCompile(`(?i)(run|job|workspace|app|execution)`)

// Extract 把审计事件流转换为逐事件的原始运行记录。输出保持输入的
// 相对顺序，未做去重；字段缺失一律降级为占位值，任何输入都不报错。
func Extract(events []audit.Event) []audit.RunRecord {
	records := make([]audit.RunRecord, 0, len(events))
	for i := range events {
		ev := &events[i]
		if !isExecutionEvent(ev) {
			continue
		}
		records = append(records, buildRecord(ev, len(records)))
	}
	return records
}

// buildRecord 对单条事件执行全部字段回退链并完成负载分类。
func buildRecord(ev *audit.Event, ordinal int) audit.RunRecord {
	r := newEventResolver(ev)
	rec := audit.RunRecord{
		Timestamp:       ev.Timestamp,
		User:            r.resolveString(userChain),
		Project:         r.resolveString(projectChain),
		Command:         r.resolveString(commandChain),
		RunID:           r.resolveString(runIDChain),
		RunType:         r.resolveString(runTypeChain),
		RunFile:         r.resolveString(runFileChain),
		RunOrigin:       r.resolveString(runOriginChain),
		EnvironmentName: r.resolveString(environmentChain),
		ComputeTier:     r.resolveString(computeTierChain),
		HardwareTier:    r.resolveString(hardwareTierChain),
		Status:          r.resolveStatus(),
		DurationSec:     r.resolveNumber(durationChain),
		SourceEvent:     ev,
	}

	// 分类优先看命令，命令缺失时退回运行文件。
	command := rec.Command
	if command == audit.UnknownValue {
		command = rec.RunFile
	}
	rec.UsageClass = usageclass.Infer(command, rec.EnvironmentName, ev.TargetName)

	if rec.RunID != audit.UnknownValue {
		rec.ID = rec.RunID
	} else {
		rec.ID = fmt.Sprintf("%d-%d", ev.Timestamp, ordinal)
	}
	return rec
}

// isExecutionEvent 判断事件是否属于执行类：目标类型命中固定集合，
// 或事件名中出现执行相关词汇。
func isExecutionEvent(ev *audit.Event) bool {
	targetType := strings.ToLower(strings.TrimSpace(ev.TargetType))
	if _, ok := executionTargetTypes[targetType]; ok {
		return true
	}
	return executionNamePattern.MatchString(ev.Name)
}
