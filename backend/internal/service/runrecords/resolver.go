package runrecords

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"traceability-explorer/backend/internal/domain/audit"
)

// stringCandidate 表示一次字符串取值尝试，命中时返回修剪后的非空值。
type stringCandidate func(r *eventResolver) (string, bool)

// numberCandidate 表示一次数值取值尝试，命中值必须有限且非负。
type numberCandidate func(r *eventResolver) (float64, bool)

// 每个属性对应一条有序候选链：直接字段优先，其次按精确键名、规范化
// 键名、嵌套对象、关联实体、目标类型兜底的顺序查找。上游会在不同事件
// 来源下用不同别名暴露同一语义字段（例如 "Run Command"、runCommand、
// command），候选链把这些别名统一收敛到一个规范属性上。
var (
	commandChain = []stringCandidate{
		metaExact("runCommand", "command", "jobRunCommand", "commandToRun"),
		metaFold("runcommand", "command", "jobruncommand", "commandtorun"),
	}

	environmentChain = []stringCandidate{
		metaExact("environmentName", "environment", "environmentRevisionName"),
		metaFold("environmentname", "environment", "environmentrevisionname"),
		nested("environment", "environmentName", "name"),
		affecting("environment"),
	}

	computeTierChain = []stringCandidate{
		metaExact("computeTier", "computeSize", "tier"),
		metaFold("computetier", "computesize", "tier"),
	}

	hardwareTierChain = []stringCandidate{
		metaExact("hardwareTier", "hardwareTierName"),
		metaFold("hardwaretier", "hardwaretiername"),
		nested("hardwareTier", "name"),
		affecting("hardwaretier"),
	}

	runIDChain = []stringCandidate{
		metaExact("runId", "executionId"),
		metaFold("runid", "executionid", "run"),
		targetIDForTypes("run", "job"),
	}

	runFileChain = []stringCandidate{
		metaExact("runFile", "filename"),
		metaFold("runfile", "filename"),
	}

	runOriginChain = []stringCandidate{
		metaExact("runOrigin", "source"),
		metaFold("runorigin", "source"),
	}

	runTypeChain = []stringCandidate{
		metaExact("runType", "executionType"),
		metaFold("runtype", "executiontype"),
		direct(func(ev *audit.Event) string { return ev.TargetType }),
	}

	userChain = []stringCandidate{
		direct(func(ev *audit.Event) string { return ev.ActorName }),
		metaFold("username", "user", "startedby"),
		nested("startedBy", "username", "userName", "name"),
		direct(func(ev *audit.Event) string { return ev.ActorID }),
	}

	projectChain = []stringCandidate{
		direct(func(ev *audit.Event) string { return ev.WithinProjectName }),
		metaFold("projectname", "project"),
		direct(func(ev *audit.Event) string { return ev.WithinProjectID }),
	}

	statusChain = []stringCandidate{
		metaExact("status", "runStatus", "executionStatus"),
		metaFold("status", "runstatus", "executionstatus"),
		nested("statuses", "executionStatus", "status"),
	}

	durationChain = []numberCandidate{
		numMetaExact("durationSec", "runDurationSec", "runDurationSeconds", "runDurationInSeconds"),
		numMetaFold("durationsec", "rundurationsec", "rundurationseconds", "rundurationinseconds"),
		stageSpan(),
	}
)

// statusKeywordTable 按固定顺序做大小写不敏感的子串匹配，排前的规则优先。
var statusKeywordTable = []struct {
	keywords []string
	status   audit.Status
}{
	{keywords: []string{"fail", "error", "fault"}, status: audit.StatusFailed},
	{keywords: []string{"stop", "discard"}, status: audit.StatusStopped},
	{keywords: []string{"succeed", "complete", "finish", "publish"}, status: audit.StatusSucceeded},
	{keywords: []string{"start", "launch", "run"}, status: audit.StatusStarted},
	{keywords: []string{"queue", "schedule"}, status: audit.StatusQueued},
	{keywords: []string{"pull", "build", "prepare", "mount", "synchronize"}, status: audit.StatusRunning},
}

// eventResolver 面向单条审计事件执行字段回退链。规范化键查找表每条
// 事件只构建一次，后续所有属性共用，避免逐属性全量扫描 metadata。
type eventResolver struct {
	ev   *audit.Event
	norm map[string]any
}

// newEventResolver 构建解析器并生成规范化键查找表。遍历按键名排序，
// 多个原始键折叠到同一规范化键时取排序后的首个，保证结果确定。
func newEventResolver(ev *audit.Event) *eventResolver {
	r := &eventResolver{ev: ev}
	if len(ev.Metadata) == 0 {
		return r
	}
	keys := make([]string, 0, len(ev.Metadata))
	for key := range ev.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	r.norm = make(map[string]any, len(keys))
	for _, key := range keys {
		folded := normalizeKey(key)
		if folded == "" {
			continue
		}
		if _, exists := r.norm[folded]; !exists {
			r.norm[folded] = ev.Metadata[key]
		}
	}
	return r
}

// resolveString 依序执行候选链，全部落空时返回占位值。
func (r *eventResolver) resolveString(chain []stringCandidate) string {
	for _, candidate := range chain {
		if value, ok := candidate(r); ok {
			return value
		}
	}
	return audit.UnknownValue
}

// resolveNumber 依序执行数值候选链，全部落空时返回 nil。
func (r *eventResolver) resolveNumber(chain []numberCandidate) *float64 {
	for _, candidate := range chain {
		if value, ok := candidate(r); ok {
			result := value
			return &result
		}
	}
	return nil
}

// resolveStatus 优先取显式状态字段并归一到规范集合；显式值无法归一时
// 退回关键词推断，所有候选都落空时再根据事件名推断。
func (r *eventResolver) resolveStatus() audit.Status {
	for _, candidate := range statusChain {
		raw, ok := candidate(r)
		if !ok {
			continue
		}
		if status, parsed := audit.ParseStatus(raw); parsed {
			return status
		}
		if status := InferStatus(raw); status != audit.StatusUnknown {
			return status
		}
	}
	return InferStatus(r.ev.Name)
}

// nestedMap 取 metadata 中的嵌套对象，父键先精确匹配再规范化匹配。
func (r *eventResolver) nestedMap(parent string) (map[string]any, bool) {
	if value, ok := r.ev.Metadata[parent]; ok {
		if obj, ok := mapOf(value); ok {
			return obj, true
		}
	}
	if value, ok := r.norm[normalizeKey(parent)]; ok {
		return mapOf(value)
	}
	return nil, false
}

// InferStatus 根据文本中的动词推断运行状态，匹配不到返回 Unknown。
func InferStatus(text string) audit.Status {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return audit.StatusUnknown
	}
	for _, row := range statusKeywordTable {
		for _, keyword := range row.keywords {
			if strings.Contains(lowered, keyword) {
				return row.status
			}
		}
	}
	return audit.StatusUnknown
}

// direct 读取事件结构体自身的字段。
func direct(get func(ev *audit.Event) string) stringCandidate {
	return func(r *eventResolver) (string, bool) {
		return nonEmpty(get(r.ev))
	}
}

// metaExact 按给定键名在 metadata 中精确查找字符串值。
func metaExact(keys ...string) stringCandidate {
	return func(r *eventResolver) (string, bool) {
		for _, key := range keys {
			if value, ok := r.ev.Metadata[key]; ok {
				if text, ok := stringOf(value); ok {
					return text, true
				}
			}
		}
		return "", false
	}
}

// metaFold 在规范化键查找表中查找，入参键名须已是 normalizeKey 形式。
func metaFold(keys ...string) stringCandidate {
	return func(r *eventResolver) (string, bool) {
		for _, key := range keys {
			if value, ok := r.norm[key]; ok {
				if text, ok := stringOf(value); ok {
					return text, true
				}
			}
		}
		return "", false
	}
}

// nested 查找嵌套对象中的子字段，子键按声明顺序精确匹配。
func nested(parent string, children ...string) stringCandidate {
	return func(r *eventResolver) (string, bool) {
		obj, ok := r.nestedMap(parent)
		if !ok {
			return "", false
		}
		for _, child := range children {
			if value, ok := obj[child]; ok {
				if text, ok := stringOf(value); ok {
					return text, true
				}
			}
		}
		return "", false
	}
}

// affecting 从原始载荷的 affecting 列表中取指定实体类型的名称。
func affecting(entityType string) stringCandidate {
	return func(r *eventResolver) (string, bool) {
		if r.ev.Raw == nil {
			return "", false
		}
		for _, entity := range r.ev.Raw.Affecting {
			if strings.EqualFold(strings.TrimSpace(entity.EntityType), entityType) {
				if name, ok := nonEmpty(entity.Name); ok {
					return name, true
				}
			}
		}
		return "", false
	}
}

// targetIDForTypes 在目标类型命中时把 targetId 当作运行标识使用。
func targetIDForTypes(types ...string) stringCandidate {
	return func(r *eventResolver) (string, bool) {
		targetType := strings.ToLower(strings.TrimSpace(r.ev.TargetType))
		for _, candidate := range types {
			if targetType == candidate {
				return nonEmpty(r.ev.TargetID)
			}
		}
		return "", false
	}
}

// numMetaExact 按精确键名查找可解析为非负有限数的 metadata 值。
func numMetaExact(keys ...string) numberCandidate {
	return func(r *eventResolver) (float64, bool) {
		for _, key := range keys {
			if value, ok := r.ev.Metadata[key]; ok {
				if number, ok := numberOf(value); ok && number >= 0 {
					return number, true
				}
			}
		}
		return 0, false
	}
}

// numMetaFold 在规范化键查找表中查找非负有限数。
func numMetaFold(keys ...string) numberCandidate {
	return func(r *eventResolver) (float64, bool) {
		for _, key := range keys {
			if value, ok := r.norm[key]; ok {
				if number, ok := numberOf(value); ok && number >= 0 {
					return number, true
				}
			}
		}
		return 0, false
	}
}

// stageSpan 从 stageTime 的起止毫秒推导秒级时长，仅当两个时间都存在
// 且完成时间晚于启动时间时成立。
func stageSpan() numberCandidate {
	return func(r *eventResolver) (float64, bool) {
		obj, ok := r.nestedMap("stageTime")
		if !ok {
			return 0, false
		}
		start, ok := numberIn(obj, "runStartTime", "startTime")
		if !ok {
			return 0, false
		}
		end, ok := numberIn(obj, "completedTime", "completeTime")
		if !ok {
			return 0, false
		}
		if end <= start {
			return 0, false
		}
		return (end - start) / 1000, true
	}
}

// numberIn 按声明顺序在对象中找第一个可解析的数值。
func numberIn(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if value, ok := obj[key]; ok {
			if number, ok := numberOf(value); ok {
				return number, true
			}
		}
	}
	return 0, false
}

// normalizeKey 将键名转为小写并去掉空白、连字符与下划线。
func normalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// nonEmpty 修剪空白后返回字符串，空串视为未命中。
func nonEmpty(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	return trimmed, trimmed != ""
}

// stringOf 只接受字符串类型的值，空白内容视为未命中。
func stringOf(value any) (string, bool) {
	text, ok := value.(string)
	if !ok {
		return "", false
	}
	return nonEmpty(text)
}

// mapOf 只接受对象类型的值。
func mapOf(value any) (map[string]any, bool) {
	obj, ok := value.(map[string]any)
	return obj, ok
}

// numberOf 将数值或数值文本转为有限浮点数，其余类型一律视为未命中。
func numberOf(value any) (float64, bool) {
	switch number := value.(type) {
	case float64:
		return number, !math.IsNaN(number) && !math.IsInf(number, 0)
	case float32:
		return float64(number), true
	case int:
		return float64(number), true
	case int64:
		return float64(number), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(number), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
