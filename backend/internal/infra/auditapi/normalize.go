package auditapi

import (
	"strconv"
	"strings"
	"time"

	"traceability-explorer/backend/internal/domain/audit"
)

// customAttributeKeys 是平台把扩展属性挂在目标上时可能使用的字段名。
var customAttributeKeys = []string{"customAttributes", "attributes", "properties"}

// Normalize 把审计 API 的原始事件映射为领域事件。
// 上游形态为 actor.{id,name}、action.{eventName}、in.{id,name}、
// targets[].entity 与 metadata，旧版部署则把同类字段平铺在顶层，
// 两种形态都接受。目标上的扩展属性合并进 Metadata，已有键不覆盖。
func Normalize(raw map[string]any) audit.Event {
	actor := mapAt(raw, "actor")
	action := mapAt(raw, "action")
	contextIn := mapAt(raw, "in")
	targets := listOfMaps(raw["targets"])
	var firstTarget map[string]any
	if len(targets) > 0 {
		firstTarget = targets[0]
	}
	entity := mapAt(firstTarget, "entity")

	metadata := cloneMap(mapAt(raw, "metadata"))
	for _, target := range targets {
		mergeCustomAttributes(metadata, target)
		mergeCustomAttributes(metadata, mapAt(target, "entity"))
	}

	event := audit.Event{
		ID:                stringAt(raw, "id"),
		Name:              firstNonEmpty(stringAt(action, "eventName"), stringAt(raw, "event")),
		Timestamp:         coerceTimestamp(raw["timestamp"]),
		ActorID:           firstNonEmpty(stringAt(actor, "id"), stringAt(actor, "userId")),
		ActorName:         stringAt(actor, "name"),
		TargetType:        firstNonEmpty(stringAt(entity, "entityType"), stringAt(raw, "targetType")),
		TargetID:          firstNonEmpty(stringAt(entity, "id"), stringAt(raw, "targetId")),
		TargetName:        firstNonEmpty(stringAt(entity, "name"), stringAt(raw, "targetName")),
		WithinProjectID:   firstNonEmpty(stringAt(contextIn, "id"), stringAt(raw, "withinProjectId")),
		WithinProjectName: firstNonEmpty(stringAt(contextIn, "name"), stringAt(raw, "withinProjectName")),
		Metadata:          metadata,
		Raw: &audit.RawPayload{
			ID:        stringAt(raw, "id"),
			Action:    action,
			In:        contextIn,
			Targets:   targets,
			Affecting: affectedEntities(raw["affecting"]),
			Source:    mapAt(raw, "source"),
		},
	}
	return event
}

// NormalizeAll 批量归一化原始事件。
func NormalizeAll(rawEvents []map[string]any) []audit.Event {
	events := make([]audit.Event, 0, len(rawEvents))
	for _, raw := range rawEvents {
		if raw == nil {
			continue
		}
		events = append(events, Normalize(raw))
	}
	return events
}

// mergeCustomAttributes 把 holder 上的扩展属性并入 metadata。
// 兼容对象与 {key,value}/{name,value} 数组两种表示，先到的键保留。
func mergeCustomAttributes(metadata map[string]any, holder map[string]any) {
	if holder == nil {
		return
	}
	for _, attrKey := range customAttributeKeys {
		value, ok := holder[attrKey]
		if !ok {
			continue
		}
		switch attrs := value.(type) {
		case map[string]any:
			for k, v := range attrs {
				putIfAbsent(metadata, k, v)
			}
		case []any:
			for _, item := range attrs {
				pair, ok := item.(map[string]any)
				if !ok {
					continue
				}
				name := firstNonEmpty(stringAt(pair, "key"), stringAt(pair, "name"))
				if name == "" {
					continue
				}
				putIfAbsent(metadata, name, pair["value"])
			}
		}
	}
}

// affectedEntities 解析事件波及的关联实体列表。
func affectedEntities(value any) []audit.AffectedEntity {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	var entities []audit.AffectedEntity
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		// 部分部署把实体信息再包一层 entity。
		if inner := mapAt(entry, "entity"); inner != nil {
			entry = inner
		}
		entityType := stringAt(entry, "entityType")
		name := stringAt(entry, "name")
		if entityType == "" && name == "" {
			continue
		}
		entities = append(entities, audit.AffectedEntity{EntityType: entityType, Name: name})
	}
	return entities
}

// coerceTimestamp 把上游时间戳统一成毫秒整数。
// 数值按毫秒直读，字符串先按纯数字再按 RFC3339 解析，其余情况返回 0。
func coerceTimestamp(value any) int64 {
	switch ts := value.(type) {
	case float64:
		return int64(ts)
	case int64:
		return ts
	case int:
		return int64(ts)
	case string:
		trimmed := strings.TrimSpace(ts)
		if trimmed == "" {
			return 0
		}
		if millis, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return millis
		}
		if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
			return parsed.UnixMilli()
		}
		return 0
	default:
		return 0
	}
}

// mapAt 取出子对象，缺失或类型不符时返回 nil。
func mapAt(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if value, ok := m[key].(map[string]any); ok {
		return value
	}
	return nil
}

// listOfMaps 把 []any 过滤成对象数组。
func listOfMaps(value any) []map[string]any {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	var maps []map[string]any
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			maps = append(maps, m)
		}
	}
	return maps
}

// stringAt 取出字符串字段并去除首尾空白，数值字段一并转成字符串。
func stringAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch value := m[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		if value == float64(int64(value)) {
			return strconv.FormatInt(int64(value), 10)
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return ""
	}
}

// firstNonEmpty 返回第一个非空字符串。
func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// cloneMap 复制 metadata，保证归一化结果与原始载荷互不影响。
func cloneMap(m map[string]any) map[string]any {
	cloned := make(map[string]any, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// putIfAbsent 只在键不存在时写入。
func putIfAbsent(m map[string]any, key string, value any) {
	if key == "" || value == nil {
		return
	}
	if _, exists := m[key]; exists {
		return
	}
	m[key] = value
}
