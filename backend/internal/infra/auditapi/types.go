package auditapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FetchQuery 描述一次审计事件拉取的过滤条件。
type FetchQuery struct {
	// StartMillis 与 EndMillis 为毫秒时间戳，零值表示不限制。
	StartMillis int64
	EndMillis   int64
	// ActorID 只拉取指定操作者的事件，空值表示全部。
	ActorID string
	// MaxEvents 为本次拉取的事件总数上限，零值回退到分页总上限。
	MaxEvents int
}

// RunDetails 是运行详情接口的载荷，只保留回填需要的字段。
type RunDetails struct {
	ID                 string             `json:"id"`
	Command            CommandText        `json:"command"`
	Status             string             `json:"status"`
	DurationInSeconds  *float64           `json:"runDurationInSeconds"`
	HardwareTierName   string             `json:"hardwareTierName"`
	EnvironmentDetails EnvironmentDetails `json:"environmentDetails"`
}

// EnvironmentDetails 描述运行挂载的环境信息，不同版本的平台字段名不一致。
type EnvironmentDetails struct {
	Name            string `json:"name"`
	EnvironmentName string `json:"environmentName"`
}

// Resolved 返回环境名称，优先 name，其次 environmentName。
func (d EnvironmentDetails) Resolved() string {
	if strings.TrimSpace(d.Name) != "" {
		return strings.TrimSpace(d.Name)
	}
	return strings.TrimSpace(d.EnvironmentName)
}

// CommandText 兼容字符串与字符串数组两种命令表示，数组以空格拼接。
type CommandText string

// UnmarshalJSON 实现 json.Unmarshaler。
func (c *CommandText) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*c = ""
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*c = CommandText(single)
		return nil
	}

	var parts []string
	if err := json.Unmarshal(data, &parts); err == nil {
		*c = CommandText(strings.Join(parts, " "))
		return nil
	}

	return fmt.Errorf("command field is neither string nor string array: %s", truncateForError(trimmed))
}

// envelopeKeys 是包裹事件数组的常见字段名，按出现概率排序。
var envelopeKeys = []string{"events", "data", "items", "results", "auditEvents"}

// decodeEventsPayload 从响应体中提取原始事件数组。
// 兼容裸数组、带包裹键的对象以及单个事件对象三种形态，
// 无法识别的对象返回空数组而不是报错，交由上层按空页处理。
func decodeEventsPayload(payload []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, nil
	}

	var bare []map[string]any
	if err := json.Unmarshal(payload, &bare); err == nil {
		return bare, nil
	}

	var wrapper map[string]any
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, fmt.Errorf("decode events payload: %w", err)
	}

	for _, key := range envelopeKeys {
		value, ok := wrapper[key]
		if !ok {
			continue
		}
		items, ok := value.([]any)
		if !ok {
			continue
		}
		events := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if event, ok := item.(map[string]any); ok {
				events = append(events, event)
			}
		}
		return events, nil
	}

	// 带 id 或 timestamp 的对象视为单个事件。
	if _, ok := wrapper["id"]; ok {
		return []map[string]any{wrapper}, nil
	}
	if _, ok := wrapper["timestamp"]; ok {
		return []map[string]any{wrapper}, nil
	}

	return nil, nil
}

// truncateForError 截断错误信息里携带的原始载荷。
func truncateForError(text string) string {
	runes := []rune(text)
	if len(runes) <= 120 {
		return text
	}
	return string(runes[:120]) + "..."
}
