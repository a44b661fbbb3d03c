package audit

// Event 表示从平台审计接口归一化后的一条审计事件。字段允许残缺，
// 核心管线只读取、不回写，所有派生结果都落在 RunRecord 上。
type Event struct {
	ID                string         `json:"id"`
	Name              string         `json:"event"`     // 人类可读的事件名，例如 "Start Workspace"。
	Timestamp         int64          `json:"timestamp"` // 毫秒时间戳，0 视为缺失。
	ActorID           string         `json:"actorId"`
	ActorName         string         `json:"actorName"`
	TargetType        string         `json:"targetType"`
	TargetID          string         `json:"targetId"`
	TargetName        string         `json:"targetName"`
	WithinProjectID   string         `json:"withinProjectId"`
	WithinProjectName string         `json:"withinProjectName"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Raw               *RawPayload    `json:"raw,omitempty"`
}

// RawPayload 保留上游响应的原始片段，供界面下钻与嵌套字段解析使用。
type RawPayload struct {
	ID        string           `json:"id,omitempty"`
	Action    map[string]any   `json:"action,omitempty"`
	In        map[string]any   `json:"in,omitempty"`
	Targets   []map[string]any `json:"targets,omitempty"`
	Affecting []AffectedEntity `json:"affecting,omitempty"`
	Source    map[string]any   `json:"source,omitempty"`
}

// AffectedEntity 描述审计事件波及的关联实体，例如环境或硬件档位。
type AffectedEntity struct {
	EntityType string `json:"entityType"`
	Name       string `json:"name"`
}
