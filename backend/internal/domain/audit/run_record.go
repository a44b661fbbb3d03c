package audit

import "strings"

// UnknownValue 是字段无法解析时统一填充的占位文本，字符串字段永远不为空串。
const UnknownValue = "Unknown"

// Status 表示一次运行在生命周期中所处的状态，取值限定在固定集合内。
type Status string

const (
	StatusQueued    Status = "Queued"
	StatusRunning   Status = "Running"
	StatusStarted   Status = "Started"
	StatusStopped   Status = "Stopped"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusUnknown   Status = "Unknown"
)

// ParseStatus 将任意大小写的状态文本映射到规范取值，无法匹配时返回 false。
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued":
		return StatusQueued, true
	case "running":
		return StatusRunning, true
	case "started":
		return StatusStarted, true
	case "stopped":
		return StatusStopped, true
	case "succeeded":
		return StatusSucceeded, true
	case "failed":
		return StatusFailed, true
	case "unknown":
		return StatusUnknown, true
	default:
		return StatusUnknown, false
	}
}

// UsageClass 标识一次运行使用的工作负载运行时。
type UsageClass string

const (
	ClassSAS     UsageClass = "SAS"
	ClassSLC     UsageClass = "SLC"
	ClassUnknown UsageClass = "Unknown"
)

// RunRecord 是管线从审计事件流中重建出的一次逻辑运行。每次查询都从头
// 重算，不做持久化；字符串字段要么是解析出的值，要么是 UnknownValue。
type RunRecord struct {
	ID              string     `json:"id"`        // 稳定标识，已知 runId 时等于 runId，否则由时间戳加序号合成。
	Timestamp       int64      `json:"timestamp"` // 毫秒时间戳，合并后取最早一条事件的值。
	User            string     `json:"user"`
	Project         string     `json:"project"`
	Command         string     `json:"command"`
	RunID           string     `json:"runId"`
	RunType         string     `json:"runType"`
	RunFile         string     `json:"runFile"`
	RunOrigin       string     `json:"runOrigin"`
	EnvironmentName string     `json:"environmentName"`
	ComputeTier     string     `json:"computeTier"`
	HardwareTier    string     `json:"hardwareTier"`
	Status          Status     `json:"status"`
	DurationSec     *float64   `json:"durationSec"` // 非负有限秒数，无法确定时为 nil。
	UsageClass      UsageClass `json:"usageClass"`
	SourceEvent     *Event     `json:"sourceEvent,omitempty"` // 指向合并基准事件，仅供界面下钻。
}
