package audit

// TimeBucket 表示图表横轴上的一个时间桶。Value 为桶起点的毫秒时间戳，
// 同一序列内严格递增；Label 与 Name 分别是短、长两种展示文本。
type TimeBucket struct {
	Value int64  `json:"value"`
	Label string `json:"label"`
	Name  string `json:"name"`
}
