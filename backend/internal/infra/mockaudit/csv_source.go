// Package mockaudit 从 CSV 样例文件加载审计事件，供没有平台凭证的
// 环境演示完整管线。
package mockaudit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"traceability-explorer/backend/internal/domain/audit"
	"traceability-explorer/backend/internal/infra/auditapi"
)

// 样例 CSV 的列名，与平台审计界面导出的表头一致。
const (
	columnDateTime = "DATE & TIME"
	columnEvent    = "EVENT"
	columnUser     = "USER NAME"
	columnTarget   = "TARGET NAME"
	columnProject  = "PROJECT NAME"
)

// maxMockEvents 防止异常大的样例文件拖垮内存。
const maxMockEvents = 100_000

// Source 读取 CSV 样例审计事件。
type Source struct {
	path string
}

// NewSource 构造 CSV 样例数据源。
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Load 读取至多 limit 条事件，limit <= 0 表示全部，仍受硬上限约束。
func (s *Source) Load(limit int) ([]audit.Event, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open mock csv: %w", err)
	}
	defer file.Close()

	return parse(file, limit)
}

// LoadRange 读取后按时间窗口过滤。
func (s *Source) LoadRange(startMillis, endMillis int64, limit int) ([]audit.Event, error) {
	events, err := s.Load(limit)
	if err != nil {
		return nil, err
	}
	return FilterRange(events, startMillis, endMillis), nil
}

// FetchEvents 让 CSV 数据源满足与审计 API 客户端一致的事件来源接口。
func (s *Source) FetchEvents(_ context.Context, query auditapi.FetchQuery) ([]audit.Event, error) {
	return s.LoadRange(query.StartMillis, query.EndMillis, query.MaxEvents)
}

// FilterRange 保留时间戳落在 [startMillis, endMillis] 内的事件，
// 任一端为零表示不过滤。时间戳缺失的行会被窗口剔除。
func FilterRange(events []audit.Event, startMillis, endMillis int64) []audit.Event {
	if startMillis == 0 || endMillis == 0 {
		return events
	}
	filtered := make([]audit.Event, 0, len(events))
	for _, event := range events {
		if event.Timestamp == 0 {
			continue
		}
		if event.Timestamp < startMillis || event.Timestamp > endMillis {
			continue
		}
		filtered = append(filtered, event)
	}
	return filtered
}

// parse 逐行读取 CSV 并组装领域事件。
func parse(r io.Reader, limit int) ([]audit.Event, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read mock csv header: %w", err)
	}
	index := headerIndex(header)

	if limit <= 0 || limit > maxMockEvents {
		limit = maxMockEvents
	}

	var events []audit.Event
	for i := 0; len(events) < limit; i++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mock csv row %d: %w", i+1, err)
		}

		cell := func(name string) string {
			idx, ok := index[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		user := cell(columnUser)
		target := cell(columnTarget)
		project := cell(columnProject)
		events = append(events, audit.Event{
			ID:                fmt.Sprintf("mock-%d", i),
			Name:              cell(columnEvent),
			Timestamp:         parseTimestamp(cell(columnDateTime)),
			ActorID:           user,
			ActorName:         user,
			TargetID:          target,
			TargetName:        target,
			WithinProjectID:   project,
			WithinProjectName: project,
			Metadata:          map[string]any{},
		})
	}
	return events, nil
}

// headerIndex 建立大小写不敏感的表头索引。
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	return index
}

// parseTimestamp 解析 ISO8601 时间，兼容 Z 后缀与无时区写法，失败返回 0。
func parseTimestamp(value string) int64 {
	if value == "" {
		return 0
	}
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UnixMilli()
		}
	}
	return 0
}
