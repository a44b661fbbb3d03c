package runrecords

import (
	"context"
	"errors"
	"fmt"

	"traceability-explorer/backend/internal/domain/audit"
	"traceability-explorer/backend/internal/infra/auditapi"
	appLogger "traceability-explorer/backend/internal/infra/logger"
	"traceability-explorer/backend/internal/infra/metrics"

	"go.uber.org/zap"
)

// EventSource 抽象审计事件的来源，审计 API 客户端与 CSV 模拟源都实现它。
type EventSource interface {
	FetchEvents(ctx context.Context, query auditapi.FetchQuery) ([]audit.Event, error)
}

// RecordEnricher 抽象运行详情回填，留空表示跳过回填阶段。
type RecordEnricher interface {
	Enrich(ctx context.Context, records []audit.RunRecord) []audit.RunRecord
}

// Service 把事件拉取、记录提取、合并去重与详情回填串成一条管线。
type Service struct {
	source   EventSource
	enricher RecordEnricher
	logger   *zap.SugaredLogger
}

// NewService 创建运行记录管线服务，enricher 可以为 nil，
// 若 logger 为空则使用默认日志实例。
func NewService(source EventSource, enricher RecordEnricher, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = appLogger.S().With("component", "service.runrecords")
	}
	return &Service{source: source, enricher: enricher, logger: logger}
}

// Collect 按查询条件拉取审计事件并产出规范运行记录。
func (s *Service) Collect(ctx context.Context, query auditapi.FetchQuery) ([]audit.RunRecord, error) {
	if s == nil || s.source == nil {
		return nil, errors.New("runrecords: no event source configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	events, err := s.source.FetchEvents(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch audit events: %w", err)
	}
	return s.ProcessEvents(ctx, events), nil
}

// ProcessEvents 对已拿到的事件执行提取、合并与可选回填。
// 事件来源不限，调用方可以先自行拉取原始载荷做结构分析再交给管线。
func (s *Service) ProcessEvents(ctx context.Context, events []audit.Event) []audit.RunRecord {
	if ctx == nil {
		ctx = context.Background()
	}
	extracted := Extract(events)
	records := Deduplicate(extracted)
	metrics.RecordPipeline(len(extracted), len(records))

	if s != nil && s.enricher != nil {
		records = s.enricher.Enrich(ctx, records)
	}
	if s != nil && s.logger != nil {
		s.logger.Infow("run records pipeline finished",
			"events", len(events), "extracted", len(extracted), "records", len(records))
	}
	return records
}
