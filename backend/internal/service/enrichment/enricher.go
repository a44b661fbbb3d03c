// Package enrichment 调用平台运行详情接口，回填去重后记录里仍为占位值的
// 字段。回填是尽力而为的旁路操作，任何单次失败只记日志与指标，不影响主流程。
package enrichment

import (
	"context"
	"strings"

	"traceability-explorer/backend/internal/config"
	"traceability-explorer/backend/internal/domain/audit"
	"traceability-explorer/backend/internal/infra/auditapi"
	appLogger "traceability-explorer/backend/internal/infra/logger"
	"traceability-explorer/backend/internal/infra/metrics"
	"traceability-explorer/backend/internal/service/runrecords"
	"traceability-explorer/backend/internal/service/usageclass"

	"go.uber.org/zap"
)

// RunFetcher 抽象按运行标识查询详情的能力，由审计 API 客户端实现。
type RunFetcher interface {
	GetRun(ctx context.Context, runID string) (*auditapi.RunDetails, error)
}

// Enricher 持有回填配额与详情来源，字段填充只补缺失、从不覆盖审计值。
type Enricher struct {
	cfg     config.EnrichmentConfig
	fetcher RunFetcher
	logger  *zap.SugaredLogger
}

// New 创建回填器，若 logger 为空则使用默认日志实例。
func New(cfg config.EnrichmentConfig, fetcher RunFetcher, logger *zap.SugaredLogger) *Enricher {
	if logger == nil {
		logger = appLogger.S().With("component", "service.enrichment")
	}
	return &Enricher{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Enrich 对记录集合执行回填：收集真实运行标识并按首次出现顺序去重，
// 在配额内逐个查询详情，再把查到的值填进对应记录的缺失字段。
// 入参切片被原地修改后返回，查询全部失败时入参原样返回。
func (e *Enricher) Enrich(ctx context.Context, records []audit.RunRecord) []audit.RunRecord {
	if e == nil || e.fetcher == nil || len(records) == 0 {
		return records
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runIDs := collectRunIDs(records, e.cfg.MaxRuns)
	if len(runIDs) == 0 {
		return records
	}

	details := make(map[string]*auditapi.RunDetails, len(runIDs))
	for _, runID := range runIDs {
		detail, err := e.fetchRun(ctx, runID)
		if err != nil {
			metrics.RecordEnrichment("failed")
			e.logger.Debugw("run details lookup failed", "run_id", runID, "error", err)
			continue
		}
		metrics.RecordEnrichment("resolved")
		details[runID] = detail
	}
	if len(details) == 0 {
		e.logger.Infow("run enrichment resolved nothing", "candidates", len(runIDs))
		return records
	}

	applied := 0
	for i := range records {
		detail, ok := details[records[i].RunID]
		if !ok {
			continue
		}
		applyDetails(&records[i], detail)
		applied++
	}
	e.logger.Infow("run enrichment finished",
		"candidates", len(runIDs), "resolved", len(details), "applied", applied)
	return records
}

// fetchRun 执行单次详情查询，按配置为每次请求设置独立超时。
func (e *Enricher) fetchRun(ctx context.Context, runID string) (*auditapi.RunDetails, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	return e.fetcher.GetRun(ctx, runID)
}

// collectRunIDs 按首次出现顺序收集真实运行标识，跳过占位值并在配额处截断。
func collectRunIDs(records []audit.RunRecord, maxRuns int) []string {
	seen := make(map[string]struct{}, len(records))
	ids := make([]string, 0, len(records))
	for _, record := range records {
		runID := strings.TrimSpace(record.RunID)
		if runID == "" || strings.EqualFold(runID, audit.UnknownValue) {
			continue
		}
		if _, ok := seen[runID]; ok {
			continue
		}
		if maxRuns > 0 && len(ids) >= maxRuns {
			break
		}
		seen[runID] = struct{}{}
		ids = append(ids, runID)
	}
	return ids
}

// applyDetails 把详情值填进记录的缺失字段，审计事件解析出的值一律保留。
// 命令或环境名被补上后，原本无法定类的记录再做一次分类。
func applyDetails(record *audit.RunRecord, detail *auditapi.RunDetails) {
	fillString(&record.Command, string(detail.Command))
	fillString(&record.HardwareTier, detail.HardwareTierName)
	fillString(&record.EnvironmentName, detail.EnvironmentDetails.Resolved())

	if record.Status == audit.StatusUnknown {
		if status, ok := audit.ParseStatus(detail.Status); ok {
			record.Status = status
		} else if inferred := runrecords.InferStatus(detail.Status); inferred != audit.StatusUnknown {
			record.Status = inferred
		}
	}

	if record.DurationSec == nil && detail.DurationInSeconds != nil && *detail.DurationInSeconds >= 0 {
		seconds := *detail.DurationInSeconds
		record.DurationSec = &seconds
	}

	if record.UsageClass == audit.ClassUnknown {
		command := record.Command
		if command == audit.UnknownValue {
			command = record.RunFile
		}
		targetName := ""
		if record.SourceEvent != nil {
			targetName = record.SourceEvent.TargetName
		}
		record.UsageClass = usageclass.Infer(command, record.EnvironmentName, targetName)
	}
}

// fillString 仅当原值缺失且新值非空时写入。
func fillString(target *string, value string) {
	if *target != "" && *target != audit.UnknownValue {
		return
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	*target = value
}
