package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAuditBasePath     = "/api/audittrail/v1/auditevents"
	defaultAuditMaxLimit     = 1000
	defaultPaginationCap     = 50000
	defaultEnrichMaxRuns     = 300
	defaultEnrichTimeoutSecs = 10
)

// defaultFallbackPaths 是主路径 404 时依次改试的审计端点，
// 兼容新旧两代平台的路由差异。
var defaultFallbackPaths = []string{"/v4/auditevents"}

// AuditConfig 描述审计事件 API 的访问配置。
type AuditConfig struct {
	Host          string
	APIKey        string
	BasePath      string
	FallbackPaths []string
	MaxLimit      int
	PaginationCap int
}

// EnrichmentConfig 控制运行详情回填的开关与额度。
type EnrichmentConfig struct {
	MaxRuns int
	Timeout time.Duration
}

// LoadAuditConfigFromEnv 从环境变量读取审计 API 配置。
// 返回值：配置、是否启用、错误。主机或密钥缺失时 enabled 为 false，
// 但配置仍带默认值返回，命令行可以用参数补全主机与凭证后直接使用。
func LoadAuditConfigFromEnv() (AuditConfig, bool, error) {
	LoadEnvFiles()

	host := NormalizeHost(os.Getenv("PLATFORM_API_HOST"))
	apiKey := strings.TrimSpace(os.Getenv("PLATFORM_API_KEY"))

	basePath := ensureLeadingSlash(strings.TrimSpace(os.Getenv("AUDIT_API_PATH")))
	if basePath == "" {
		basePath = defaultAuditBasePath
	}

	fallbacks := splitPaths(os.Getenv("AUDIT_API_FALLBACK_PATHS"))
	if fallbacks == nil {
		fallbacks = defaultFallbackPaths
	}

	maxLimit, err := intFromEnv("AUDIT_API_MAX_LIMIT", defaultAuditMaxLimit)
	if err != nil {
		return AuditConfig{}, false, err
	}

	paginationCap, err := intFromEnv("AUDIT_PAGINATION_CAP", defaultPaginationCap)
	if err != nil {
		return AuditConfig{}, false, err
	}

	cfg := AuditConfig{
		Host:          host,
		APIKey:        apiKey,
		BasePath:      basePath,
		FallbackPaths: fallbacks,
		MaxLimit:      maxLimit,
		PaginationCap: paginationCap,
	}
	return cfg, host != "" && apiKey != "", nil
}

// LoadEnrichmentConfigFromEnv 从环境变量读取运行详情回填配置。
// 返回值：配置、是否启用、错误。默认关闭，避免对平台 API 产生额外压力。
func LoadEnrichmentConfigFromEnv() (EnrichmentConfig, bool, error) {
	LoadEnvFiles()

	rawEnabled := strings.TrimSpace(os.Getenv("RUNS_ENRICHMENT_ENABLED"))
	if rawEnabled == "" {
		return EnrichmentConfig{}, false, nil
	}
	enabled, err := strconv.ParseBool(rawEnabled)
	if err != nil {
		return EnrichmentConfig{}, false, fmt.Errorf("parse RUNS_ENRICHMENT_ENABLED: %w", err)
	}
	if !enabled {
		return EnrichmentConfig{}, false, nil
	}

	maxRuns, err := intFromEnv("RUNS_ENRICHMENT_MAX_RUNS", defaultEnrichMaxRuns)
	if err != nil {
		return EnrichmentConfig{}, false, err
	}

	timeoutSecs, err := intFromEnv("RUNS_ENRICHMENT_TIMEOUT_SEC", defaultEnrichTimeoutSecs)
	if err != nil {
		return EnrichmentConfig{}, false, err
	}

	return EnrichmentConfig{
		MaxRuns: maxRuns,
		Timeout: time.Duration(timeoutSecs) * time.Second,
	}, true, nil
}

// NormalizeHost 清洗平台主机地址：剔除粘连的等号与空白、去掉末尾斜杠，
// 未写协议时默认补全 https。
func NormalizeHost(raw string) string {
	host := strings.TrimSpace(raw)
	host = strings.TrimLeft(host, "=")
	host = strings.TrimSpace(host)
	host = strings.TrimRight(host, "/")
	if host == "" {
		return ""
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host
}

// splitPaths 解析逗号分隔的路径列表，逐项清洗并补全前导斜杠。
// 输入为空时返回 nil，交由调用方套用默认值。
func splitPaths(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	var paths []string
	for _, part := range strings.Split(trimmed, ",") {
		path := ensureLeadingSlash(strings.TrimSpace(part))
		if path == "" {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// ensureLeadingSlash 保证非空路径以斜杠开头。
func ensureLeadingSlash(path string) string {
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

// intFromEnv 读取要求为正整数的环境变量，未设置时返回默认值。
func intFromEnv(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", name, parsed)
	}
	return parsed, nil
}
