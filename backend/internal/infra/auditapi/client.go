// Package auditapi 封装平台审计事件 API 的访问：路径探测、分页拉取、
// 运行详情查询与原始事件归一化。
package auditapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"traceability-explorer/backend/internal/config"
	"traceability-explorer/backend/internal/domain/audit"
	"traceability-explorer/backend/internal/infra/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// defaultTimeout 控制 HTTP 请求的默认超时时间。
	defaultTimeout = 30 * time.Second
	// runDetailsPathPrefix 为运行详情接口的路径前缀。
	runDetailsPathPrefix = "/v4/runs/"
	// sourceAPI 标记指标里的数据源。
	sourceAPI = "api"
)

// Client 封装与平台审计 API 的 HTTP 交互。
type Client struct {
	cfg        config.AuditConfig
	creds      Credentials
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// Option 用于自定义 Client 行为。
type Option func(*Client)

// WithHTTPClient 允许传入调用方自定义的 http.Client。
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCredentials 覆盖默认的 API Key 凭证。
func WithCredentials(creds Credentials) Option {
	return func(c *Client) {
		c.creds = creds
	}
}

// WithLogger 指定结构化日志记录器。
func WithLogger(sugar *zap.SugaredLogger) Option {
	return func(c *Client) {
		c.logger = sugar
	}
}

// NewClient 构造审计 API 客户端，默认 30 秒超时并使用配置中的 API Key。
func NewClient(cfg config.AuditConfig, opts ...Option) *Client {
	client := &Client{
		cfg:        cfg,
		creds:      NewAPIKeyCredentials(cfg.APIKey),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if client.creds == nil {
		client.creds = NewAPIKeyCredentials(cfg.APIKey)
	}
	if client.logger == nil {
		client.logger = zap.NewNop().Sugar()
	}
	return client
}

// APIError 描述审计 API 返回的错误响应，正文已经过清洗与截断。
type APIError struct {
	StatusCode int
	Path       string
	Message    string
}

// Error 实现 error 接口。
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("audit api %s returned %d: %s", e.Path, e.StatusCode, e.Message)
}

// FetchEvents 按查询条件拉取审计事件并归一化为领域事件。
func (c *Client) FetchEvents(ctx context.Context, query FetchQuery) ([]audit.Event, error) {
	rawEvents, err := c.FetchRawEvents(ctx, query)
	if err != nil {
		return nil, err
	}
	return NormalizeAll(rawEvents), nil
}

// FetchRawEvents 按查询条件分页拉取原始审计事件。
// 首页依次尝试配置的候选路径，404 换下一个；找到可用路径后继续
// 分页，直到取满、翻到短页或触达分页总上限。分页途中的失败只
// 截断结果，不作为错误返回。
func (c *Client) FetchRawEvents(ctx context.Context, query FetchQuery) ([]map[string]any, error) {
	if c == nil {
		return nil, fmt.Errorf("audit client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requested := query.MaxEvents
	if requested <= 0 || requested > c.cfg.PaginationCap {
		requested = c.cfg.PaginationCap
	}
	pageLimit := requested
	if pageLimit > c.cfg.MaxLimit {
		pageLimit = c.cfg.MaxLimit
	}

	session := uuid.NewString()
	start := time.Now()
	defer func() {
		metrics.ObserveFetchDuration(sourceAPI, time.Since(start))
	}()

	// 首页同时承担路径探测：非 404 的失败立即终止。
	var (
		page        []map[string]any
		workingPath string
		lastErr     error
	)
	for _, path := range c.pathsToTry() {
		page, lastErr = c.fetchPage(ctx, path, pageLimit, 0, query)
		if lastErr == nil {
			workingPath = path
			break
		}
		metrics.ObserveFetchPage("error", 0)
		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			c.logger.Infow("audit path not found, trying next", "session", session, "path", path)
			continue
		}
		break
	}
	if workingPath == "" {
		if lastErr == nil {
			return nil, fmt.Errorf("no audit path configured")
		}
		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w (set AUDIT_API_PATH if this deployment uses a custom audit endpoint)", lastErr)
		}
		return nil, lastErr
	}

	metrics.ObserveFetchPage("ok", len(page))
	c.logger.Infow("audit fetch started",
		"session", session,
		"path", workingPath,
		"requested", requested,
		"firstPage", len(page),
	)

	events := page
	lastLen := len(page)
	offset := pageLimit
	for requested > c.cfg.MaxLimit &&
		len(events) < requested &&
		lastLen >= c.cfg.MaxLimit &&
		offset < c.cfg.PaginationCap {
		next, pageErr := c.fetchPage(ctx, workingPath, c.cfg.MaxLimit, offset, query)
		if pageErr != nil {
			metrics.ObserveFetchPage("error", 0)
			c.logger.Warnw("audit pagination aborted", "session", session, "offset", offset, "error", pageErr)
			break
		}
		metrics.ObserveFetchPage("ok", len(next))
		events = append(events, next...)
		lastLen = len(next)
		offset += c.cfg.MaxLimit
	}

	if len(events) > requested {
		events = events[:requested]
	}
	c.logger.Infow("audit fetch finished", "session", session, "events", len(events))
	return events, nil
}

// GetRun 拉取单个运行的详情，供回填缺失字段使用。
func (c *Client) GetRun(ctx context.Context, runID string) (*RunDetails, error) {
	if c == nil {
		return nil, fmt.Errorf("audit client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is empty")
	}

	endpoint := c.cfg.Host + runDetailsPathPrefix + url.PathEscape(runID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	c.creds.Apply(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Path:       runDetailsPathPrefix + runID,
			Message:    sanitizeUpstreamError(resp.StatusCode, rawBody),
		}
	}

	var details RunDetails
	if err := json.Unmarshal(rawBody, &details); err != nil {
		return nil, fmt.Errorf("decode run details: %w", err)
	}
	if details.ID == "" {
		details.ID = runID
	}
	return &details, nil
}

// fetchPage 请求单页事件并解包信封。
func (c *Client) fetchPage(ctx context.Context, path string, limit, offset int, query FetchQuery) ([]map[string]any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	if query.StartMillis > 0 {
		params.Set("startTimestamp", strconv.FormatInt(query.StartMillis, 10))
	}
	if query.EndMillis > 0 {
		params.Set("endTimestamp", strconv.FormatInt(query.EndMillis, 10))
	}
	if actor := strings.TrimSpace(query.ActorID); actor != "" {
		params.Set("actorId", actor)
	}
	httpReq.URL.RawQuery = params.Encode()
	httpReq.Header.Set("Accept", "application/json")
	c.creds.Apply(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Path:       path,
			Message:    sanitizeUpstreamError(resp.StatusCode, rawBody),
		}
	}

	return decodeEventsPayload(rawBody)
}

// pathsToTry 返回去重后的候选路径，配置的主路径最优先。
func (c *Client) pathsToTry() []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, path := range append([]string{c.cfg.BasePath}, c.cfg.FallbackPaths...) {
		if path == "" {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	return paths
}

// sanitizeUpstreamError 清洗上游错误正文：HTML 页面整体替换为提示语，
// 过长正文截断到 500 字符，空正文退化为状态码描述。
func sanitizeUpstreamError(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("audit api returned %d", status)
	}

	lower := strings.ToLower(text)
	head := lower
	if len(head) > 200 {
		head = head[:200]
	}
	if strings.HasPrefix(text, "<") || strings.Contains(head, "<!doctype") || strings.Contains(lower, "</html>") {
		return fmt.Sprintf("platform returned %d with an HTML page, the audit trail API may be disabled or use a different path on this deployment", status)
	}

	runes := []rune(text)
	if len(runes) > 500 {
		text = string(runes[:500]) + "..."
	}
	return text
}
