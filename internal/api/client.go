// Package api 远端事件日志的 HTTP 客户端
//
// 事件日志完整保存在远端 Agent 执行服务上（权威数据源），
// 客户端只做两件事：
//   - 按游标增量拉取事件批次
//   - 应操作员要求删除某会话的远端日志
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"agents-observer/internal/model"
	"agents-observer/pkg/logging"
)

// Client 远端事件日志客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient 创建客户端实例
//
// 参数：
//   - baseURL: 远端服务地址，如 http://localhost:8080
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logging.Default("api-client"),
	}
}

// eventsResponse GET /observability/events/{sessionId} 的响应体
type eventsResponse struct {
	Events []model.Event `json:"events"`
}

// FetchEvents 拉取 lastEventID 之后的事件批次
//
// 路由: GET /observability/events/{sessionId}?last_event_id={cursor}
//
// lastEventID 为空串表示会话的首次拉取，省略 last_event_id 参数，
// 服务端返回全量 backlog。批次由服务端按因果顺序排好。
func (c *Client) FetchEvents(ctx context.Context, sessionID, lastEventID string) ([]model.Event, error) {
	u := c.baseURL + "/observability/events/" + url.PathEscape(sessionID)
	if lastEventID != "" {
		u += "?last_event_id=" + url.QueryEscape(lastEventID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	traceID := uuid.NewString()
	req.Header.Set("X-Trace-Id", traceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.WithTraceID(traceID).WithSessionID(sessionID).
			Warn("Fetch events returned non-OK status",
				"status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("API 返回错误状态: %d", resp.StatusCode)
	}

	var result eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	return result.Events, nil
}

// DeleteHistory 删除会话的远端事件日志
//
// 路由: DELETE /observability/history/{sessionId}
//
// 删除失败由调用方记录日志但不阻塞本地状态重置（非致命）。
func (c *Client) DeleteHistory(ctx context.Context, sessionID string) error {
	u := c.baseURL + "/observability/history/" + url.PathEscape(sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("X-Trace-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("API 返回错误状态: %d", resp.StatusCode)
	}
	return nil
}
