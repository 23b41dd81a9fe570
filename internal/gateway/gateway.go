// Package gateway 快照网关
//
// 网关把会话的聚合状态只读地暴露给渲染层（仪表盘面板、时间线、
// 检视器）。面板本身的渲染不在本服务范围内；这里只提供数据面：
//   - REST：按需取一份一致的状态快照
//   - WebSocket：持续推送最新快照
//   - 控制面：绑定会话、观测开关、清除历史
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"agents-observer/internal/observer"
	"agents-observer/pkg/logging"
)

// upgrader WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// snapshotPushInterval 快照推送间隔（与轮询节奏一致）
const snapshotPushInterval = 500 * time.Millisecond

// Gateway 快照网关
//
// 网关只读 Store 快照、只写 Controller 信号，
// 从不直接改动聚合状态（聚合状态的唯一写入方是 Reducer）。
type Gateway struct {
	store      *observer.Store
	controller *observer.Controller
	metrics    *observer.Metrics
	metricsH   http.Handler
	log        *logging.Logger
}

// NewGateway 创建快照网关
//
// metricsHandler 为 /metrics 端点的处理器（promhttp.Handler()），
// 可为 nil（不暴露指标端点）。
func NewGateway(store *observer.Store, controller *observer.Controller, metrics *observer.Metrics, metricsHandler http.Handler) *Gateway {
	return &Gateway{
		store:      store,
		controller: controller,
		metrics:    metrics,
		metricsH:   metricsHandler,
		log:        logging.Default("gateway"),
	}
}

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 状态读取:
//   - GET    /api/v1/state   - 聚合状态快照
//   - GET    /api/v1/events  - 最近的原始事件窗口
//
// 控制面:
//   - POST   /api/v1/session - 绑定/切换观测会话
//   - POST   /api/v1/active  - 观测开关
//   - DELETE /api/v1/history - 清除历史（远端 + 本地）
//
// WebSocket:
//   - GET    /ws/state       - 快照推送
//
// 其他:
//   - GET    /healthz        - 健康检查
//   - GET    /metrics        - Prometheus 指标
func (g *Gateway) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", g.Health)
	if g.metricsH != nil {
		mux.Handle("GET /metrics", g.metricsH)
	}

	mux.HandleFunc("GET /api/v1/state", g.GetState)
	mux.HandleFunc("GET /api/v1/events", g.GetEvents)

	mux.HandleFunc("POST /api/v1/session", g.SetSession)
	mux.HandleFunc("POST /api/v1/active", g.SetActive)
	mux.HandleFunc("DELETE /api/v1/history", g.ClearHistory)

	mux.HandleFunc("GET /ws/state", g.HandleWebSocket)

	return mux
}

// Health 健康检查
func (g *Gateway) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetState 获取聚合状态快照
//
// 路由: GET /api/v1/state
//
// 响应: 完整的 State JSON（连接状态、生命周期、工具调用、
// 决策日志、子 Agent、性能指标、事件窗口）。
func (g *Gateway) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.store.Snapshot())
}

// GetEvents 获取最近的原始事件窗口（审计/调试展示）
//
// 路由: GET /api/v1/events
func (g *Gateway) GetEvents(w http.ResponseWriter, r *http.Request) {
	snap := g.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"events": snap.EventLog,
		"count":  len(snap.EventLog),
	})
}

// setSessionRequest POST /api/v1/session 的请求体
type setSessionRequest struct {
	SessionID string `json:"session_id"` // 空串表示解除绑定
}

// SetSession 绑定/切换观测会话
//
// 路由: POST /api/v1/session
//
// 会话切换会丢弃旧聚合状态并重置游标；轮询是否随之启动
// 取决于观测开关。
func (g *Gateway) SetSession(w http.ResponseWriter, r *http.Request) {
	var req setSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	g.controller.SetSession(req.SessionID)
	writeJSON(w, http.StatusOK, map[string]string{"session_id": req.SessionID})
}

// setActiveRequest POST /api/v1/active 的请求体
type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive 操作员观测开关
//
// 路由: POST /api/v1/active
func (g *Gateway) SetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	g.controller.SetActive(req.Active)
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

// ClearHistory 清除当前会话的历史
//
// 路由: DELETE /api/v1/history
//
// 远端删除失败不阻塞本地重置，响应始终为 200。
func (g *Gateway) ClearHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	g.controller.ClearHistory(ctx)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// HandleWebSocket 处理快照推送连接
//
// 路由: GET /ws/state
//
// 推送消息格式：
//
//	快照消息：{"type": "state", "data": {...}}
//
// 客户端消息：
//
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	g.metrics.WSClientConnected()
	defer g.metrics.WSClientDisconnected()

	g.log.Info("Snapshot client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.readPump(conn, cancel)
	g.writePump(ctx, conn)
}

// readPump 读取客户端消息
//
// 处理心跳（ping→pong）并在连接关闭时取消上下文。
func (g *Gateway) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.log.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		var req map[string]any
		if json.Unmarshal(msg, &req) == nil {
			if req["type"] == "ping" {
				conn.WriteJSON(map[string]string{"type": "pong"})
			}
		}
	}
}

// writePump 向客户端推送快照
//
// 每 500ms 取一次快照，仅在游标或连接状态变化时推送；
// 每 30s 发送 ping 保持连接。
func (g *Gateway) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(snapshotPushInterval)
	pingTicker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer pingTicker.Stop()

	var lastCursor string
	var lastStatus string
	first := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ticker.C:
			snap := g.store.Snapshot()
			status := string(snap.ConnectionStatus) + "|" + snap.ConnectionError
			if !first && snap.Cursor == lastCursor && status == lastStatus {
				continue
			}
			first = false
			lastCursor = snap.Cursor
			lastStatus = status

			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			msg := map[string]any{
				"type": "state",
				"data": snap,
			}
			if err := conn.WriteJSON(msg); err != nil {
				g.log.WithError(err).Warn("WebSocket write error")
				return
			}
		}
	}
}

// ============================================================================
// 通用工具函数
// ============================================================================

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
