// Package main Observer 入口
//
// Observer 是远端 Agent 执行服务的观测客户端：轮询远端事件日志、
// 归约出本会话的聚合状态，并通过快照网关暴露给仪表盘前端。
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agents-observer/internal/api"
	"agents-observer/internal/config"
	"agents-observer/internal/gateway"
	"agents-observer/internal/observer"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换 YAML 配置）
	cfg := config.Load()

	log.Printf("Starting Observer... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	// 远端事件日志客户端
	client := api.NewClient(cfg.BackendURL)

	// 摄取管线：Store ← Reducer ← Poller ← Controller
	store := observer.NewStoreWithLogSize(cfg.EventLogSize)
	metrics := observer.NewMetrics("observer", nil)
	poller := observer.NewPoller(client, store, cfg.PollInterval, metrics)
	controller := observer.NewController(poller, store, client, metrics)

	// 可选：启动时直接绑定会话并打开观测开关
	if sessionID := os.Getenv("SESSION_ID"); sessionID != "" {
		controller.SetSession(sessionID)
		controller.SetActive(true)
		log.Printf("Observing session %s", sessionID)
	}

	// 快照网关
	gw := gateway.NewGateway(store, controller, metrics, promhttp.Handler())

	srv := &http.Server{
		Addr:        ":" + cfg.GatewayPort,
		Handler:     gw.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down...")
		poller.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Snapshot gateway listening on :%s", cfg.GatewayPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Gateway server failed: %v", err)
	}
	log.Println("Observer stopped")
}
