package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Pulse/global"
	"Pulse/logger"
	rthandler "Pulse/module/realtime"
	"Pulse/service/realtime"
	"Pulse/service/storage"
	redisx "Pulse/service/storage/redis"
	"Pulse/tools/ids"
	"Pulse/tools/security"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := global.Load()
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	ids.SetNodeID(cfg.SnowflakeNode)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Durable store: Postgres when configured, process memory otherwise
	// (local development only).
	var store *storage.Store
	if cfg.DatabaseURL != "" {
		s, pool, err := storage.OpenPG(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Errorf("open postgres: %v", err)
			os.Exit(1)
		}
		store = s
		defer pool.Close()
	} else {
		logger.Warn("[boot] no DATABASE_URL, using in-memory store")
		store = storage.OpenMemory()
	}

	// Session registry is optional; without Redis the gateway still runs,
	// it just cannot answer "which node holds this user".
	var online *storage.OnlineRegistry
	if cfg.RedisAddr != "" {
		if err := redisx.Init(redisx.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}); err != nil {
			logger.Errorf("init redis: %v", err)
			os.Exit(1)
		}
		defer func() { _ = redisx.Close() }()
		online = storage.NewOnlineRegistry(cfg.NodeID, cfg.SessionTTL)
	}

	subs := realtime.NewSubTable()
	fanout := realtime.NewFanout(cfg.FanoutWorkers, cfg.FanoutQueue)
	defer fanout.Close()
	live := realtime.NewLiveDelivery(subs, fanout)

	registry := realtime.NewRegistry(store)
	tracker := realtime.NewTracker(store, live, cfg.PresenceTTL)
	router := realtime.NewRouter(store, live, cfg.NodeID, cfg.HistoryLimit)

	// Cross-node fan-out bridge: optional extension point.
	if cfg.NatsURL != "" {
		bridge, err := realtime.ConnectBridge(cfg.NatsURL, router)
		if err != nil {
			logger.Errorf("connect bridge: %v", err)
			os.Exit(1)
		}
		defer bridge.Close()
		router.AttachBridge(bridge)
	}

	jwtOpts := security.DefaultOptions([]byte(cfg.JWTSecret))
	verify := func(token string) (*security.Identity, error) {
		return security.Verify(jwtOpts, token)
	}

	gateway := realtime.NewGateway(realtime.GatewayConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		MaxPayloadSize:    cfg.MaxPayloadSize,
		SendQueueSize:     cfg.SendQueueSize,
	}, verify, subs, registry, tracker, router, online)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(cfg.WSPath, gateway.HandleWS)
	rthandler.NewHandler(registry, tracker, router).RegisterRoutes(r, verify)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "node": cfg.NodeID, "conns": subs.Len()})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	go func() {
		logger.Infof("[boot] node=%s listening on %s ws=%s", cfg.NodeID, srv.Addr, cfg.WSPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("serve: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("[boot] shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Sync()
}
