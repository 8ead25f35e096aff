package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EchoFM/cache"
	"EchoFM/config"
	"EchoFM/core/presence"
	"EchoFM/db"
	"EchoFM/logger"
	"EchoFM/repository"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     14,
	})

	// 设置服务器超时
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.DB.Close()

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database with GORM: %v", err)
	}
	defer db.CloseGormDB()

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Connect to Redis；连不上时降级为内存存储，最近播放不跨进程保留
	var recentStore presence.RecentPlayStore
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("redis unavailable, recent plays fall back to in-memory store",
			logger.ErrorField(err))
		recentStore = cache.NewMemoryRecentPlayStore()
	} else {
		defer db.CloseRedis()
		recentStore = cache.NewRedisRecentPlayStore(db.RedisClient)
		log.Println("Successfully connected to Redis")
	}

	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	messageRepo := repository.NewGormMessageRepository(db.GormDB)

	// 实时在线状态层
	hub := presence.NewHub()
	go hub.Run()
	defer hub.Stop()

	registry := presence.NewRegistry()
	ledger := presence.NewLedger(recentStore, trackRepo, cfg.RecentPlaysCap)
	manager := presence.NewManager(registry, ledger, messageRepo, hub, cfg.OfflineBroadcastLegacy)
	presenceHandler := NewPresenceHandler(hub, manager, messageRepo)
	trackHandler := NewTrackHandler(trackRepo)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 实时通道
	router.HandleFunc("/ws", presenceHandler.WebSocketHandler)

	// API Endpoints
	router.HandleFunc("/api/users/recent-plays", presenceHandler.RecentPlaysHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/users/messages/{user_id}", presenceHandler.MessagesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", trackHandler.ListTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/stats", presenceHandler.StatsHandler).Methods(http.MethodGet)

	server.Handler = router

	// 启动服务器并等待退出信号
	go func() {
		logger.Info("server listening", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", logger.ErrorField(err))
	}
}
