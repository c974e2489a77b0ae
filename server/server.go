package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crowdbeat/cache"
	"crowdbeat/config"
	"crowdbeat/core/bridge"
	"crowdbeat/core/payment"
	"crowdbeat/db"
	"crowdbeat/logger"
	"crowdbeat/model"
	"crowdbeat/repository"
	"crowdbeat/storage"

	"github.com/gorilla/mux"
)

// Start initializes dependencies and runs the HTTP server until SIGINT or
// SIGTERM.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutputPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("failed to initialize minio", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("failed to connect gorm", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.Event{}, &model.SongRequest{}); err != nil {
		logger.Fatal("failed to migrate models", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("failed to connect to redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	userRepo := repository.NewMySQLUserRepository(db.DB)
	eventRepo := repository.NewGormEventRepository(db.GormDB)
	requestRepo := repository.NewGormSongRequestRepository(db.GormDB)
	sessions := cache.NewSessionCache(db.RedisClient)
	eventCache := cache.NewEventCache(db.RedisClient)

	var payments *payment.Client
	if cfg.PaymentSecret != "" {
		payments = payment.NewClient(cfg.PaymentAPIURL, cfg.PaymentSecret)
	} else {
		logger.Warn("payment secret not configured, paid requests disabled")
	}

	b := bridge.New(eventRepo, requestRepo)
	go b.Run()

	var feed *bridge.FeedWatcher
	if cfg.NowPlayingFile != "" {
		feed = bridge.NewFeedWatcher(cfg.NowPlayingFile, b)
		if err := feed.Start(); err != nil {
			logger.Fatal("failed to start now-playing feed watcher", logger.ErrorField(err))
		}
	}

	apiHandler := NewAPIHandler(userRepo, eventRepo, requestRepo, sessions, eventCache, b, payments, cfg)

	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Auth
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout", apiHandler.LogoutHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/me", apiHandler.AuthMiddleware(apiHandler.MeHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/djname", apiHandler.AuthMiddleware(apiHandler.UpdateDJNameHandler)).Methods(http.MethodPut)

	// Events (DJ dashboard)
	router.HandleFunc("/api/events", apiHandler.AuthMiddleware(apiHandler.CreateEventHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/events", apiHandler.AuthMiddleware(apiHandler.ListMyEventsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/events/{id}", apiHandler.AuthMiddleware(apiHandler.GetEventHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/events/{id}", apiHandler.AuthMiddleware(apiHandler.UpdateEventHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/events/{id}/close", apiHandler.AuthMiddleware(apiHandler.CloseEventHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/events/{id}/cover", apiHandler.AuthMiddleware(apiHandler.UploadEventCoverHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/events/{id}/cover", apiHandler.ServeCoverHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/events/{id}/requests", apiHandler.AuthMiddleware(apiHandler.ListEventRequestsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/events/{id}/requests/{requestId}", apiHandler.AuthMiddleware(apiHandler.UpdateRequestStatusHandler)).Methods(http.MethodPut)

	// Attendee surface, reached by access code
	router.HandleFunc("/api/code/{code}", apiHandler.GetEventByCodeHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/code/{code}/requests", apiHandler.CreateRequestHandler).Methods(http.MethodPost)

	// Playback bridge
	router.HandleFunc("/ws/rekordbox", apiHandler.BridgeWSHandler)
	router.HandleFunc("/api/bridge/state", apiHandler.AuthMiddleware(apiHandler.BridgeStateHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/bridge/track", apiHandler.AuthMiddleware(apiHandler.BridgeTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/bridge/playlist", apiHandler.AuthMiddleware(apiHandler.BridgePlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/bridge/requests/{id}/played", apiHandler.AuthMiddleware(apiHandler.BridgeMarkPlayedHandler)).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down")

	if feed != nil {
		feed.Stop()
	}
	b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", logger.ErrorField(err))
	}
	logger.Info("server stopped")
}
