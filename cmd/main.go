package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"marketchat/backend/internal/api/handler"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/localization"
	"marketchat/backend/internal/notify"
	"marketchat/backend/internal/presence"
	"marketchat/backend/internal/rooms"
	"marketchat/backend/internal/storage"
	"marketchat/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupStorage(cfg *config.Config) storage.Storage {
	if cfg.StorageDriver == "memory" {
		log.Println("WARNING: using in-memory storage, data is lost on restart")
		return storage.NewMemoryStore()
	}

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}
	s := storage.NewStorageService(db)
	if err := s.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("INFO: database connection established, migrations complete")
	return s
}

// setupRedis returns nil when Redis is unreachable; the presence mirror and
// the notification request channel are then disabled.
func setupRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("WARNING: Redis unavailable at %s, continuing without it: %v", cfg.RedisAddr, err)
		rdb.Close()
		return nil
	}
	return rdb
}

func main() {
	log.Println("Starting marketchat realtime backend...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Dependencies
	s := setupStorage(cfg)
	rdb := setupRedis(ctx, cfg)

	localizer, err := localization.NewLocalizer(cfg.LocalesPath, cfg.DefaultLanguage)
	if err != nil {
		log.Fatalf("Failed to load locales: %v", err)
	}

	// 2. Event bus, presence, rooms, notifications
	hub := chathub.NewManagerService()

	var mirror presence.Mirror
	if rdb != nil {
		redisPresence := storage.NewRedisPresence(rdb, cfg.HeartbeatTimeout)
		if err := redisPresence.Reset(ctx); err != nil {
			log.Printf("WARNING: failed to reset presence mirror: %v", err)
		}
		mirror = redisPresence
	}
	tracker := presence.NewTracker(hub, mirror, cfg.HeartbeatTimeout)
	hub.SetHandler(tracker)

	directory := rooms.NewDirectory(s, hub)
	notifications := notify.NewService(s, tracker, hub)

	api := handler.NewHandler(hub, tracker, directory, notifications, cfg.JWTSecret, cfg.InternalToken)

	if cfg.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Fatalf("Failed to start Telegram bot: %v", err)
		}
		log.Printf("INFO: authorized on Telegram account %s", bot.Self.UserName)
		notifications.SetOfflineSender(notify.NewTelegramSender(bot, s, localizer, cfg.DefaultLanguage))

		codes := telegram.NewLinkCodes(s, config.TelegramLinkCodeTTL)
		api.SetTelegramLinking(codes, bot.Self.UserName)
		botService := telegram.NewBotService(bot, s, codes, localizer, cfg.DefaultLanguage)
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		go botService.Run(ctx, bot.GetUpdatesChan(u))
		defer bot.StopReceivingUpdates()
	}

	// 3. Background loops
	go hub.Run(ctx)
	go tracker.Run(ctx, config.PresenceSweepInterval)
	if rdb != nil {
		go notify.NewSubscriber(rdb, config.NotificationRequestChannel, notifications).Run(ctx)
	}

	// 4. HTTP
	r := gin.Default()
	api.Register(r)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("INFO: listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("INFO: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: graceful shutdown failed: %v", err)
	}
	if rdb != nil {
		rdb.Close()
	}
}
