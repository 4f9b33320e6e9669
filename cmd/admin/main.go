package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"marketchat/backend/internal/auth"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/notify"
	"marketchat/backend/internal/storage"
	"marketchat/backend/internal/telegram"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  notify <user_id> <title> <message>   publish a notification request to the running server
  link-telegram <user_id> <chat_id>    link a Telegram chat for offline notifications
  link-code <user_id>                  mint a single-use code for the bot's /start
  rooms <user_id>                      list a user's rooms with unread counts
  online                               list users the presence mirror reports online
  token <user_id> [ttl_hours]          mint a bearer token (default 24h)`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	ctx := context.Background()

	switch os.Args[1] {
	case "notify":
		if len(os.Args) < 5 {
			fmt.Println("Usage: admin notify <user_id> <title> <message>")
			os.Exit(1)
		}
		req := models.NotificationRequest{
			UserID:  os.Args[2],
			Title:   os.Args[3],
			Message: strings.Join(os.Args[4:], " "),
		}
		if err := notify.Publish(ctx, openRedis(cfg), config.NotificationRequestChannel, req); err != nil {
			log.Fatalf("Error publishing notification: %v", err)
		}
		fmt.Printf("Notification for %s published.\n", req.UserID)

	case "link-telegram":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin link-telegram <user_id> <chat_id>")
			os.Exit(1)
		}
		chatID, err := strconv.ParseInt(os.Args[3], 10, 64)
		if err != nil {
			fmt.Println("Invalid chat ID. Please provide an integer.")
			os.Exit(1)
		}
		if err := openStorage(cfg).LinkTelegramChat(ctx, os.Args[2], chatID); err != nil {
			log.Fatalf("Error linking chat: %v", err)
		}
		fmt.Printf("Chat %d linked to %s.\n", chatID, os.Args[2])

	case "link-code":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin link-code <user_id>")
			os.Exit(1)
		}
		code, err := telegram.NewLinkCodes(openStorage(cfg), config.TelegramLinkCodeTTL).Issue(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("Error issuing link code: %v", err)
		}
		fmt.Printf("%s (expires %s)\n", code.Code, code.ExpiresAt.Format(time.RFC3339))

	case "rooms":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin rooms <user_id>")
			os.Exit(1)
		}
		userID := os.Args[2]
		list, err := openStorage(cfg).ListRoomsForUser(ctx, userID)
		if err != nil {
			log.Fatalf("Error listing rooms: %v", err)
		}
		for _, room := range list {
			last := "-"
			if room.LastMessageAt != nil {
				last = room.LastMessageAt.Format(time.RFC3339)
			}
			fmt.Printf("%s\t%s\tunread=%d\tlast=%s\t%q\n",
				room.ID, strings.Join(room.Participants, ","), room.UnreadCounts[userID], last, room.LastMessage)
		}

	case "online":
		users, err := storage.NewRedisPresence(openRedis(cfg), cfg.HeartbeatTimeout).OnlineUsers(ctx)
		if err != nil {
			log.Fatalf("Error reading presence: %v", err)
		}
		for _, userID := range users {
			fmt.Println(userID)
		}

	case "token":
		if len(os.Args) < 3 {
			fmt.Println("Usage: admin token <user_id> [ttl_hours]")
			os.Exit(1)
		}
		ttl := 24 * time.Hour
		if len(os.Args) > 3 {
			hours, err := strconv.Atoi(os.Args[3])
			if err != nil || hours <= 0 {
				fmt.Println("Invalid TTL. Please provide a positive integer.")
				os.Exit(1)
			}
			ttl = time.Duration(hours) * time.Hour
		}
		token, err := auth.GenerateToken(cfg.JWTSecret, os.Args[2], ttl)
		if err != nil {
			log.Fatalf("Error minting token: %v", err)
		}
		fmt.Println(token)

	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func openStorage(cfg *config.Config) *storage.Service {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	return storage.NewStorageService(db)
}

func openRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
