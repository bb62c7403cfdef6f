// kick-user удаляет пользователя из канала вручную: USER_ID=123 kick-user
package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/Dhoini/paywall-bot/internal/config"
	"github.com/Dhoini/paywall-bot/internal/telegram"
	"github.com/Dhoini/paywall-bot/pkg/logger"
)

func main() {
	log := logger.New(logger.INFO)

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}
	if cfg.Telegram.Token == "" || cfg.Telegram.ChannelID == 0 {
		log.Fatal("TELEGRAM_TOKEN and CHANNEL_ID are required")
	}

	userID, err := strconv.ParseInt(os.Getenv("USER_ID"), 10, 64)
	if err != nil || userID <= 0 {
		log.Fatalw("USER_ID must be a positive integer", "value", os.Getenv("USER_ID"))
	}

	bot, err := telegram.NewBotAPI(cfg.Telegram.Token, log)
	if err != nil {
		log.Fatalw("Failed to connect to Telegram", "error", err)
	}
	client := telegram.NewClient(bot, telegram.ClientConfig{ChannelID: cfg.Telegram.ChannelID}, log)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Revoke(ctx, userID); err != nil {
		log.Fatalw("Failed to remove user from channel", "userID", userID, "error", err)
	}
	log.Infow("User removed from channel", "userID", userID, "channelID", cfg.Telegram.ChannelID)
}
