package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gorm.io/gorm"

	redisCache "github.com/oggyb/sms-gateway/internal/cache/redis"
	"github.com/oggyb/sms-gateway/internal/config"
	"github.com/oggyb/sms-gateway/internal/db/gormdb"
	"github.com/oggyb/sms-gateway/internal/logging"
	"github.com/oggyb/sms-gateway/internal/queue"
	mesgRepo "github.com/oggyb/sms-gateway/internal/repository/gorm/message"
	"github.com/oggyb/sms-gateway/internal/service"
)

// seed submits demo messages through the same path as POST /messages.
// Keys are deterministic, so running it twice creates nothing new.
func main() {
	count := flag.Int("n", 50, "number of messages to submit")
	flag.Parse()

	if err := run(*count); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(count int) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.App.LogLevel, cfg.App.LogFormat).With("cmd", "seed")

	if len(cfg.Gateway.SenderWhitelist) == 0 {
		return errors.New("SMS_SENDER_ID_WHITELIST is empty, nothing can be submitted")
	}
	sender := cfg.Gateway.SenderWhitelist[0]

	gormAdapter, err := gormdb.New(cfg.PostgresDSN(), gormdb.Options{})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer gormAdapter.Close()

	if err := mesgRepo.Migrate(gormAdapter.Conn().(*gorm.DB)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("messages table is up to date", "db", cfg.DB.Name)

	rdb := redisCache.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer rdb.Close()

	svc := service.NewMessageService(
		mesgRepo.NewRepository(gormAdapter),
		queue.NewRedisQueue(rdb, "dispatch"),
		cfg.Gateway.SenderWhitelist,
		logger,
	)

	created := 0
	for i := 1; i <= count; i++ {
		msg, isNew, err := svc.Submit(ctx, service.SubmitInput{
			IdempotencyKey: fmt.Sprintf("send_msg:seed-%d", i),
			SenderID:       sender,
			Recipient:      fmt.Sprintf("+9055500%05d", i),
			Text:           seedText(i),
		})
		if err != nil {
			return fmt.Errorf("submit seed message #%d: %w", i, err)
		}
		if isNew {
			created++
		}
		logger.Debug("seed message", "n", i, "message_id", msg.ID, "created", isNew)
	}

	logger.Info("seed finished", "submitted", count, "created", created)
	return nil
}

// seedText alternates plain GSM-7, multi-part and UCS-2 bodies.
func seedText(i int) string {
	switch i % 3 {
	case 0:
		return fmt.Sprintf("Seed message #%d: your verification code is %04d", i, i*37%10000)
	case 1:
		return fmt.Sprintf("Seed message #%d with a long body that needs more than one segment. "+
			"Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor "+
			"incididunt ut labore et dolore magna aliqua.", i)
	default:
		return fmt.Sprintf("Seed message #%d: merhaba dünya, teşekkürler 👋", i)
	}
}
