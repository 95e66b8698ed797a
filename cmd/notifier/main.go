package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maclarenscott/ticket-nova/internal/adapters/rabbit"
	"github.com/maclarenscott/ticket-nova/internal/artifact"
	"github.com/maclarenscott/ticket-nova/internal/config"
	"github.com/maclarenscott/ticket-nova/internal/notify"
	"github.com/maclarenscott/ticket-nova/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, "notifications.q", "ticket.*")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	var sender notify.EmailSender
	if cfg.SMTPAddr != "" {
		sender = notify.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPFrom)
	} else {
		sender = notify.NewLogSender(logger)
	}

	qr := artifact.NewGenerator(cfg.TicketSecret)
	notifier := notify.NewNotifier(consumer, qr, sender, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := notifier.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("notifier stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down notifier")
}
