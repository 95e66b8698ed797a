package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr        string
	CRDBDSN         string
	MongoURI        string
	MongoDatabase   string
	RedisAddr       string
	RabbitURL       string
	JWTSecret       string
	TicketSecret    string
	SMTPAddr        string
	SMTPFrom        string
	ReserveAttempts int
	IdempotencyTTL  time.Duration
	OutboxInterval  time.Duration
	OTLPEndpoint    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	idempTTL, _ := time.ParseDuration(os.Getenv("IDEMPOTENCY_TTL"))
	if idempTTL == 0 {
		idempTTL = time.Hour
	}
	outboxInterval, _ := time.ParseDuration(os.Getenv("OUTBOX_INTERVAL"))
	if outboxInterval == 0 {
		outboxInterval = 5 * time.Second
	}
	attempts, _ := strconv.Atoi(os.Getenv("RESERVE_ATTEMPTS"))
	if attempts <= 0 {
		attempts = 3
	}

	return &Config{
		HTTPAddr:        envOr("HTTP_ADDR", ":8080"),
		CRDBDSN:         os.Getenv("CRDB_DSN"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   envOr("MONGO_DATABASE", "ticketnova"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RabbitURL:       os.Getenv("RABBIT_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		TicketSecret:    envOr("TICKET_SECRET", "dev-ticket-secret"),
		SMTPAddr:        os.Getenv("SMTP_ADDR"),
		SMTPFrom:        envOr("SMTP_FROM", "tickets@ticketnova.local"),
		ReserveAttempts: attempts,
		IdempotencyTTL:  idempTTL,
		OutboxInterval:  outboxInterval,
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
