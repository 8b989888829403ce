package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CourierBox/config"
	"github.com/BearBump/CourierBox/internal/broker/kafka"
	"github.com/BearBump/CourierBox/internal/services/journal"
	"github.com/BearBump/CourierBox/internal/storage/pgjournal"
	"github.com/joho/godotenv"
)

type journalApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     journalOpts
	svc      *journal.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapJournal() *journalApp {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env", "error", err.Error())
	}
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.Journal.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8090"
	}
	consumerGroup := cfg.Journal.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "courier-journal"
	}
	topic := cfg.Kafka.ActionsTopicName
	if topic == "" {
		topic = journal.DefaultTopic
	}

	st := mustOpenPostgresWithRetry(cfg.Database.PostgresDSN(), 60*time.Second)
	svc := journal.New(st)
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers(), topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &journalApp{
		ctx:    ctx,
		cancel: cancel,
		opts: journalOpts{
			httpAddr:      httpAddr,
			topic:         topic,
			consumerGroup: consumerGroup,
			ready:         st.Ping,
		},
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgjournal.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgjournal.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *journalApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *journalApp) Run() error {
	return runJournal(a.ctx, a.opts, a.svc, a.consumer)
}
