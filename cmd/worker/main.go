// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/streadway/amqp"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/db"
	"github.com/unclebandit/mailleopard-backend/internal/events"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/mailer"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer conn.Close()

	var publisher *events.Publisher
	if cfg.AMQPURL != "" {
		amqpConn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp connection failed")
		}
		defer amqpConn.Close()
		publisher, err = events.NewPublisher(amqpConn, events.DefaultExchange)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp exchange declaration failed")
		}
	} else {
		log.Warn().Msg("AMQP_URL not set, delivery events will not be published to the broker")
	}

	var sender mailer.Sender = mailer.NewSMTPSender()
	if cfg.DryRun {
		log.Warn().Msg("dry run mode, using mock transport")
		sender = &mailer.MockSender{FailureRate: 0.1}
	}

	eventRepo := &repository.EventRepository{DB: conn}
	dispatcher := &service.Dispatcher{
		Jobs:        &repository.DeliveryJobRepository{DB: conn},
		Campaigns:   &repository.CampaignRepository{DB: conn},
		Recipients:  &repository.RecipientRepository{DB: conn},
		SendConfigs: &repository.SendConfigRepository{DB: conn},
		Sender:      sender,
		Recorder:    events.NewRecorder(eventRepo, publisher, log),
		Log:         log,

		Workers:      cfg.WorkerCount,
		BatchSize:    cfg.ClaimBatchSize,
		PollInterval: cfg.PollInterval,
		SendDelay:    cfg.SendDelay,
		SendTimeout:  cfg.SendTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Int("workers", cfg.WorkerCount).Msg("dispatcher running")
	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("dispatcher stopped")
	}
	log.Info().Msg("dispatcher shut down")
}
