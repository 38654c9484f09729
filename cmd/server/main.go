// cmd/server/main.go
package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/streadway/amqp"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/db"
	"github.com/unclebandit/mailleopard-backend/internal/events"
	"github.com/unclebandit/mailleopard-backend/internal/handler"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
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

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}
	jobRepo := &repository.DeliveryJobRepository{DB: conn}
	configRepo := &repository.SendConfigRepository{DB: conn}
	eventRepo := &repository.EventRepository{DB: conn}

	recorder := events.NewRecorder(eventRepo, publisher, log)

	campaignService := &service.CampaignService{
		Campaigns:    campaignRepo,
		Recipients:   recipientRepo,
		Jobs:         jobRepo,
		SendConfigs:  configRepo,
		Personalizer: service.NewPersonalizer(cfg.TrackingBaseURL),
		Log:          log,
	}

	campaignHandler := &handler.CampaignHandler{
		Campaigns: campaignRepo,
		Service:   campaignService,
		Log:       log,
	}
	trackingHandler := &handler.TrackingHandler{
		Campaigns:  campaignRepo,
		Recipients: recipientRepo,
		Events:     eventRepo,
		Recorder:   recorder,
		Log:        log,
	}

	r := chi.NewRouter()

	r.Post("/campaigns", campaignHandler.CreateCampaign)
	r.Get("/campaigns", campaignHandler.ListCampaigns)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaign)
	r.Post("/campaigns/{id}/start", campaignHandler.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignHandler.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignHandler.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", campaignHandler.CancelCampaign)
	r.Get("/campaigns/{id}/queue", campaignHandler.QueueStatus)
	r.Post("/campaigns/{id}/personalized-preview", campaignHandler.PersonalizedPreview)

	r.Get("/track/open/{token}", trackingHandler.TrackOpen)
	r.Get("/track/click/{token}", trackingHandler.TrackClick)
	r.Get("/unsubscribe/{token}", trackingHandler.Unsubscribe)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	log.Info().Str("addr", addr).Msg("server running")
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
