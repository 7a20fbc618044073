package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kasabot/internal/config"
	"kasabot/internal/handler"
	"kasabot/internal/infra"
	"kasabot/internal/logging"
	"kasabot/internal/notify"
	"kasabot/internal/repository"
	"kasabot/internal/router"
	"kasabot/internal/service"
	"kasabot/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// @title                      kasabot admin API
// @version                    1.0
// @description                Registers Checkbox cash registers and controls their polling.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	logFile, err := logging.Setup(logging.Options{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		Dir:      cfg.LogDir,
		MaxFiles: cfg.LogMaxFiles,
	}, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	defer logFile.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Device store ─────────────────────────────────────────────────────────
	store, db, err := repository.OpenKasaStore(cfg.StoreDriver, cfg.KasasFile, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open kasa store")
	}
	registry, err := service.LoadRegistry(ctx, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load kasas")
	}

	// ── Outbound APIs ────────────────────────────────────────────────────────
	checkbox := infra.NewCheckboxClient(infra.CheckboxConfig{
		BaseURL:       cfg.CheckboxAPIURL,
		ClientName:    cfg.CheckboxClientName,
		ClientVersion: cfg.CheckboxClientVersion,
		Timeout:       time.Duration(cfg.CheckboxTimeoutSeconds) * time.Second,
	})
	telegram := infra.NewTelegramClient(cfg.TelegramAPIURL, cfg.TelegramToken)

	var direct service.Notifier = notify.NewTelegram(telegram)
	if cfg.SMTPHost != "" && cfg.EmailCopyTo != "" {
		mailer := infra.NewMailer(infra.MailerConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		})
		direct = notify.NewMulti(direct, notify.NewEmail(mailer, cfg.EmailCopyTo))
		log.Info().Str("to", cfg.EmailCopyTo).Msg("e-mail copies enabled")
	}

	// Redis queue in front of delivery (optional)
	notifier := direct
	var rdb *redis.Client
	var pool *worker.Pool
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		notifier = worker.NewDispatcher(rdb, cfg.NotifyWorkers)
		pool = worker.NewPool(rdb, cfg.NotifyWorkers, worker.NewNotifyWorker(rdb, direct))
		pool.Start(workerCtx)
		worker.StartRedeliveryCron(workerCtx, worker.RedeliveryConfig{
			RDB:     rdb,
			Shards:  cfg.NotifyWorkers,
			Breaker: telegram,
		})
	}

	// ── Poller ───────────────────────────────────────────────────────────────
	floor, _ := cfg.HistoryFloor()
	loc, _ := time.LoadLocation(cfg.Timezone)
	poller := service.NewPoller(service.PollerConfig{
		IntervalOpen:   cfg.PollIntervalOpen,
		IntervalClosed: cfg.PollIntervalClosed,
		ErrorBackoff:   cfg.PollErrorBackoff,
		HistoryFloor:   floor,
		SendReports:    cfg.SendShiftReports,
		SendSummaryPDF: cfg.SendSummaryPDF,
		Location:       loc,
	}, registry, checkbox, notifier).WithSummaryRenderer(infra.RenderSummaryPDF)

	if cfg.ArchiveBucket != "" {
		archive, err := infra.NewDocumentArchive(ctx, infra.ArchiveConfig{
			Bucket:    cfg.ArchiveBucket,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure document archive")
		}
		poller.WithArchive(archive)
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	poller.Start(pollCtx)
	if cfg.PollOnStartup {
		n := poller.StartAll()
		log.Info().Int("kasas", n).Msg("polling resumed for stored kasas")
	}

	// ── Admin API ────────────────────────────────────────────────────────────
	r := router.New(cfg, router.Deps{
		DB:       db,
		Redis:    rdb,
		Registry: registry,
		Poller:   poller,
		Fiscal:   checkbox,
		Breakers: map[string]handler.BreakerReporter{
			"checkbox": checkbox,
			"telegram": telegram,
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("kasabot listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	stopPolling()
	poller.Wait()
	stopWorkers()
	if pool != nil {
		pool.Wait()
		_ = rdb.Close()
	}
	log.Info().Msg("server exited")
}
