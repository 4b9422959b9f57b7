package main

import (
	"context"
	"fmt"
	"io"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/invoice-agent/internal/api"
	"github.com/dvloznov/invoice-agent/internal/approval"
	"github.com/dvloznov/invoice-agent/internal/archive"
	"github.com/dvloznov/invoice-agent/internal/clients"
	"github.com/dvloznov/invoice-agent/internal/config"
	"github.com/dvloznov/invoice-agent/internal/dispatch"
	"github.com/dvloznov/invoice-agent/internal/extract"
	"github.com/dvloznov/invoice-agent/internal/extract/gemini"
	"github.com/dvloznov/invoice-agent/internal/extract/openai"
	"github.com/dvloznov/invoice-agent/internal/intake"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/jobs"
	"github.com/dvloznov/invoice-agent/internal/jobs/inmemory"
	"github.com/dvloznov/invoice-agent/internal/ledger"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
	"github.com/dvloznov/invoice-agent/internal/telegram"
)

// downloadTimeout bounds fetching one upload from Telegram.
const downloadTimeout = 2 * time.Minute

func runServe(ctx context.Context, cfg config.Config) error {
	log, err := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	ctx = logger.WithContext(ctx, log)
	locale := cfg.Locale()

	tg, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	log.Info().Str("bot", tg.Self.UserName).Msg("Authorized on Telegram")

	oracle, err := newOracle(ctx, cfg)
	if err != nil {
		return err
	}

	led, err := newLedger(ctx, cfg, locale)
	if err != nil {
		return err
	}
	if c, ok := led.(io.Closer); ok {
		defer c.Close()
	}

	arch, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := arch.(io.Closer); ok {
		defer c.Close()
	}

	directory, err := clients.ParseDirectory(cfg.ClientDirectory)
	if err != nil {
		return err
	}
	if directory.Open() {
		log.Warn().Msg("CLIENT_DIRECTORY is empty, every Telegram user is registered")
	}

	store := pending.NewStore()
	notifier := telegram.NewNotifier(tg, cfg.Telegram.ManagerChatID, locale)

	var users ledger.UserLog
	if ul, ok := led.(ledger.UserLog); ok {
		users = ul
	}
	intakeSvc := intake.NewService(intake.Deps{
		Fetcher:    intake.NewHTTPFetcher(downloadTimeout),
		Oracle:     oracle,
		Normalizer: invoice.Normalizer{Locale: locale},
		Store:      store,
		Notifier:   notifier,
		Users:      users,
	})

	var submitterNotifier approval.SubmitterNotifier
	if cfg.NotifySubmitter {
		submitterNotifier = notifier
	}
	machine := approval.New(store, dispatch.New(arch, led), submitterNotifier)

	jobStore := inmemory.NewStore(cfg.JobHistory)
	queue := inmemory.NewQueue(cfg.QueueSize, cfg.Workers, jobStore)

	bot := telegram.NewBot(telegram.Deps{
		API:           tg,
		Registry:      directory,
		Intake:        intakeSvc,
		Decider:       machine,
		Publisher:     queue,
		ManagerChatID: cfg.Telegram.ManagerChatID,
	})

	server := api.NewServer(fmt.Sprintf(":%d", cfg.HTTPPort), api.Deps{
		Pending: store,
		Jobs:    jobStore,
		Locale:  locale,
		Token:   cfg.APIToken,
		Started: time.Now(),
		Log:     log,
	})

	// Workers outlive the signal so in-flight jobs can finish during Stop.
	workerCtx, cancelWorkers := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancelWorkers()
	if err := queue.Start(workerCtx, jobs.RunJob); err != nil {
		return fmt.Errorf("start job queue: %w", err)
	}
	log.Info().Int("workers", cfg.Workers).Msg("Job workers started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	runErr := g.Wait()

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop job queue and wait for in-flight jobs
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}
	if n := store.Len(); n > 0 {
		log.Warn().Int("pending", n).Msg("Pending invoices are lost on exit")
	}

	log.Info().Msg("Server exited")
	return runErr
}

func newOracle(ctx context.Context, cfg config.Config) (extract.Oracle, error) {
	switch cfg.Oracle.Provider {
	case config.OracleOpenAI:
		return openai.New(openai.Config{
			APIKey:     cfg.Oracle.OpenAIAPIKey,
			BaseURL:    cfg.Oracle.OpenAIBaseURL,
			Model:      cfg.Oracle.OpenAIModel,
			Timeout:    cfg.Oracle.OpenAITimeout,
			MinPDFText: cfg.Oracle.MinPDFText,
		}), nil
	default:
		o, err := gemini.New(ctx, gemini.Config{
			APIKey: cfg.Oracle.GeminiAPIKey,
			Model:  cfg.Oracle.GeminiModel,
		})
		if err != nil {
			return nil, err
		}
		return o, nil
	}
}

func newLedger(ctx context.Context, cfg config.Config, locale invoice.Locale) (ledger.Ledger, error) {
	layout := ledger.Layout{Locale: locale}

	switch cfg.Ledger.Backend {
	case config.LedgerXLSX:
		return ledger.NewWorkbook(cfg.Ledger.XLSXPath, layout), nil
	case config.LedgerBigQuery:
		bq, err := ledger.NewBigQuery(ctx, cfg.Ledger.BigQueryProject, cfg.Ledger.BigQueryDataset, cfg.Ledger.BigQueryTable)
		if err != nil {
			return nil, err
		}
		return bq, nil
	default:
		s, err := ledger.NewSheets(ctx, cfg.Ledger.SheetsID, layout)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func newArchive(ctx context.Context, cfg config.Config) (archive.Archive, error) {
	switch cfg.Archive.Backend {
	case config.ArchiveGCS:
		g, err := archive.NewGCS(ctx, cfg.Archive.GCSBucket)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.ArchiveMinIO:
		m, err := archive.NewMinIO(archive.MinIOConfig{
			Endpoint:  cfg.Archive.MinIOEndpoint,
			AccessKey: cfg.Archive.MinIOAccessKey,
			SecretKey: cfg.Archive.MinIOSecretKey,
			UseSSL:    cfg.Archive.MinIOUseSSL,
			Region:    cfg.Archive.MinIORegion,
			Bucket:    cfg.Archive.MinIOBucket,
			LinkTTL:   cfg.Archive.MinIOLinkTTL,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return archive.Disabled{}, nil
	}
}
