package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"taskbot/internal/bitrix"
	"taskbot/internal/bot"
	"taskbot/internal/catalog"
	"taskbot/internal/config"
	"taskbot/internal/conversation"
	"taskbot/internal/drafts"
	"taskbot/internal/fetcher"
	"taskbot/internal/janitor"
	"taskbot/internal/storage"
	"taskbot/internal/storage/ch"
	"taskbot/internal/storage/stubs"
	"taskbot/internal/submission"
)

// App represents the application
type App struct {
	config     *config.Config
	logger     *zap.Logger
	journal    storage.Journal
	bot        *bot.Bot
	dispatcher *conversation.Dispatcher
	janitor    *janitor.Janitor
	server     *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{config: cfg, logger: logger}
	logger.Info("Starting Task Bot...")

	if err := app.initJournal(); err != nil {
		return nil, err
	}
	if err := app.initBot(); err != nil {
		return nil, err
	}
	app.initHTTPServer()

	return app, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.LogDevelopment {
		zapConfig = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zapConfig.Level = level
	return zapConfig.Build()
}

// initJournal connects the submission journal
func (a *App) initJournal() error {
	var journal storage.Journal
	switch a.config.JournalBackend {
	case config.JournalMemory:
		a.logger.Info("Using in-memory submission journal")
		journal = stubs.NewMemoryJournal()
	case config.JournalClickHouse:
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.Bool("tls", a.config.ClickHouseUseTLS),
		)
		clickhouseJournal, err := ch.NewClickHouseJournal(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		journal = clickhouseJournal
	default:
		journal = storage.Nop{}
	}

	if err := journal.Initialize(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}

	a.journal = journal
	return nil
}

// initBot wires the Telegram bot to the conversation machine
func (a *App) initBot() error {
	cfg := a.config

	categories, err := catalog.Load(cfg.CategoriesFile)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}

	location, err := cfg.Location()
	if err != nil {
		return err
	}

	bitrixClient, err := bitrix.NewClient(bitrix.Config{
		WebhookURL:    cfg.BitrixWebhookURL,
		FolderID:      cfg.BitrixFolderID,
		Mode:          bitrix.UploadMode(cfg.BitrixUploadMode),
		UploadMethod:  cfg.BitrixUploadMethod,
		TaskMethod:    cfg.BitrixTaskMethod,
		CreatedBy:     cfg.BitrixCreatedBy,
		UploadTimeout: cfg.UploadTimeout,
		TaskTimeout:   cfg.TaskTimeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Bitrix24 client: %w", err)
	}

	telegramBot, err := bot.NewBot(cfg.TelegramToken, cfg.AllowedUserIDs, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	files, err := fetcher.New(telegramBot.GetAPI(), fetcher.Options{
		Dir:         cfg.TempDir,
		MaxSize:     cfg.MaxFileSize,
		MemoryLimit: cfg.MemoryBufferLimit,
		Timeout:     cfg.FetchTimeout,
	}, a.logger)
	if err != nil {
		return err
	}

	submitter := submission.New(files, bitrixClient, bitrixClient, a.journal, submission.Options{
		Workdays: cfg.DeadlineWorkdays,
		Location: location,
	}, a.logger)

	opts := conversation.Options{MaxFileSize: cfg.MaxFileSize}
	if cfg.EagerDownload {
		opts.Prefetch = files
	}
	if cfg.JournalBackend != config.JournalNone {
		opts.History = a.journal
	}

	store := drafts.NewStore()
	machine := conversation.NewMachine(store, categories, telegramBot, submitter, opts, a.logger)
	// Submissions in flight finish even after a shutdown signal
	a.dispatcher = conversation.NewDispatcher(context.Background(), machine, a.logger)
	telegramBot.SetSink(a.dispatcher)

	a.janitor = janitor.New(files.Dir(), cfg.TempMaxAge, cfg.JanitorSchedule, store.LocalPaths, a.logger)

	a.logger.Info("Bot wired",
		zap.Int("categories", len(categories.All())),
		zap.String("upload_mode", cfg.BitrixUploadMode),
		zap.Bool("eager_download", cfg.EagerDownload),
		zap.String("journal", cfg.JournalBackend),
	)

	a.bot = telegramBot
	return nil
}

// initHTTPServer initializes the HTTP server for health checks and webhook
func (a *App) initHTTPServer() {
	mux := http.NewServeMux()
	bot.NewHTTPServer(a.bot, a.config.WebhookSecret, a.config.WebhookMode).RegisterRoutes(mux)

	a.server = &http.Server{
		Addr:         ":" + strconv.Itoa(a.config.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.janitor.Start(); err != nil {
		return err
	}

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	// Start bot in appropriate mode
	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(a.config.WebhookURL, a.config.WebhookSecret); err != nil {
			a.Shutdown()
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
	} else {
		go func() {
			if err := a.bot.Start(ctx); err != nil {
				a.logger.Error("Polling failed", zap.Error(err))
				stop()
			}
		}()
	}

	// Wait for interrupt signal
	<-ctx.Done()

	a.logger.Info("Shutting down...")
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	// Shutdown HTTP server gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Let queued conversation events finish before closing their dependencies
	a.dispatcher.Close()
	a.janitor.Stop()

	err := a.journal.Close()
	if err != nil {
		a.logger.Error("Error closing journal", zap.Error(err))
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return err
}
