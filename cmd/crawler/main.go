package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"billwatch/internal/changelog"
	"billwatch/internal/config"
	"billwatch/internal/ledger"
	"billwatch/internal/publisher"
	"billwatch/internal/scheduler"
	"billwatch/internal/service"
	"billwatch/internal/source/leginfo"
	"billwatch/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single crawl and exit")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info", "")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel, cfg.Logs.ErrorFile)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// RabbitMQ is optional; without it changes are only staged in the
	// ledger file.
	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	// Initialize stores
	billStore := postgres.NewBillStore(db)
	crawlStateStore := postgres.NewCrawlStateStore(db)
	txManager := postgres.NewTransactionManager(db)

	changeLedger := ledger.NewFile(cfg.Ledger.Path)

	changeLog, err := changelog.Open(cfg.Logs.ChangeFile)
	if err != nil {
		logger.Error("failed to open change log", "error", err)
		os.Exit(1)
	}
	defer changeLog.Close()

	// Initialize the bill source
	source := leginfo.New(leginfo.Config{
		SearchURL:      cfg.Source.SearchURL,
		StatusURL:      cfg.Source.StatusURL,
		TextURL:        cfg.Source.TextURL,
		SiteURL:        cfg.Source.SiteURL,
		Timeout:        cfg.Source.Timeout,
		MaxAttempts:    cfg.Source.Retry.MaxAttempts,
		InitialBackoff: cfg.Source.Retry.InitialBackoff,
		MaxBackoff:     cfg.Source.Retry.MaxBackoff,
	}, logger)

	crawlService := service.NewCrawlService(
		source,
		billStore,
		crawlStateStore,
		txManager,
		changeLedger,
		changeLog,
		pub,
		logger,
		cfg.Crawl,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting bill crawler",
		"source", source.Name(),
		"keyword", cfg.Crawl.Keyword,
		"item_budget", cfg.Crawl.ItemBudget,
		"once", *once,
	)

	if *once {
		if _, err := crawlService.Crawl(ctx); err != nil {
			logger.Error("crawl failed", "error", err)
			os.Exit(1)
		}
		return
	}

	sched := scheduler.NewScheduler(crawlService, cfg.Crawl.Interval, logger)
	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level, errorFile string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	stdout := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})

	if errorFile == "" {
		return slog.New(stdout)
	}

	f, err := os.OpenFile(errorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.New(stdout).Warn("failed to open error log, logging to stdout only", "error", err)
		return slog.New(stdout)
	}

	errors := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(teeHandler{stdout, errors})
}

// teeHandler fans records out to both handlers; the error-file handler's
// own level keeps anything below Error out of the file.
type teeHandler struct {
	a, b slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.a.Enabled(ctx, level) || t.b.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var err error
	if t.a.Enabled(ctx, rec.Level) {
		err = t.a.Handle(ctx, rec.Clone())
	}
	if t.b.Enabled(ctx, rec.Level) {
		if herr := t.b.Handle(ctx, rec.Clone()); herr != nil && err == nil {
			err = herr
		}
	}
	return err
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.a.WithAttrs(attrs), t.b.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.a.WithGroup(name), t.b.WithGroup(name)}
}
