package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"

	"feed_updater/internal/config"
	"feed_updater/internal/mirror"
	"feed_updater/internal/publisher"
	"feed_updater/internal/ranking"
	"feed_updater/internal/service"
	"feed_updater/internal/source/rss"
	"feed_updater/internal/storage/sqlstore"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		os.Exit(exitCode(err))
	}
}

// errNothingToDo marks a command that had no work. It exits with
// exitNothingToDo so scripts can tell it apart from success and failure.
var errNothingToDo = errors.New("nothing to do")

const exitNothingToDo = 2

func exitCode(err error) int {
	if errors.Is(err, errNothingToDo) {
		return exitNothingToDo
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	return 1
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "updater",
		Usage: "Fetch subscribed feeds into the local store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to config file",
				Sources: cli.EnvVars("RSRSSR_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			updateCommand(),
			scheduleCommand(),
			rankCommand(),
			sourcesCommand(),
			statsCommand(),
			migrateCommand(),
		},
	}
}

// app holds everything built from the configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqlx.DB
	mirror service.Mirror
	pub    *publisher.RabbitMQ

	sources *sqlstore.SourceStore
	entries *sqlstore.EntryStore
	runs    *sqlstore.RunStatStore
	worker  *service.Worker
}

func openApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	logger := setupLogger("info")

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger = setupLogger(cfg.LogLevel)

	var m service.Mirror = mirror.Noop{}
	var fileMirror *mirror.File
	if cfg.Database.Driver == config.DriverSQLite && cfg.Mirror.RemotePath != "" {
		fileMirror = mirror.NewFile(cfg.Database.Path, cfg.Mirror.RemotePath, logger)
		m = fileMirror
	}

	// The database file has to be in place before migrations touch it.
	if err := m.EnsureLocal(ctx); err != nil {
		return nil, fmt.Errorf("restore database: %w", err)
	}

	db, err := sqlstore.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	if fileMirror != nil {
		fileMirror.OnBeforeSync(func(ctx context.Context) error {
			return sqlstore.Checkpoint(ctx, db)
		})
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		mirror:  m,
		sources: sqlstore.NewSourceStore(db),
		entries: sqlstore.NewEntryStore(db),
		runs:    sqlstore.NewRunStatStore(db),
	}

	fetcher := rss.New(rss.Config{
		Timeout:        cfg.Fetch.Timeout,
		UserAgent:      cfg.Fetch.UserAgent,
		MaxAttempts:    cfg.Fetch.Retry.MaxAttempts,
		InitialBackoff: cfg.Fetch.Retry.InitialBackoff,
		MaxBackoff:     cfg.Fetch.Retry.MaxBackoff,
	}, logger)

	a.worker = service.NewWorker(
		a.sources,
		a.entries,
		sqlstore.NewTransactionManager(db),
		fetcher,
		logger,
		cfg.Update.WatermarkLookbackMonths,
	)

	return a, nil
}

// connectPublisher dials RabbitMQ when a URL is configured.
func (a *app) connectPublisher() error {
	if a.cfg.RabbitMQ.URL == "" {
		return nil
	}
	pub, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        a.cfg.RabbitMQ.URL,
		Exchange:   a.cfg.RabbitMQ.Exchange,
		RoutingKey: a.cfg.RabbitMQ.RoutingKey,
		QueueName:  a.cfg.RabbitMQ.QueueName,
	}, a.logger)
	if err != nil {
		return err
	}
	a.pub = pub
	return nil
}

func (a *app) updater(observer service.Observer) *service.Updater {
	var pub service.Publisher
	if a.pub != nil {
		pub = a.pub
	}
	return service.NewUpdater(a.sources, a.runs, a.worker, a.mirror, pub, observer, a.logger, a.cfg.Update)
}

func (a *app) sourceService() *service.SourceService {
	return service.NewSourceService(a.sources, a.worker, a.mirror, a.logger)
}

func (a *app) ranking() *ranking.Service {
	return ranking.NewService(a.sources, a.entries, ranking.Config{
		WindowDays:      a.cfg.Ranking.WindowDays,
		PerSourceCap:    a.cfg.Ranking.PerSourceCap,
		DownrankPenalty: a.cfg.Ranking.DownrankPenalty,
	}, a.logger)
}

func (a *app) Close() {
	if a.pub != nil {
		a.pub.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func setupLogger(level string) *slog.Logger {
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

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
