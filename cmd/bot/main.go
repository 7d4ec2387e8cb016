package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tg_domain_watch_bot/internal/config"
	"tg_domain_watch_bot/internal/domain"
	"tg_domain_watch_bot/internal/feature/notify"
	"tg_domain_watch_bot/internal/feature/owner"
	"tg_domain_watch_bot/internal/feature/refresh"
	"tg_domain_watch_bot/internal/feature/subscriber"
	"tg_domain_watch_bot/internal/feature/watch"
	"tg_domain_watch_bot/internal/health"
	"tg_domain_watch_bot/internal/logging"
	"tg_domain_watch_bot/internal/metrics"
	"tg_domain_watch_bot/internal/schedule"
	"tg_domain_watch_bot/internal/store"
	"tg_domain_watch_bot/internal/telegram"
	"tg_domain_watch_bot/internal/whois"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	ownerBootstrapTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	schedulerStopTimeout    = 30 * time.Second
	healthShutdownTimeout   = 5 * time.Second
)

var processStart = time.Now()

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	runOnStart := flag.Bool("run-on-start", false, "run refresh and notify once at startup, then follow the schedule")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	ownerRegistrar := owner.NewRegistrar(mongoManager.Subscribers(), logger)
	ownerCtx, cancelOwner := context.WithTimeout(context.Background(), ownerBootstrapTimeout)
	if _, err := ownerRegistrar.EnsureOwner(ownerCtx, cfg.BotOwnerID); err != nil {
		cancelOwner()
		logger.WithError(err).Error("owner bootstrap error")
		fmt.Fprintf(os.Stderr, "owner bootstrap error: %v\n", err)
		os.Exit(1)
	}
	cancelOwner()

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	botMetrics := metrics.New(metricsRegistry)

	domainRepository := domain.NewDomainRepository(mongoManager.Domains())
	subscriberRepository := domain.NewSubscriberRepository(mongoManager.Subscribers(), mongoManager.Subscriptions())
	subscriberRegistrar := subscriber.NewRegistrar(mongoManager.Subscribers(), logger)
	statsProvider := store.NewStatsProvider(mongoManager.Subscribers(), mongoManager.Domains(), mongoManager.Subscriptions())

	commandLookups := whois.NewClient(logger,
		whois.WithTimeout(cfg.LookupTimeout),
		whois.WithMetrics(botMetrics, "command"),
	)
	refreshLookups := whois.NewClient(logger,
		whois.WithTimeout(cfg.LookupTimeout),
		whois.WithMetrics(botMetrics, "refresh"),
	)

	watcher := watch.NewWatcher(domainRepository, subscriberRepository, subscriberRegistrar, commandLookups, logger,
		watch.WithConcurrency(cfg.LookupConcurrency),
	)

	tgClient, err := telegram.NewClient(cfg, logger,
		telegram.WithWatcher(watcher),
		telegram.WithSubscriberFetcher(subscriberRepository),
		telegram.WithStatsProvider(statsProvider),
		telegram.WithMongoChecker(mongoManager),
		telegram.WithProcessStart(processStart),
	)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	refresher := refresh.NewRefresher(domainRepository, refreshLookups, logger,
		refresh.WithConcurrency(cfg.LookupConcurrency),
		refresh.WithMetrics(botMetrics),
	)
	notifier := notify.NewNotifier(domainRepository, subscriberRepository, tgClient, logger,
		notify.WithBatchLimit(cfg.NotifyBatchLimit),
		notify.WithMetrics(botMetrics),
	)

	scheduler := schedule.New(cfg.Location(), logger, schedule.WithMetrics(botMetrics))
	if _, err := scheduler.Add("refresh", cfg.RefreshSchedule, func(ctx context.Context, now time.Time) error {
		_, err := refresher.Run(ctx, now)
		return err
	}); err != nil {
		logger.WithError(err).Error("refresh schedule error")
		fmt.Fprintf(os.Stderr, "refresh schedule error: %v\n", err)
		os.Exit(1)
	}
	if _, err := scheduler.Add("notify", cfg.NotifySchedule, func(ctx context.Context, now time.Time) error {
		_, err := notifier.Run(ctx, now)
		return err
	}); err != nil {
		logger.WithError(err).Error("notify schedule error")
		fmt.Fprintf(os.Stderr, "notify schedule error: %v\n", err)
		os.Exit(1)
	}

	healthServer := health.NewServer(cfg.HTTPPort, mongoManager, metricsRegistry, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(context.Background())

	if *runOnStart {
		go func() {
			for _, task := range scheduler.Tasks() {
				if err := task.RunNow(signalCtx); err != nil {
					logger.WithFields(logging.Fields{
						"event": "startup_run_failed",
						"task":  task.Name(),
					}).WithError(err).Warn("startup run failed")
				}
			}
		}()
	}

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	schedulerCtx, cancelScheduler := context.WithTimeout(context.Background(), schedulerStopTimeout)
	if err := scheduler.Stop(schedulerCtx); err != nil {
		logger.WithField("event", "scheduler_shutdown_timeout").WithError(err).Warn("scheduled tasks did not finish in time")
	}
	cancelScheduler()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
