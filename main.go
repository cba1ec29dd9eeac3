package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	telegoBot "contentplan-bot/bot"
	"contentplan-bot/internal/auth"
	"contentplan-bot/internal/config"
	"contentplan-bot/internal/database"
	"contentplan-bot/internal/handlers"
	"contentplan-bot/internal/locales"
	"contentplan-bot/internal/metrics"
	"contentplan-bot/internal/publisher"
	"contentplan-bot/internal/reports"
	"contentplan-bot/internal/scheduler"
	"contentplan-bot/internal/telemetry"
	"contentplan-bot/internal/textgen"
	"contentplan-bot/internal/workflow"

	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "contentplan-bot",
		Short:         "Telegram bot that plans, writes and publishes channel posts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the scheduler and the ops server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})

	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Run a single scheduler job once and exit",
	}
	jobs.AddCommand(&cobra.Command{
		Use:   "publish-due",
		Short: "Publish every approved plan whose publication date has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), scheduler.JobPublishDue)
		},
	})
	jobs.AddCommand(&cobra.Command{
		Use:   "collect-metrics",
		Short: "Collect engagement numbers for posts that have none yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), scheduler.JobCollectMetrics)
		},
	})
	cmd.AddCommand(jobs)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("contentplan-bot version %s\n", Version)
		},
	})
	return cmd
}

// app holds the components shared by the serve and job commands.
type app struct {
	cfg       *config.Config
	store     database.Store
	bot       *telego.Bot
	telemetry *telemetry.Metrics
	textgen   *textgen.Client
	engine    *workflow.Engine
	scheduler *scheduler.Scheduler
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	if err := locales.Init(cfg.DefaultLanguage); err != nil {
		return nil, fmt.Errorf("locales: %w", err)
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry.Init: %w", err)
	}

	store, err := database.Open(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		return nil, fmt.Errorf("open store: %w", err)
	}

	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		_ = store.Close(ctx)
		sentry.CaptureException(err)
		return nil, fmt.Errorf("failed to create telego bot: %w", err)
	}

	tm := telemetry.NewMetrics()
	llm := textgen.NewClient(cfg.LLM)

	engine, err := workflow.NewEngine(workflow.EngineDeps{
		Store:          store,
		Generator:      llm,
		Publisher:      publisher.NewTelegramPublisher(bot, cfg.ChannelSendsPerMin),
		Metrics:        tm,
		ChannelID:      cfg.ChannelID,
		Location:       cfg.Location,
		PublishHour:    cfg.PublishHour,
		PublishTimeout: cfg.PublishTimeout,
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("workflow engine: %w", err)
	}

	sched, err := scheduler.New(scheduler.Deps{
		Store:           store,
		Publisher:       engine,
		Metrics:         metrics.StubProvider{},
		Telemetry:       tm,
		PublishInterval: cfg.PublishInterval,
		MetricsInterval: cfg.MetricsInterval,
		MetricsDelay:    cfg.MetricsDelay,
		RunOnStart:      cfg.RunJobsOnStart,
		ItemTimeout:     cfg.PublishTimeout,
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	return &app{
		cfg:       cfg,
		store:     store,
		bot:       bot,
		telemetry: tm,
		textgen:   llm,
		engine:    engine,
		scheduler: sched,
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.store.Close(ctx); err != nil {
		log.Printf("Error closing store: %v", err)
		sentry.CaptureException(err)
	} else {
		log.Println("Store closed.")
	}
	sentry.Flush(2 * time.Second)
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	adminChecker, err := auth.NewAdminChecker(a.bot, a.cfg.ChannelID, a.cfg.AdminOnly)
	if err != nil {
		return fmt.Errorf("failed to create admin checker: %w", err)
	}

	messageHandler, err := handlers.NewMessageHandler(handlers.HandlerDeps{
		Engine:          a.engine,
		Reporter:        reports.NewBuilder(a.engine, a.textgen, a.telemetry),
		AdminChecker:    adminChecker,
		Location:        a.cfg.Location,
		PendingTopicTTL: a.cfg.PendingTopicTTL,
	})
	if err != nil {
		return fmt.Errorf("message handler: %w", err)
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	appBot, err := telegoBot.New(telegoBot.BotDeps{
		Bot:         a.bot,
		UpdatesChan: updates,
		Debug:       a.cfg.Debug,
		Handler:     messageHandler,
		Metrics:     a.telemetry,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appBot.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	if a.cfg.TelemetryAddr != "" {
		router := telemetry.NewRouter(a.telemetry, a.store, a.cfg.Version)
		g.Go(func() error {
			return telemetry.Serve(gctx, a.cfg.TelemetryAddr, router)
		})
	}

	log.Printf("Bot started (version %s, store %s, channel %d)", a.cfg.Version, a.cfg.StoreDriver, a.cfg.ChannelID)
	err = g.Wait()
	log.Println("Bot shutdown complete.")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runJob(parent context.Context, job string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var res scheduler.RunResult
	switch job {
	case scheduler.JobPublishDue:
		res, err = a.scheduler.RunDuePublication(ctx)
	case scheduler.JobCollectMetrics:
		res, err = a.scheduler.RunMetricsCollection(ctx)
	default:
		return fmt.Errorf("unknown job %q", job)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", job, err)
	}
	fmt.Printf("%s run=%s selected=%d succeeded=%d failed=%d skipped=%d\n",
		res.Job, res.RunID, res.Selected, res.Succeeded, res.Failed, res.Skipped)
	return nil
}
