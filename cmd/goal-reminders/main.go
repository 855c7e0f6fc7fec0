// Command goal-reminders schedules goal due-date reminders and delivers them
// to Telegram.
//
// Usage:
//
//	./goal-reminders serve          # HTTP API, timers and sweeper
//	./goal-reminders mcp            # MCP server over stdio, timers and sweeper
//	./goal-reminders list [goal]    # Print the reminder ledger
//	./goal-reminders cleanup        # Remove expired ledger records
//
// Environment:
//
//	TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID  Delivery channel (also read from .env)
//	GOALREM_*                             Config overrides, e.g. GOALREM_SWEEPER__INTERVAL=600
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/notexe/goal-reminders/internal/config"
	"github.com/notexe/goal-reminders/internal/httpapi"
	"github.com/notexe/goal-reminders/internal/ledger"
	"github.com/notexe/goal-reminders/internal/logger"
	"github.com/notexe/goal-reminders/internal/mcptools"
	"github.com/notexe/goal-reminders/internal/platform"
	"github.com/notexe/goal-reminders/internal/reminder"
	"github.com/notexe/goal-reminders/internal/scheduler"
	"github.com/notexe/goal-reminders/internal/storage"
	"github.com/notexe/goal-reminders/internal/ui"
)

const shutdownTimeout = 5 * time.Second

// app holds the wired services shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	consent  *platform.Consent
	timers   *platform.GocronTimers
	coord    *scheduler.Coordinator
	loc      *time.Location
	close    func()
}

func main() {
	_ = godotenv.Load() // TELEGRAM_BOT_TOKEN etc.

	configPath := flag.String("config", config.GetDefaultConfigPath(), "Path to configuration file")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	flag.Usage = printHelp
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" || cmd == "help" {
		printHelp()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == 0 {
			fmt.Fprintf(os.Stderr, "Tip: Set TELEGRAM_CHAT_ID environment variable or add it to config file\n")
		}
		os.Exit(1)
	}

	// Only the long-running commands deliver reminders.
	deliver := cmd == "serve" || cmd == "mcp"

	a, err := newApp(cfg, deliver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	formatter := ui.NewFormatter(!*noColor, a.loc)

	switch cmd {
	case "serve":
		err = a.serve(formatter)
	case "mcp":
		err = a.serveMCP()
	case "list":
		err = a.list(formatter, flag.Arg(1))
	case "cleanup":
		err = a.cleanup(formatter)
	default:
		err = fmt.Errorf("unknown command %q (try help)", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, formatter.FormatError(err))
		a.close()
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, deliver bool) (*app, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	l, err := ledger.New(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	consent, err := platform.NewConsent(db, cfg.Notifications.AutoGrant)
	if err != nil {
		db.Close()
		return nil, err
	}

	var deliverer platform.Deliverer = logDeliverer{log.Named("delivery")}
	if deliver {
		if deliverer, err = newDeliverer(cfg, log); err != nil {
			db.Close()
			return nil, err
		}
	}

	clock := clockwork.NewRealClock()
	timers, err := platform.NewGocronTimers(deliverer, clock, log.Named("timers"))
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := scheduler.NewMetrics(registry)
	timers.OnDeliver(metrics.ObserveDelivery)

	calc := reminder.NewCalculator(loc)
	calc.Hour = cfg.Notifications.ReminderHour

	coord, err := scheduler.New(scheduler.Options{
		Ledger:      l,
		Timers:      timers,
		Permissions: consent,
		Calculator:  calc,
		Clock:       clock,
		Supported:   cfg.Notifications.Enabled && cfg.TelegramEnabled(),
		Logger:      log,
		Metrics:     metrics,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	closed := false
	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		consent:  consent,
		timers:   timers,
		coord:    coord,
		loc:      loc,
		close: func() {
			if closed {
				return
			}
			closed = true
			if err := timers.Shutdown(); err != nil {
				log.Warn("timer shutdown failed", zap.Error(err))
			}
			db.Close()
			_ = log.Sync()
		},
	}, nil
}

func newDeliverer(cfg *config.Config, log *zap.Logger) (platform.Deliverer, error) {
	if !cfg.TelegramEnabled() {
		log.Warn("telegram not configured, reminders will not be scheduled")
		return logDeliverer{log.Named("delivery")}, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	log.Info("telegram bot authorized", zap.String("account", bot.Self.UserName))

	p := platform.Presentation{
		Silent:    cfg.Notifications.Silent,
		ParseMode: cfg.Notifications.ParseMode,
	}
	return platform.NewTelegramDeliverer(bot, cfg.Telegram.ChatID, p, cfg.Telegram.RateLimit, cfg.Telegram.Burst), nil
}

// logDeliverer stands in when no delivery channel is configured.
type logDeliverer struct{ log *zap.Logger }

func (d logDeliverer) Deliver(_ context.Context, c reminder.Content) error {
	d.log.Info("reminder fired", zap.String("goal_id", c.Payload.GoalID), zap.String("title", c.Title))
	return nil
}

// startBackground starts timers, re-arms the ledger and, when enabled, the
// sweeper. The returned func stops the sweeper.
func (a *app) startBackground(ctx context.Context) (func(), scheduler.ReconcileReport, error) {
	a.timers.Start()

	report, err := a.coord.Reconcile(ctx)
	if err != nil {
		return nil, report, fmt.Errorf("startup reconcile: %w", err)
	}
	a.log.Info("ledger reconciled",
		zap.Int("rearmed", report.Rearmed),
		zap.Int("dropped", report.Dropped),
		zap.Int("orphans", report.OrphanTimersCancelled),
		zap.Strings("failures", report.Failures))

	if !a.cfg.Sweeper.Enabled {
		return func() {}, report, nil
	}

	sweeper, err := scheduler.NewSweeper(a.coord, a.cfg.SweepInterval(), a.cfg.Sweeper.Reconcile, nil)
	if err != nil {
		return nil, report, err
	}
	sweeper.Start()
	return func() {
		if err := sweeper.Stop(); err != nil {
			a.log.Warn("sweeper shutdown failed", zap.Error(err))
		}
	}, report, nil
}

func (a *app) serve(f *ui.Formatter) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopBackground, report, err := a.startBackground(ctx)
	if err != nil {
		return err
	}
	defer stopBackground()
	fmt.Fprintln(os.Stderr, f.FormatReconcileReport(report))

	gin.SetMode(a.cfg.HTTP.Mode)
	handler := httpapi.NewHandler(a.coord, a.consent, a.log)
	srv := &http.Server{
		Addr:    a.cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(handler, a.registry),
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (a *app) serveMCP() error {
	// stdout carries the protocol, so the reconcile report only goes to the log.
	stopBackground, _, err := a.startBackground(context.Background())
	if err != nil {
		return err
	}
	defer stopBackground()

	s := mcptools.NewServer(a.coord, a.consent)
	if err := server.ServeStdio(s.MCPServer()); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func (a *app) list(f *ui.Formatter, goalID string) error {
	ctx := context.Background()

	var (
		records []reminder.Record
		err     error
	)
	if goalID != "" {
		records, err = a.coord.Reminders(ctx, goalID)
	} else {
		records, err = a.coord.AllReminders(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Println(f.FormatRecords(records, time.Now()))
	return nil
}

func (a *app) cleanup(f *ui.Formatter) error {
	n, err := a.coord.CleanupExpired(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(f.FormatSuccess(fmt.Sprintf("Removed %d expired reminder(s)", n)))
	return nil
}

func printHelp() {
	fmt.Println(`Goal Reminders - due-date reminders for fitness goals

USAGE:
    goal-reminders [flags] <command>

COMMANDS:
    serve           Run the HTTP API with timers and the cleanup sweeper
    mcp             Run the MCP server over stdio with timers and the sweeper
    list [goal]     Print scheduled reminders, optionally for one goal
    cleanup         Remove ledger records whose fire time has passed
    help            Show this help

FLAGS:
    -config <path>  Configuration file (default: ~/.goal-reminders/config.yaml)
    -no-color       Disable colored output

ENVIRONMENT:
    TELEGRAM_BOT_TOKEN  Bot token used to deliver reminders
    TELEGRAM_CHAT_ID    Chat that receives reminders
    GOALREM_*           Config overrides (GOALREM_NOTIFICATIONS__REMINDER_HOUR=8)

    A .env file in the working directory is loaded first.

API (serve):
    PUT    /api/goals/:goalID/reminders     Replace a goal's reminders
    GET    /api/goals/:goalID/reminders     List a goal's reminders
    DELETE /api/goals/:goalID/reminders     Cancel a goal's reminders
    POST   /api/reminders/cleanup           Remove expired records
    POST   /api/reminders/reconcile         Re-arm lost timers
    GET|PUT|DELETE /api/notifications/permission
    GET    /healthz, /metrics

MCP TOOLS (mcp):
    schedule_goal_reminders, cancel_goal_reminders, list_goal_reminders,
    cleanup_expired_reminders, reconcile_reminders, set_notification_permission`)
}
