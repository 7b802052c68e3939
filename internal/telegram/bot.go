package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/jutclasses/enrollbot/internal/auth"
	"github.com/jutclasses/enrollbot/internal/config"
	"github.com/jutclasses/enrollbot/internal/flows"
	"github.com/jutclasses/enrollbot/internal/ledger"
	"github.com/jutclasses/enrollbot/internal/logger"
	"github.com/jutclasses/enrollbot/internal/session"
	"github.com/jutclasses/enrollbot/internal/stats"
	"github.com/jutclasses/enrollbot/internal/store"
	"github.com/jutclasses/enrollbot/internal/telegram/sender"
	"github.com/jutclasses/enrollbot/internal/workflow"
)

// Bot wires the enrollment services to the Telegram transport.
type Bot struct {
	cfg      *config.Config
	bot      *tele.Bot
	reg      *Registry
	st       store.Store
	led      *ledger.Service
	wf       *workflow.Service
	regFlow  *flows.Registration
	wdFlow   *flows.Withdrawal
	sessions session.Manager
	settings *Settings
	authz    auth.Authorizer
	notify   *Notifier
	stats    *stats.Service
	disp     *sender.Dispatcher
}

// Deps carries the service layer the bot is built on.
type Deps struct {
	Store    store.Store
	Ledger   *ledger.Service
	Workflow *workflow.Service
	Sessions session.Manager
}

// New builds the bot, registers every command, callback, and middleware,
// and leaves it ready to Run.
func New(cfg *config.Config, deps Deps) (*Bot, error) {
	buildStart := time.Now()
	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: BuildPoller(cfg),
		Client: BuildHTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	logger.TG.Info("bot built",
		slog.String("event", "mode"),
		slog.String("mode", cfg.Telegram.RunMode),
		slog.Duration("duration", logger.RoundMS(time.Since(buildStart))),
	)

	authz := auth.NewStaticAuthorizer(cfg.Telegram.AdminIDs)
	b := &Bot{
		cfg:      cfg,
		bot:      tb,
		reg:      NewRegistry(),
		st:       deps.Store,
		led:      deps.Ledger,
		wf:       deps.Workflow,
		regFlow:  flows.NewRegistration(deps.Store, deps.Sessions, deps.Ledger, cfg.Program),
		wdFlow:   flows.NewWithdrawal(deps.Workflow, deps.Sessions, cfg.Program),
		sessions: deps.Sessions,
		settings: NewSettings(cfg.Features),
		authz:    authz,
		notify: NewNotifier(tb, cfg.Telegram.AdminIDs,
			time.Duration(cfg.Program.BroadcastDelayMS)*time.Millisecond),
		stats: stats.NewService(deps.Store),
		disp:  sender.NewDispatcher(sender.Options{}),
	}
	SetDispatcher(b.disp)

	b.useMiddlewares()
	b.registerCommands()
	b.registerCallbacks()
	b.registerRoutes()
	InitBotCommands(tb, b.reg)

	return b, nil
}

func (b *Bot) useMiddlewares() {
	exclude := make(map[string]struct{}, len(b.cfg.RateLimit.ExcludeUpdates))
	for _, k := range b.cfg.RateLimit.ExcludeUpdates {
		exclude[k] = struct{}{}
	}

	b.bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return RecoverMiddleware(next)
	})
	b.bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return LoggerMiddleware(next)
	})
	b.bot.Use(RateLimitMiddleware(RateLimitOptions{
		Interval: time.Duration(b.cfg.RateLimit.IntervalMS) * time.Millisecond,
		Exclude:  exclude,
	}))
	b.bot.Use(GateMiddleware(b.st, b.settings, b.authz, b.cfg.MaintenanceMessage))
}

func (b *Bot) registerCommands() {
	b.reg.RegisterCommand("/start", Command{
		Handler:     b.handleStart,
		Description: "Start or show the main menu",
	})
	b.reg.RegisterCommand("/help", Command{
		Handler:     b.handleHelp,
		Description: "How the program works",
	})
	b.reg.RegisterCommand("/cancel", Command{
		Handler:     b.handleCancel,
		Description: "Abort the current action",
	})
	b.reg.RegisterCommand("/balance", Command{
		Handler:     b.handleBalance,
		Description: "Show your balance",
		Aliases:     []string{"wallet"},
	})
	b.reg.RegisterCommand("/admin", Command{
		Handler:     b.handleAdminDashboard,
		Description: "Admin dashboard",
		AdminOnly:   true,
		Hidden:      true,
	})
}

func (b *Bot) registerCallbacks() {
	cb := func(key string, h tele.HandlerFunc, adminOnly bool) {
		if adminOnly {
			h = AdminOnlyMiddleware(b.authz, nil)(h)
		}
		if err := b.reg.RegisterCallback(key, h); err != nil {
			logger.TWire.Warn("callback wire failed",
				slog.String("event", "register.callback"),
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
		}
	}

	cb(cbStream, b.cbChooseStream, false)
	cb(cbWdMethod, b.cbChooseMethod, false)
	cb(cbCancel, b.cbCancelFlow, false)

	cb(cbPayApprove, b.cbApprovePayment, true)
	cb(cbPayReject, b.cbRejectPayment, true)
	cb(cbWdApprove, b.cbApproveWithdrawal, true)
	cb(cbWdReject, b.cbRejectWithdrawal, true)

	cb(cbAdmPayments, b.cbPendingPayments, true)
	cb(cbAdmWithdrawals, b.cbPendingWithdrawals, true)
	cb(cbAdmStats, b.cbAnalytics, true)
	cb(cbAdmSearch, b.cbStartSearch, true)
	cb(cbAdmBroadcast, b.cbStartBroadcast, true)
	cb(cbAdmMaint, b.cbToggleMaintenance, true)
	cb(cbAdmExportStudents, b.cbExportStudents, true)
	cb(cbAdmExportPayments, b.cbExportPayments, true)
	cb(cbAdmExportPayouts, b.cbExportWithdrawals, true)
	cb(cbAdmBack, b.cbBackToDashboard, true)

	cb(cbUsrBlock, b.cbBlockUser, true)
	cb(cbUsrUnblock, b.cbUnblockUser, true)
	cb(cbUsrDelete, b.cbDeleteUser, true)
	cb(cbUsrMessage, b.cbMessageUser, true)
}

func (b *Bot) registerRoutes() {
	for name, def := range b.reg.Commands() {
		h := def.Handler
		if def.AdminOnly {
			h = AdminOnlyMiddleware(b.authz, nil)(h)
		}
		b.bot.Handle(name, h)
	}

	b.bot.Handle(tele.OnText, b.handleText)
	b.bot.Handle(tele.OnContact, b.handleContact)
	b.bot.Handle(tele.OnPhoto, b.handlePhoto)
	b.bot.Handle(tele.OnCallback, b.handleCallback)

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(b.reg.Commands())),
		slog.Int("callbacks", len(b.reg.ListCallbacks())),
	)
}

// handleCallback routes callbacks through the registry.
func (b *Bot) handleCallback(c tele.Context) error {
	if c.Callback() == nil {
		return nil
	}
	_ = c.Respond()

	key := CallbackKey(c)
	WithHandler(c, "callback."+key)

	h, ok := b.reg.GetCallback(key)
	if !ok || h == nil {
		return b.reg.CallbackNotFound()(c)
	}
	start := time.Now()
	err := h(c)
	b.logHandled(c, "callback."+key, start, err)
	return err
}

func (b *Bot) logHandled(c tele.Context, name string, start time.Time, err error) {
	ctx := BuildContext(c)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("handler", name),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
}

// Run starts the bot and blocks until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	runDone := make(chan struct{})
	go func() {
		b.bot.Start()
		close(runDone)
	}()

	logger.TG.Info("bot started",
		slog.String("event", "start"),
		slog.String("username", b.cfg.Telegram.Username),
	)

	var runErr error
	select {
	case <-ctx.Done():
		b.bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	b.disp.Close()
	SetDispatcher(nil)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
