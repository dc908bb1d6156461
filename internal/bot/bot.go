// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-casino-bot/internal/config"
	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/game/sicbo"
	"telegram-casino-bot/internal/handler"
	"telegram-casino-bot/internal/lobby"
	"telegram-casino-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot     *tele.Bot
	cfg     *config.Config
	access  *Access
	tracker *handler.MessageTracker

	accountHandler *handler.AccountHandler
	adminHandler   *handler.AdminHandler
	rankingHandler *handler.RankingHandler
	lobbyHandler   *handler.LobbyHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	RankingService *service.RankingService
	AuditService   *service.AuditService
	Manager        *lobby.Manager
	GameRegistry   *game.Registry
}

// New creates a new Bot instance with the given dependencies and subscribes
// the lobby handler to the manager's phase changes.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:     teleBot,
		cfg:     deps.Config,
		access:  NewAccess(deps.Config),
		tracker: handler.NewMessageTracker(handler.MessageDeleteInterval),
	}

	b.accountHandler = handler.NewAccountHandler(deps.AccountService, deps.RankingService)
	b.adminHandler = handler.NewAdminHandler(deps.AccountService, deps.AuditService)
	b.rankingHandler = handler.NewRankingHandler(deps.RankingService)
	b.lobbyHandler = handler.NewLobbyHandler(
		deps.Manager,
		deps.GameRegistry,
		deps.AccountService,
		b.tracker,
		deps.Config.Lobby.MaxExtension,
	)
	b.lobbyHandler.SetSender(teleBot)
	deps.Manager.OnPhaseChange(b.lobbyHandler)

	b.registerMiddleware()
	b.registerHandlers(deps.GameRegistry)

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(b.access.Whitelist())
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers(games *game.Registry) {
	// Account handlers
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/my", b.accountHandler.HandleMy)
	b.bot.Handle("/daily", b.accountHandler.HandleDaily)
	b.bot.Handle("/top", b.accountHandler.HandleTop)
	b.bot.Handle("/daily_top", b.rankingHandler.HandleDailyTop)

	// Admin handlers
	adminGroup := b.bot.Group()
	adminGroup.Use(b.access.Admin())
	adminGroup.Handle("/admin_add", b.adminHandler.HandleAdminAdd)
	adminGroup.Handle("/admin_sub", b.adminHandler.HandleAdminSub)
	adminGroup.Handle("/admin_set", b.adminHandler.HandleAdminSet)
	adminGroup.Handle("/reconcile", b.adminHandler.HandleReconcile)

	// One opening command per registered game
	for _, kind := range games.Kinds() {
		b.bot.Handle("/"+kind, b.lobbyHandler.HandleCreate(kind))
	}
	b.bot.Handle("/join", b.lobbyHandler.HandleJoin)
	b.bot.Handle("/go", b.lobbyHandler.HandleForceStart)
	b.bot.Handle("/cancel", b.lobbyHandler.HandleCancel)
	b.bot.Handle("/extend", b.lobbyHandler.HandleExtend)
	b.bot.Handle("/lobby", b.lobbyHandler.HandleStatus)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes callbacks to appropriate handlers
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")
	if strings.HasPrefix(data, sicbo.CallbackPrefix) {
		return b.lobbyHandler.HandleSicBoCallback(c)
	}

	log.Debug().Str("data", data).Msg("Unhandled callback")
	return c.Respond()
}

// Start starts the message cleaner and then polls until Stop is called.
func (b *Bot) Start(ctx context.Context) {
	go b.tracker.Run(ctx, b.bot, handler.MessageCleanPeriod)
	log.Info().Dur("interval", handler.MessageCleanPeriod).Msg("Message cleaner started")

	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
