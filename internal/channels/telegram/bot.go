// Package telegram delivers medication reminders over a Telegram bot
// and answers a small set of dose commands.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/avelar-dev/medikit/internal/config"
	"github.com/avelar-dev/medikit/internal/ledger"
	"github.com/avelar-dev/medikit/internal/medication"
	"github.com/avelar-dev/medikit/internal/notify"
)

// Bot pushes fired alerts to the configured chats and handles the
// /today, /take and /skip commands against the dose ledger.
type Bot struct {
	api     *tgbotapi.BotAPI
	ledger  *ledger.Ledger
	logger  *zap.Logger
	chatIDs []int64
	loc     *time.Location

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	enabled bool
}

// NewBot creates the bot. A disabled or tokenless config yields an
// inert bot whose methods are all no-ops.
func NewBot(cfg config.TelegramConfig, doseLedger *ledger.Ledger, logger *zap.Logger, loc *time.Location) (*Bot, error) {
	if !cfg.Enabled || cfg.BotToken == "" {
		return &Bot{enabled: false}, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = false
	logger.Info("Telegram bot authorized", zap.String("account", api.Self.UserName))

	ctx, cancel := context.WithCancel(context.Background())
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		api:     api,
		ledger:  doseLedger,
		logger:  logger,
		chatIDs: cfg.ChatIDs,
		loc:     loc,
		ctx:     ctx,
		cancel:  cancel,
		enabled: true,
	}, nil
}

// Enabled reports whether the bot is live.
func (b *Bot) Enabled() bool { return b.enabled }

// Deliver implements notify.Sink: every configured chat gets the
// reminder.
func (b *Bot) Deliver(_ context.Context, alert notify.Alert) error {
	if !b.enabled {
		return nil
	}
	text := fmt.Sprintf("💊 %s\n%s", alert.Title, alert.Body)
	for _, chatID := range b.chatIDs {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			b.logger.Warn("Telegram delivery failed",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Start begins polling for commands.
func (b *Bot) Start() error {
	if !b.enabled {
		return nil
	}
	b.wg.Add(1)
	go b.run()
	return nil
}

// Stop halts polling and waits for the update loop to drain.
func (b *Bot) Stop() {
	if !b.enabled {
		return
	}
	b.cancel()
	b.api.StopReceivingUpdates()
	b.wg.Wait()
}

func (b *Bot) run() {
	defer b.wg.Done()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.allowed(update.Message.Chat.ID) {
				continue
			}
			b.handleCommand(update.Message)
		}
	}
}

func (b *Bot) allowed(chatID int64) bool {
	for _, id := range b.chatIDs {
		if id == chatID {
			return true
		}
	}
	return len(b.chatIDs) == 0
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.reply(msg.Chat.ID, "Commands:\n/today - today's doses\n/take N - mark dose N taken\n/skip N - mark dose N skipped")
	case "today":
		b.reply(msg.Chat.ID, b.todayText())
	case "take":
		b.reply(msg.Chat.ID, b.setStatus(msg.CommandArguments(), medication.StatusTaken))
	case "skip":
		b.reply(msg.Chat.ID, b.setStatus(msg.CommandArguments(), medication.StatusSkipped))
	default:
		b.reply(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) todayText() string {
	entries, err := b.ledger.ListForDate(time.Now().In(b.loc).Format(medication.DateLayout))
	if err != nil {
		b.logger.Error("Failed to list today's doses", zap.Error(err))
		return "Could not load today's doses."
	}
	if len(entries) == 0 {
		return "No doses scheduled today."
	}
	var sb strings.Builder
	sb.WriteString("Today's doses:\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. %s %s at %s - %s\n", i+1, e.Name, e.Dose, e.Occurrence.Time, e.Occurrence.Status)
	}
	return sb.String()
}

// setStatus resolves the 1-based position from /today back to the
// medication and occurrence index before toggling.
func (b *Bot) setStatus(arg string, status medication.DoseStatus) string {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 {
		return "Give the dose number from /today, e.g. /take 2"
	}
	entries, err := b.ledger.ListForDate(time.Now().In(b.loc).Format(medication.DateLayout))
	if err != nil || n > len(entries) {
		return "That dose number is not on today's list."
	}
	entry := entries[n-1]
	if _, err := b.ledger.SetStatus(entry.MedicationID, entry.Index, status); err != nil {
		b.logger.Error("Failed to set dose status", zap.Error(err))
		return "Could not update the dose."
	}
	return fmt.Sprintf("%s at %s marked %s.", entry.Name, entry.Occurrence.Time, status)
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("Telegram reply failed", zap.Error(err))
	}
}
