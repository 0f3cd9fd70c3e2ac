package notify

import (
	"context"
	"fmt"

	"binarynet/internal/metrics"
	"binarynet/internal/service"
	"binarynet/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type TelegramConfig struct {
	BotToken    string `mapstructure:"botToken"`
	AdminChatID int64  `mapstructure:"adminChatId"`
	Debug       bool   `mapstructure:"debug"`
	QueueSize   int    `mapstructure:"queueSize" default:"64"`
}

// sender is the slice of the bot API the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts admin-relevant events to one chat.
type TelegramNotifier struct {
	bot    sender
	chatID int64
	queue  chan service.Event
}

func NewTelegramNotifier(cfg TelegramConfig) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot: %w", err)
	}

	bot.Debug = cfg.Debug

	return newTelegramNotifier(bot, cfg.AdminChatID, cfg.QueueSize), nil
}

func newTelegramNotifier(bot sender, chatID int64, queueSize int) *TelegramNotifier {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		queue:  make(chan service.Event, queueSize),
	}
}

func (t *TelegramNotifier) Publish(e service.Event) {
	if !adminEvent(e.Kind) {
		return
	}

	select {
	case t.queue <- e:
	default:
		metrics.NotificationsDropped.WithLabelValues("telegram").Inc()
	}
}

// Run delivers queued events until ctx is done.
func (t *TelegramNotifier) Run(ctx context.Context) {
	log := logger.Logger()

	for {
		select {
		case e := <-t.queue:
			msg := tgbotapi.NewMessage(t.chatID, formatAdminMessage(e))
			if _, err := t.bot.Send(msg); err != nil {
				log.Warn("failed to send telegram notification",
					zap.String("kind", string(e.Kind)),
					zap.Error(err),
				)
			}

		case <-ctx.Done():
			return
		}
	}
}

func adminEvent(kind service.EventKind) bool {
	switch kind {
	case service.EventInvestmentRequested, service.EventWithdrawalRequested:
		return true
	}
	return false
}

func formatAdminMessage(e service.Event) string {
	switch e.Kind {
	case service.EventInvestmentRequested:
		return fmt.Sprintf("New investment request\n%s\nAmount: $%s\nUser: %s", e.Message, e.Amount.StringFixed(2), e.UserID)
	case service.EventWithdrawalRequested:
		return fmt.Sprintf("New withdrawal request\n%s\nUser: %s", e.Message, e.UserID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
