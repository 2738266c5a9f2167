package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/kubeask/internal/agent"
	"github.com/rahul/kubeask/internal/observability"
	"go.uber.org/zap"
)

type TelegramGateway struct {
	Bot     *tgbotapi.BotAPI
	Brain   agent.Brain
	allowed func(string) bool
	logger  *observability.Logger

	stopOnce sync.Once
}

func NewTelegramGateway(token string, brain agent.Brain, allowedUsers []string, logger *observability.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	if logger == nil {
		logger = observability.NewNop()
	}

	logger.Zap().Info("telegram authorized", zap.String("account", bot.Self.UserName))

	return &TelegramGateway{
		Bot:     bot,
		Brain:   brain,
		allowed: allowList(allowedUsers),
		logger:  logger,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)
	defer tg.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			tg.handle(ctx, update.Message)
		}
	}
}

func (tg *TelegramGateway) handle(ctx context.Context, m *tgbotapi.Message) {
	user := ""
	if m.From != nil {
		user = m.From.UserName
	}
	tg.logger.Zap().Debug("telegram message", zap.String("user", user), zap.Int64("chat_id", m.Chat.ID))

	if !tg.allowed(user) {
		_ = tg.reply(m.Chat.ID, "You are not allowed to query this cluster.")
		return
	}

	var response string
	switch m.Command() {
	case "start", "help":
		response = helpText
	default:
		text := stripCommand(m.Text)
		if text == "" {
			response = helpText
			break
		}
		response = ask(ctx, tg.Brain, tg.logger, text)
	}

	if err := tg.reply(m.Chat.ID, response); err != nil {
		tg.logger.Zap().Warn("telegram send failed", zap.Error(err))
	}
}

// reply sends text as preformatted HTML; the answer is escaped first.
func (tg *TelegramGateway) reply(chatID int64, text string) error {
	body := truncate(sanitize(text), telegramMaxMessage-len("<pre></pre>"))
	msg := tgbotapi.NewMessage(chatID, "<pre>"+body+"</pre>")
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	return tg.reply(id, text)
}

// Stop may be called more than once; the bot panics on a second stop.
func (tg *TelegramGateway) Stop() error {
	tg.stopOnce.Do(tg.Bot.StopReceivingUpdates)
	return nil
}
