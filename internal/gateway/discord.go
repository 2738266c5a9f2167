package gateway

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rahul/kubeask/internal/agent"
	"github.com/rahul/kubeask/internal/observability"
	"go.uber.org/zap"
)

// DiscordGateway answers messages that mention the bot or start with
// "!ask", and every direct message.
type DiscordGateway struct {
	Session *discordgo.Session
	Brain   agent.Brain
	allowed func(string) bool
	logger  *observability.Logger
}

func NewDiscordGateway(token string, brain agent.Brain, allowedUsers []string, logger *observability.Logger) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent
	if logger == nil {
		logger = observability.NewNop()
	}
	return &DiscordGateway{
		Session: s,
		Brain:   brain,
		allowed: allowList(allowedUsers),
		logger:  logger,
	}, nil
}

func (d *DiscordGateway) Start(ctx context.Context) error {
	remove := d.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		d.handle(ctx, s, m)
	})
	defer remove()

	if err := d.Session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	d.logger.Zap().Info("discord connected")

	<-ctx.Done()
	return d.Session.Close()
}

func (d *DiscordGateway) handle(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	self := ""
	if s.State != nil && s.State.User != nil {
		self = s.State.User.ID
	}

	text, ok := addressed(m.Message, self)
	if !ok {
		return
	}
	if !d.allowed(m.Author.Username) {
		_ = d.Send(m.ChannelID, "You are not allowed to query this cluster.")
		return
	}

	response := helpText
	if text != "" && text != "help" {
		response = ask(ctx, d.Brain, d.logger, text)
	}
	if err := d.Send(m.ChannelID, response); err != nil {
		d.logger.Zap().Warn("discord send failed", zap.Error(err))
	}
}

// addressed reports whether the message is meant for the bot and returns
// the question without the mention or command.
func addressed(m *discordgo.Message, self string) (string, bool) {
	text := strings.TrimSpace(m.Content)
	if strings.HasPrefix(text, "!ask") {
		return stripCommand(text), true
	}
	if self != "" {
		for _, u := range m.Mentions {
			if u.ID == self {
				text = strings.ReplaceAll(text, "<@"+self+">", "")
				text = strings.ReplaceAll(text, "<@!"+self+">", "")
				return strings.TrimSpace(text), true
			}
		}
	}
	// Direct messages have no guild.
	if m.GuildID == "" {
		return text, true
	}
	return "", false
}

// Send posts text as a code block; markup is stripped first.
func (d *DiscordGateway) Send(chatID string, text string) error {
	body := html.UnescapeString(sanitize(text))
	body = strings.ReplaceAll(body, "```", "'''")
	body = truncate(body, discordMaxMessage-len("```\n\n```"))
	_, err := d.Session.ChannelMessageSend(chatID, "```\n"+body+"\n```")
	return err
}

func (d *DiscordGateway) Stop() error {
	return d.Session.Close()
}
