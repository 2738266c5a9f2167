// Package gateway holds the front doors that feed requests to an
// agent.Brain: the HTTP API and the chat bots.
package gateway

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rahul/kubeask/internal/agent"
	"github.com/rahul/kubeask/internal/observability"
	"go.uber.org/zap"
)

// Messenger defines the interface for chat gateways (Telegram, Discord).
type Messenger interface {
	// Start begins the message listening loop and blocks until ctx is done.
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

const (
	telegramMaxMessage = 4096
	discordMaxMessage  = 2000
)

const helpText = "Ask me about the cluster, for example:\n" +
	"- show pods in operations namespace\n" +
	"- get logs for pod my-app-123 in prod\n" +
	"- which nodes use the most cpu"

// replyPolicy strips any markup a planner may have put in its answer.
var replyPolicy = bluemonday.StrictPolicy()

// ask runs one chat message through the brain under a fresh request id.
func ask(ctx context.Context, brain agent.Brain, logger *observability.Logger, text string) string {
	ctx = observability.WithRequestID(ctx, "")
	answer, err := brain.Think(ctx, agent.Request{Prompt: text})
	if err != nil {
		logger.Zap().Warn("chat request failed",
			zap.String("request_id", observability.RequestID(ctx)), zap.Error(err))
	}
	return replyText(answer, err)
}

func replyText(answer *agent.Answer, err error) string {
	switch {
	case errors.Is(err, agent.ErrPlannerDisabled):
		return "The planner is disabled on this deployment."
	case err != nil:
		return "I couldn't work that out: " + err.Error()
	case answer == nil:
		return "I have no answer for that."
	}
	text := answer.Text()
	if text == "" {
		return "I have no answer for that."
	}
	return text
}

// sanitize returns text with all HTML removed and special characters
// escaped, safe for HTML parse modes.
func sanitize(text string) string {
	return replyPolicy.Sanitize(text)
}

// truncate cuts text to at most limit bytes on a rune boundary.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	const marker = "\n…"
	cut := limit - len(marker)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + marker
}

// stripCommand removes a leading bot command such as "/ask" or "!ask" and a
// bot mention like "@kubeask_bot".
func stripCommand(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range []string{"/ask", "!ask"} {
		if strings.HasPrefix(text, prefix) {
			rest := strings.TrimPrefix(text, prefix)
			// "/ask@kubeask_bot pods"
			if strings.HasPrefix(rest, "@") {
				_, rest, _ = strings.Cut(rest, " ")
			}
			return strings.TrimSpace(rest)
		}
	}
	return text
}

// allowList returns a predicate over user names. An empty list allows
// everyone.
func allowList(users []string) func(string) bool {
	if len(users) == 0 {
		return func(string) bool { return true }
	}
	allowed := make(map[string]bool, len(users))
	for _, u := range users {
		allowed[strings.ToLower(strings.TrimPrefix(u, "@"))] = true
	}
	return func(user string) bool {
		return allowed[strings.ToLower(user)]
	}
}
