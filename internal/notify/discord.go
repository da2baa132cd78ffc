package notify

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

// MessageSender abstracts the discordgo.Session method used by the
// notifier, so tests can inject a fake.
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts health-state transitions to a Discord channel.
type DiscordNotifier struct {
	session   MessageSender
	channelID string
	logger    *zap.Logger
}

// NewDiscordNotifier opens a Discord session for the given bot token.
func NewDiscordNotifier(token, channelID string, logger *zap.Logger) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}
	return NewDiscordNotifierWithSession(session, channelID, logger), nil
}

// NewDiscordNotifierWithSession builds a notifier over an existing session.
func NewDiscordNotifierWithSession(session MessageSender, channelID string, logger *zap.Logger) *DiscordNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscordNotifier{
		session:   session,
		channelID: channelID,
		logger:    logger,
	}
}

// NotifyTransition posts one message describing the new health state.
// Send failures are logged, never propagated.
func (n *DiscordNotifier) NotifyTransition(isHealthy bool, issues []shared.Issue) {
	if n == nil || n.session == nil {
		return
	}

	var b strings.Builder
	if isHealthy {
		b.WriteString(":white_check_mark: Authentication is healthy again")
	} else {
		fmt.Fprintf(&b, ":rotating_light: Authentication is unhealthy (%d issues)", len(issues))
		for _, issue := range issues {
			if issue.Severity == shared.IssueSeverityCritical {
				fmt.Fprintf(&b, "\n- **%s**: %s", issue.Kind, issue.Message)
			}
		}
	}

	if _, err := n.session.ChannelMessageSend(n.channelID, b.String()); err != nil {
		n.logger.Warn("discord notification failed", zap.Error(err))
	}
}
