package notify

import (
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

type fakeSender struct {
	channelIDs []string
	messages   []string
	err        error
}

func (f *fakeSender) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelIDs = append(f.channelIDs, channelID)
	f.messages = append(f.messages, content)
	return &discordgo.Message{Content: content}, f.err
}

func TestNotifyTransitionUnhealthy(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewDiscordNotifierWithSession(sender, "chan-1", zap.NewNop())

	issues := []shared.Issue{
		{Kind: shared.IssueNoAuth, Message: "You are not signed in", Severity: shared.IssueSeverityCritical},
		{Kind: shared.IssueMissingPerms, Message: "Optional permission not granted", Severity: shared.IssueSeverityWarning},
	}
	notifier.NotifyTransition(false, issues)

	if len(sender.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.messages))
	}
	if sender.channelIDs[0] != "chan-1" {
		t.Fatalf("unexpected channel %q", sender.channelIDs[0])
	}
	msg := sender.messages[0]
	if !strings.Contains(msg, "2 issues") {
		t.Fatalf("message must carry the issue count: %q", msg)
	}
	if !strings.Contains(msg, "You are not signed in") {
		t.Fatalf("critical issues must be listed: %q", msg)
	}
	if strings.Contains(msg, "Optional permission") {
		t.Fatalf("warnings must not be listed: %q", msg)
	}
}

func TestNotifyTransitionHealthy(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewDiscordNotifierWithSession(sender, "chan-1", zap.NewNop())

	notifier.NotifyTransition(true, nil)

	if len(sender.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.messages))
	}
	if !strings.Contains(sender.messages[0], "healthy again") {
		t.Fatalf("unexpected message %q", sender.messages[0])
	}
}

func TestNotifyTransitionSendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("rate limited")}
	notifier := NewDiscordNotifierWithSession(sender, "chan-1", zap.NewNop())

	// Must not panic or propagate the error.
	notifier.NotifyTransition(false, nil)
}

func TestNotifyTransitionNilNotifier(t *testing.T) {
	var notifier *DiscordNotifier
	notifier.NotifyTransition(true, nil)
}
