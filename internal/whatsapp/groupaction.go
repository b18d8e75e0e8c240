package whatsapp

import (
	"context"
	"strings"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	. "github.com/ahmadsysdev/wabot/internal/logging"
)

// handleGroupInfo reacts to join/leave notifications with the per-group
// greeting templates, when the welcome toggle is on.
func (b *Bot) handleGroupInfo(evt *events.GroupInfo) {
	if len(evt.Join) == 0 && len(evt.Leave) == 0 {
		return
	}
	chat := evt.JID.String()
	if !b.FeatureEnabled("welcome", chat) {
		return
	}

	ctx := b.ctx
	t := b.replies.Get()
	welcome, leave := t.Welcome, t.Leave
	if rec, ok := b.db.Check("greeting", chat, "id"); ok {
		if s := rec.Str("welcome"); s != "" {
			welcome = s
		}
		if s := rec.Str("leave"); s != "" {
			leave = s
		}
	}

	subject, desc := "", ""
	if info, err := b.GroupInfo(ctx, evt.JID); err == nil {
		subject = info.Name
		desc = info.Topic
	} else {
		L_warn("whatsapp: greeting metadata fetch failed", "chat", chat, "error", err)
	}

	for _, user := range evt.Join {
		b.sendGreeting(ctx, evt.JID, user, welcome, subject, desc)
	}
	for _, user := range evt.Leave {
		b.sendGreeting(ctx, evt.JID, user, leave, subject, desc)
	}
}

// renderGreeting substitutes @user, @subj and @desc in a greeting
// template.
func renderGreeting(template string, user types.JID, subject, desc string) string {
	s := strings.ReplaceAll(template, "@user", "@"+user.ToNonAD().User)
	s = strings.ReplaceAll(s, "@subj", subject)
	s = strings.ReplaceAll(s, "@desc", desc)
	return s
}

func (b *Bot) sendGreeting(ctx context.Context, chat, user types.JID, template, subject, desc string) {
	text := renderGreeting(template, user, subject, desc)
	if _, err := b.SendText(ctx, chat, text, user); err != nil {
		L_warn("whatsapp: failed to send greeting", "chat", chat.String(), "error", err)
	}
}
