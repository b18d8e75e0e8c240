package whatsapp

import (
	"context"
	"regexp"
	"strings"

	. "github.com/ahmadsysdev/wabot/internal/logging"
	"github.com/ahmadsysdev/wabot/internal/message"
	"github.com/ahmadsysdev/wabot/internal/store"
)

var inviteLinkPattern = regexp.MustCompile(`chat\.whatsapp\.com/([0-9A-Za-z]{16,24})`)

// FeatureEnabled reports whether a per-chat toggle (antilink, antiview,
// antidel, welcome) is on.
func (b *Bot) FeatureEnabled(feature, chat string) bool {
	_, ok := b.db.Check(feature, chat, "id")
	return ok
}

// SetFeature flips a per-chat toggle. Returns whether the state changed.
func (b *Bot) SetFeature(feature, chat string, on bool) (bool, error) {
	if on {
		if b.FeatureEnabled(feature, chat) {
			return false, nil
		}
		return true, b.db.Modified(feature, store.Record{"id": chat})
	}
	changed, err := b.db.Delete(feature, chat, "id")
	return changed, err
}

// passiveBehaviors run on every inbound message, command or not, and
// degrade to no-op on any error.
func (b *Bot) passiveBehaviors(ctx context.Context, msg *message.Message) {
	if msg.IsGroup {
		b.antilink(ctx, msg)
		b.antiview(ctx, msg)
	}
	if b.cfg.AutoJoin && !msg.Self {
		b.autojoin(ctx, msg)
	}
}

// antilink removes posters of foreign group invite links when the chat
// has the policy enabled, the poster isn't an admin, and the bot is.
func (b *Bot) antilink(ctx context.Context, msg *message.Message) {
	if msg.Self || !b.FeatureEnabled("antilink", msg.Chat.String()) {
		return
	}
	match := inviteLinkPattern.FindStringSubmatch(msg.Body)
	if match == nil {
		return
	}
	state, err := b.GroupAdminState(ctx, msg.Chat, msg.Sender)
	if err != nil {
		L_warn("whatsapp: antilink metadata fetch failed", "chat", msg.Chat.String(), "error", err)
		return
	}
	if state.SenderAdmin || !state.BotAdmin {
		return
	}
	// own group's link is fine
	if own, err := b.client.GetGroupInviteLink(ctx, msg.Chat, false); err == nil && strings.Contains(own, match[1]) {
		return
	}

	L_info("whatsapp: antilink triggered", "chat", msg.Chat.String(), "sender", msg.Sender.String())
	if err := b.RevokeMessage(ctx, msg.Chat, msg.Sender, msg.ID); err != nil {
		L_warn("whatsapp: antilink revoke failed", "error", err)
	}
	if err := b.RemoveParticipants(ctx, msg.Chat, msg.Sender.ToNonAD()); err != nil {
		L_warn("whatsapp: antilink kick failed", "error", err)
	}
}

// antiview rebroadcasts view-once media posted by non-admins so the
// group sees what was hidden.
func (b *Bot) antiview(ctx context.Context, msg *message.Message) {
	if msg.Self || msg.Media == nil || !msg.Media.ViewOnce {
		return
	}
	if !b.FeatureEnabled("antiview", msg.Chat.String()) {
		return
	}
	state, err := b.GroupAdminState(ctx, msg.Chat, msg.Sender)
	if err != nil || state.SenderAdmin {
		return
	}
	data, _, err := b.Download(ctx, msg)
	if err != nil {
		L_warn("whatsapp: antiview download failed", "chat", msg.Chat.String(), "error", err)
		return
	}
	caption := "View once from @" + msg.Sender.ToNonAD().User
	if _, err := b.SendMedia(ctx, msg.Chat, data, caption); err != nil {
		L_warn("whatsapp: antiview resend failed", "error", err)
	}
}

// autojoin accepts invite links seen anywhere when the global flag is on.
func (b *Bot) autojoin(ctx context.Context, msg *message.Message) {
	match := inviteLinkPattern.FindString(msg.Body)
	if match == "" {
		return
	}
	jid, err := b.client.JoinGroupWithLink(ctx, "https://"+match)
	if err != nil {
		L_warn("whatsapp: autojoin failed", "link", match, "error", err)
		return
	}
	L_info("whatsapp: joined group via invite link", "group", jid.String())
}
