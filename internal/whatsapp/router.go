package whatsapp

import (
	"context"
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/ahmadsysdev/wabot/internal/dispatch"
	. "github.com/ahmadsysdev/wabot/internal/logging"
	"github.com/ahmadsysdev/wabot/internal/message"
	"github.com/ahmadsysdev/wabot/internal/store"
)

// prefixPattern is the punctuation accepted as a command prefix.
var prefixPattern = regexp.MustCompile(`^[!#%&?/;:,.~\-+=]`)

// handleMessage is the inbound router. Each step may return early; the
// order matters: persistence first so deletion and quote lookups can
// resolve history, passive group behaviors before command resolution,
// continuations before fresh invocations.
func (b *Bot) handleMessage(evt *events.Message) {
	ctx := b.ctx

	b.persistMessage(evt)

	if pm := evt.Message.GetProtocolMessage(); pm != nil {
		if pm.GetType() == waE2E.ProtocolMessage_REVOKE && !evt.Info.IsFromMe {
			b.handleDeletion(ctx, evt, pm.GetKey())
		}
		return
	}

	msg := normalize(evt)
	if msg == nil {
		return
	}
	if msg.Chat == types.StatusBroadcastJID {
		return
	}
	// redelivered key-distribution wrappers show up as duplicates of an
	// already persisted id
	if evt.Message.GetSenderKeyDistributionMessage() != nil && b.db.Duplicate("db", msg.ID, "id") {
		return
	}

	if !msg.IsGroup && !msg.Self {
		b.recordContact(msg)
	}

	prefix, body := derivePrefix(msg.Body, b.cfg.DefaultPrefix)

	b.passiveBehaviors(ctx, msg)

	if b.engine.Resume(ctx, msg) {
		return
	}

	sender := msg.Sender.ToNonAD().String()
	if !b.cfg.IsDeveloper(sender) && !msg.Self {
		if _, banned := b.db.Check("banned", sender, "id"); banned {
			return
		}
		if _, banned := b.db.Check("banned", msg.Chat.String(), "id"); banned {
			return
		}
	}

	if body == "" {
		return
	}
	name, text, args := splitInvocation(body)
	if name == "" {
		return
	}
	d, ok := b.registry.Resolve(name)
	if !ok {
		// ordinary chat starting with punctuation; silence is deliberate
		return
	}
	b.engine.Execute(ctx, msg, dispatch.Invocation{
		Command: d, Used: name, Prefix: prefix, Text: text, Args: args,
	})
}

// derivePrefix returns the active prefix and the body with it stripped.
// A body not starting with a recognized prefix character is not a
// command; the stripped body comes back empty.
func derivePrefix(body, fallback string) (string, string) {
	if m := prefixPattern.FindString(body); m != "" {
		return m, body[len(m):]
	}
	return fallback, ""
}

// splitInvocation splits "kick @user now" into the command word, the raw
// argument text, and its tokens.
func splitInvocation(body string) (name, text string, args []string) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", "", nil
	}
	name = fields[0]
	args = fields[1:]
	if idx := strings.Index(body, name); idx >= 0 {
		text = strings.TrimSpace(body[idx+len(name):])
	}
	return name, text, args
}

// persistMessage write-throughs every content-bearing message so the
// delete and quote features can resolve history later.
func (b *Bot) persistMessage(evt *events.Message) {
	if evt.Info.ID == "" || evt.Message == nil {
		return
	}
	raw := unwrapEnvelope(evt.Message)
	body := bodyOf(raw)
	media := mediaOf(raw)
	if body == "" && media == nil {
		return
	}
	kind := "text"
	if media != nil {
		kind = media.Kind.String()
	}
	rec := store.Record{
		"id":        evt.Info.ID,
		"chat":      evt.Info.Chat.String(),
		"sender":    evt.Info.Sender.ToNonAD().String(),
		"name":      evt.Info.PushName,
		"body":      body,
		"type":      kind,
		"fromMe":    evt.Info.IsFromMe,
		"timestamp": float64(evt.Info.Timestamp.UnixMilli()),
	}
	if err := b.db.Modified("db", rec); err != nil {
		L_warn("whatsapp: failed to persist message", "id", evt.Info.ID, "error", err)
	}
}

// handleDeletion replays a deleted message when antidelete is on for the
// chat.
func (b *Bot) handleDeletion(ctx context.Context, evt *events.Message, key *waCommon.MessageKey) {
	if key == nil {
		return
	}
	chat, err := types.ParseJID(key.GetRemoteJID())
	if err != nil {
		return
	}
	if !b.FeatureEnabled("antidel", chat.String()) {
		return
	}
	rec, ok := b.db.Check("db", key.GetID(), "id")
	if !ok || rec.Str("body") == "" {
		return
	}
	deleter := evt.Info.Sender
	t := b.replies.Get()
	notice := strings.ReplaceAll(t.Deleted, "@user", "@"+deleter.ToNonAD().User)
	text := notice + "\n" + rec.Str("body")
	if _, err := b.SendText(ctx, chat, text, deleter); err != nil {
		L_warn("whatsapp: failed to replay deleted message", "chat", chat.String(), "error", err)
	}
}

// recordContact notes first-contact metadata for private chats.
func (b *Bot) recordContact(msg *message.Message) {
	id := msg.Sender.ToNonAD().String()
	if _, ok := b.db.Check("contacts", id, "id"); ok {
		return
	}
	rec := store.Record{"id": id, "name": msg.PushName, "hasChat": true}
	if err := b.db.Modified("contacts", rec); err != nil {
		L_warn("whatsapp: failed to record contact", "id", id, "error", err)
	}
}
