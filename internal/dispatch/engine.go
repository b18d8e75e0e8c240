// Package dispatch is the heart of the bot: it validates every declared
// command requirement in a fixed order, stores pending continuations when
// a requirement can be satisfied by a follow-up reply, and isolates
// handler failures so one broken feature never stops message processing.
package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"

	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/config"
	"github.com/ahmadsysdev/wabot/internal/entitlement"
	. "github.com/ahmadsysdev/wabot/internal/logging"
	"github.com/ahmadsysdev/wabot/internal/message"
	"github.com/ahmadsysdev/wabot/internal/reply"
	"github.com/ahmadsysdev/wabot/internal/store"
)

// GroupState is the admin metadata the engine needs for a chat.
type GroupState struct {
	SenderAdmin bool
	BotAdmin    bool
}

// GroupInfoProvider fetches live group admin metadata. The WhatsApp layer
// implements it; tests use a fake.
type GroupInfoProvider interface {
	GroupAdminState(ctx context.Context, chat, sender types.JID) (GroupState, error)
}

// GuardOutcome is the result of one guard: Pass moves to the next guard,
// Terminal stops with a single refusal reply, Recoverable stops with a
// prompt plus a stored continuation so a follow-up reply resumes.
type GuardOutcome interface{ guardOutcome() }

type Pass struct{}

type Terminal struct{ Text string }

type Recoverable struct {
	Text         string
	Continuation *Continuation
}

func (Pass) guardOutcome()        {}
func (Terminal) guardOutcome()    {}
func (Recoverable) guardOutcome() {}

// Invocation is the parsed form of a command message.
type Invocation struct {
	Command *command.Descriptor
	// Used is the name or alias as typed.
	Used   string
	Prefix string
	// Text is everything after the command word.
	Text string
	Args []string
}

// Deps are the engine's collaborators.
type Deps struct {
	Config       *config.Config
	Session      *Session
	Store        *store.Store
	Entitlements *entitlement.Service
	Replies      *reply.Manager
	Send         command.Messenger
	Groups       GroupInfoProvider
}

// Engine validates and runs command invocations.
type Engine struct {
	cfg     *config.Config
	session *Session
	store   *store.Store
	ent     *entitlement.Service
	replies *reply.Manager
	send    command.Messenger
	groups  GroupInfoProvider
}

func NewEngine(deps Deps) *Engine {
	return &Engine{
		cfg:     deps.Config,
		session: deps.Session,
		store:   deps.Store,
		ent:     deps.Entitlements,
		replies: deps.Replies,
		send:    deps.Send,
		groups:  deps.Groups,
	}
}

// Session exposes the interaction state, for administrative commands that
// mutate the lock set.
func (e *Engine) Session() *Session { return e.session }

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 .-]{4,}$`)

func numericText(s string) bool {
	return phonePattern.MatchString(strings.TrimSpace(s))
}

// Execute runs the guard pipeline for one invocation and, when every
// guard passes, the handler. Guard order is a policy: each refusal text
// assumes only the earlier guards have passed, so reordering changes
// user-visible behavior.
func (e *Engine) Execute(ctx context.Context, msg *message.Message, inv Invocation) {
	d := inv.Command
	t := e.replies.Get()
	sender := msg.Sender.ToNonAD().String()
	privileged := msg.Self || e.cfg.IsDeveloper(sender) || e.cfg.IsOwner(sender)

	var cooldownPrev time.Time
	var cooldownHad bool

	guards := []func() GuardOutcome{
		// lock: disabled commands refuse before anything else
		func() GuardOutcome {
			if e.session.IsLocked(d.Name) {
				return Terminal{strings.ReplaceAll(t.Locked, "@cmd", d.Name)}
			}
			return Pass{}
		},
		// cooldown booking: stamp now, enforce later against the prior stamp
		func() GuardOutcome {
			if d.Cooldown > 0 {
				cooldownPrev, cooldownHad = e.session.BookCooldown(sender)
			}
			return Pass{}
		},
		// scope
		func() GuardOutcome {
			if d.Private && msg.IsGroup {
				return Terminal{t.PrivateOnly}
			}
			if d.Group && !msg.IsGroup {
				return Terminal{t.GroupOnly}
			}
			return Pass{}
		},
		// admin: metadata is fetched here, once, only when a group chat
		// declares either admin requirement
		func() GuardOutcome {
			if !msg.IsGroup || (!d.Admin && !d.BotAdmin) {
				return Pass{}
			}
			info, err := e.groups.GroupAdminState(ctx, msg.Chat, msg.Sender)
			if err != nil {
				L_warn("dispatch: group metadata fetch failed", "chat", msg.Chat.String(), "error", err)
				e.record(d.Name, false)
				return Terminal{strings.ReplaceAll(t.CommandError, "@err", err.Error())}
			}
			if d.Admin && !info.SenderAdmin && !msg.Self {
				return Terminal{t.AdminOnly}
			}
			if d.BotAdmin && !info.BotAdmin {
				return Terminal{t.BotAdminNeeded}
			}
			return Pass{}
		},
		// developer and owner tiers
		func() GuardOutcome {
			if d.Dev && !msg.Self && !e.cfg.IsDeveloper(sender) {
				return Terminal{t.DevOnly}
			}
			if d.Owner && !privileged {
				return Terminal{t.OwnerOnly}
			}
			return Pass{}
		},
		// paid tiers
		func() GuardOutcome {
			if d.Premium && !privileged && !e.ent.Has(entitlement.TierPremium, sender) {
				return Terminal{t.PremiumOnly}
			}
			if d.Professional && !privileged && !e.ent.Has(entitlement.TierProfessional, sender) {
				return Terminal{t.ProfessionalOnly}
			}
			return Pass{}
		},
		// daily usage limit
		func() GuardOutcome {
			if !d.Limited || privileged {
				return Pass{}
			}
			today := e.session.now().Format("2006-01-02")
			rec := store.Record{"id": sender, "date": today}
			if prev, ok := e.store.Check("limit", sender, "id"); ok && prev.Str("date") == today {
				for k, v := range prev {
					rec[k] = v
				}
			}
			// counters live per command in the sender's record
			count := int(rec.Num(d.Name))
			if count >= e.cfg.UsageLimit {
				return Terminal{t.LimitReached}
			}
			rec[d.Name] = float64(count + 1)
			if err := e.store.Upsert("limit", rec, sender, "id"); err != nil {
				L_warn("dispatch: failed to record usage", "user", sender, "error", err)
			}
			return Pass{}
		},
		// quoted message
		func() GuardOutcome {
			if d.Quoted && msg.Quoted == nil {
				return Terminal{t.NeedQuoted}
			}
			return Pass{}
		},
		// media, on the message itself or the quoted one
		func() GuardOutcome {
			if len(d.Media) == 0 {
				return Pass{}
			}
			if msg.MediaIn(d.Media) || (msg.Quoted != nil && msg.Quoted.MediaIn(d.Media)) {
				return Pass{}
			}
			return Recoverable{t.NeedMedia, &Continuation{
				Command: d, Prefix: inv.Prefix, Kind: ExpectMedia, Media: d.Media,
			}}
		},
		// query text
		func() GuardOutcome {
			if d.Query && strings.TrimSpace(inv.Text) == "" {
				prompt := strings.ReplaceAll(t.NeedQuery, "@usage", usageText(d, inv.Prefix))
				return Recoverable{prompt, &Continuation{
					Command: d, Prefix: inv.Prefix, Kind: ExpectAnyReply,
				}}
			}
			return Pass{}
		},
		// option set
		func() GuardOutcome {
			if len(d.Options) == 0 || optionMatch(d.Options, inv.Args) {
				return Pass{}
			}
			prompt := t.NeedOption + "\n" + strings.Join(d.Options, " | ")
			return Recoverable{prompt, &Continuation{
				Command: d, Prefix: inv.Prefix, Kind: ExpectOptions, Options: d.Options,
			}}
		},
		// regex
		func() GuardOutcome {
			if d.Regex == nil || d.Regex.MatchString(inv.Text) {
				return Pass{}
			}
			return Recoverable{t.BadFormat, &Continuation{
				Command: d, Prefix: inv.Prefix, Kind: ExpectRegex, Regex: d.Regex,
			}}
		},
		// mention
		func() GuardOutcome {
			if !d.Mention || !msg.IsGroup {
				return Pass{}
			}
			if len(msg.Targets()) > 0 || numericText(inv.Text) {
				return Pass{}
			}
			return Recoverable{t.NeedMention, &Continuation{
				Command: d, Prefix: inv.Prefix, Kind: ExpectMention,
			}}
		},
		// cooldown enforcement against the stamp before this booking
		func() GuardOutcome {
			if d.Cooldown > 0 && cooldownHad {
				remaining := d.Cooldown - e.session.now().Sub(cooldownPrev)
				if remaining > 0 {
					secs := int(remaining.Seconds()) + 1
					return Terminal{strings.ReplaceAll(t.Cooldown, "@sec", strconv.Itoa(secs))}
				}
			}
			return Pass{}
		},
	}

	for _, guard := range guards {
		switch out := guard().(type) {
		case Terminal:
			e.replyTo(ctx, msg, out.Text)
			return
		case Recoverable:
			promptID, err := e.send.Reply(ctx, msg, out.Text)
			if err != nil {
				L_warn("dispatch: failed to send prompt", "command", d.Name, "error", err)
				return
			}
			e.session.PutContinuation(msg.Chat.String(), promptID, out.Continuation)
			return
		}
	}

	if d.Wait {
		e.replyTo(ctx, msg, t.Wait)
	}

	cctx := &command.Context{
		Context: ctx,
		Message: msg,
		Args:    inv.Args,
		Text:    inv.Text,
		Used:    inv.Used,
		Prefix:  inv.Prefix,
		Replies: t,
		Send:    e.send,
	}
	if err := runSafely(d, cctx); err != nil {
		e.record(d.Name, false)
		L_error("command failed", "command", d.Name, "chat", msg.Chat.String(), "error", err)
		e.replyTo(ctx, msg, strings.ReplaceAll(t.CommandError, "@err", err.Error()))
		return
	}
	e.record(d.Name, true)
}

// Resume replays a reply to one of the bot's prompts through the pipeline
// using the stored continuation's command and prefix. Returns false when
// the message doesn't address a pending continuation; the router then
// treats it as a fresh invocation.
func (e *Engine) Resume(ctx context.Context, msg *message.Message) bool {
	if msg.Quoted == nil || msg.Quoted.ID == "" {
		return false
	}
	chat := msg.Chat.String()
	cont, ok := e.session.GetContinuation(chat, msg.Quoted.ID)
	if !ok {
		return false
	}
	// windowed kinds lapse on the clock instead; the rest are consumed on
	// the first qualifying reply
	if !cont.windowed() && qualifies(cont, msg) {
		e.session.ConsumeContinuation(chat, msg.Quoted.ID)
	}
	text := strings.TrimSpace(msg.Body)
	e.Execute(ctx, msg, Invocation{
		Command: cont.Command,
		Used:    cont.Command.Name,
		Prefix:  cont.Prefix,
		Text:    text,
		Args:    strings.Fields(text),
	})
	return true
}

func qualifies(c *Continuation, msg *message.Message) bool {
	switch c.Kind {
	case ExpectRegex:
		return c.Regex != nil && c.Regex.MatchString(strings.TrimSpace(msg.Body))
	case ExpectOptions:
		return optionMatch(c.Options, strings.Fields(msg.Body))
	case ExpectMention:
		return len(msg.Targets()) > 0 || numericText(msg.Body)
	}
	return true
}

func optionMatch(options, args []string) bool {
	if len(args) == 0 {
		return false
	}
	for _, o := range options {
		if strings.EqualFold(o, args[0]) {
			return true
		}
	}
	return false
}

func usageText(d *command.Descriptor, prefix string) string {
	u := d.Usage
	if u == "" {
		u = d.Name
	}
	s := prefix + u
	if d.Example != "" {
		s += "\nExample: " + prefix + d.Example
	}
	return s
}

func runSafely(d *command.Descriptor, c *command.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", d.Name, r)
		}
	}()
	return d.Run(c)
}

func (e *Engine) replyTo(ctx context.Context, msg *message.Message, text string) {
	if _, err := e.send.Reply(ctx, msg, text); err != nil {
		L_warn("dispatch: failed to send reply", "chat", msg.Chat.String(), "error", err)
	}
}

// record bumps the per-command success/failed counters in the dashboard
// collection.
func (e *Engine) record(name string, success bool) {
	successCount, failedCount := 0, 0
	if rec, ok := e.store.Check("dashboard", name, "id"); ok {
		successCount = int(rec.Num("success"))
		failedCount = int(rec.Num("failed"))
	}
	if success {
		successCount++
	} else {
		failedCount++
	}
	rec := store.Record{
		"id":         name,
		"success":    float64(successCount),
		"failed":     float64(failedCount),
		"lastupdate": float64(e.session.now().UnixMilli()),
	}
	if err := e.store.Upsert("dashboard", rec, name, "id"); err != nil {
		L_warn("dispatch: failed to record telemetry", "command", name, "error", err)
	}
}
