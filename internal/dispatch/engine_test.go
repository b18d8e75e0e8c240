package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/types"

	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/config"
	"github.com/ahmadsysdev/wabot/internal/entitlement"
	"github.com/ahmadsysdev/wabot/internal/message"
	"github.com/ahmadsysdev/wabot/internal/reply"
	"github.com/ahmadsysdev/wabot/internal/store"
)

type sent struct {
	id     string
	chat   string
	text   string
	quoted string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	seq  int
	fail bool
}

func (f *fakeSender) record(chat, text, quoted string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("send failed")
	}
	f.seq++
	id := fmt.Sprintf("m%d", f.seq)
	f.sent = append(f.sent, sent{id: id, chat: chat, text: text, quoted: quoted})
	return id, nil
}

func (f *fakeSender) SendText(_ context.Context, chat types.JID, text string, _ ...types.JID) (string, error) {
	return f.record(chat.String(), text, "")
}

func (f *fakeSender) Reply(_ context.Context, to *message.Message, text string, _ ...types.JID) (string, error) {
	return f.record(to.Chat.String(), text, to.ID)
}

func (f *fakeSender) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeGroups struct {
	state GroupState
	err   error
	calls int
}

func (f *fakeGroups) GroupAdminState(context.Context, types.JID, types.JID) (GroupState, error) {
	f.calls++
	return f.state, f.err
}

type env struct {
	engine  *Engine
	session *Session
	sender  *fakeSender
	groups  *fakeGroups
	store   *store.Store
	cfg     *config.Config
	ent     *entitlement.Service
	clock   *time.Time
	replies reply.Table
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	session := NewSession()
	clock := &now
	session.now = func() time.Time { return *clock }

	cfg := config.Default()
	sender := &fakeSender{}
	groups := &fakeGroups{}
	ent := entitlement.New(st)
	engine := NewEngine(Deps{
		Config:       cfg,
		Session:      session,
		Store:        st,
		Entitlements: ent,
		Replies:      reply.NewManager(filepath.Join(t.TempDir(), "replies.json")),
		Send:         sender,
		Groups:       groups,
	})
	return &env{
		engine: engine, session: session, sender: sender, groups: groups,
		store: st, cfg: cfg, ent: ent, clock: clock, replies: reply.Defaults(),
	}
}

func (e *env) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func userJID(u string) types.JID  { return types.NewJID(u, types.DefaultUserServer) }
func groupJID(g string) types.JID { return types.NewJID(g, types.GroupServer) }

func privateMsg(id, sender, body string) *message.Message {
	return &message.Message{
		ID: id, Chat: userJID(sender), Sender: userJID(sender), Body: body,
	}
}

func groupMsg(id, sender, body string) *message.Message {
	return &message.Message{
		ID: id, Chat: groupJID("12345"), Sender: userJID(sender),
		IsGroup: true, Body: body,
	}
}

// replyTo builds a message quoting one of the bot's prompts.
func replyTo(base *message.Message, promptID, body string) *message.Message {
	m := *base
	m.Body = body
	m.Quoted = &message.Message{ID: promptID}
	return &m
}

func invoke(d *command.Descriptor, text string) Invocation {
	return Invocation{
		Command: d, Used: d.Name, Prefix: "#",
		Text: text, Args: strings.Fields(text),
	}
}

func counted(ran *int) command.Handler {
	return func(*command.Context) error {
		*ran++
		return nil
	}
}

func TestScopeRefusedBeforeAdmin(t *testing.T) {
	e := newEnv(t)
	ran := 0
	kick := &command.Descriptor{
		Name: "kick", Group: true, Admin: true, BotAdmin: true, Mention: true,
		Run: counted(&ran),
	}

	e.engine.Execute(context.Background(), privateMsg("i1", "111", "#kick"), invoke(kick, ""))

	if got := e.sender.last(t).text; got != e.replies.GroupOnly {
		t.Errorf("reply = %q, want group-only refusal", got)
	}
	if e.groups.calls != 0 {
		t.Error("group metadata fetched despite scope refusal")
	}
	if len(e.session.cookies) != 0 {
		t.Error("continuation stored for a terminal refusal")
	}
	if ran != 0 {
		t.Error("handler ran")
	}
}

func TestLockRefusedBeforeEverything(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{Name: "sticker", Group: true, Admin: true, Run: counted(&ran)}
	e.session.Lock("sticker")

	// would also fail the scope and admin guards; lock must win
	e.engine.Execute(context.Background(), privateMsg("i1", "111", "#sticker"), invoke(d, ""))

	want := strings.ReplaceAll(e.replies.Locked, "@cmd", "sticker")
	if got := e.sender.last(t).text; got != want {
		t.Errorf("reply = %q, want lock refusal", got)
	}
	if e.groups.calls != 0 || ran != 0 {
		t.Error("later guards or handler ran despite lock")
	}
}

func TestSelfBypassesTierChecks(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{Name: "join", Premium: true, Run: counted(&ran)}

	msg := privateMsg("i1", "111", "#join")
	msg.Self = true
	e.engine.Execute(context.Background(), msg, invoke(d, ""))

	if ran != 1 {
		t.Fatal("self-sent invocation was refused")
	}
	rec, ok := e.store.Check("dashboard", "join", "id")
	if !ok || rec.Num("success") != 1 {
		t.Errorf("success counter not recorded: %v", rec)
	}
}

func TestPremiumRefusal(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{Name: "join", Premium: true, Run: counted(&ran)}

	e.engine.Execute(context.Background(), privateMsg("i1", "111", "#join"), invoke(d, ""))
	if ran != 0 {
		t.Fatal("unentitled sender ran a premium command")
	}
	if got := e.sender.last(t).text; got != e.replies.PremiumOnly {
		t.Errorf("reply = %q", got)
	}

	// a grant flips the outcome
	e.ent.Grant(entitlement.TierPremium, "111@s.whatsapp.net", time.Hour)
	e.engine.Execute(context.Background(), privateMsg("i2", "111", "#join"), invoke(d, ""))
	if ran != 1 {
		t.Error("granted sender still refused")
	}
}

func TestQueryContinuation(t *testing.T) {
	e := newEnv(t)
	var gotText string
	d := &command.Descriptor{
		Name: "setwelcome", Query: true, Usage: "setwelcome <text>",
		Run: func(c *command.Context) error {
			gotText = c.Text
			return nil
		},
	}

	msg := groupMsg("i1", "111", "#setwelcome")
	e.engine.Execute(context.Background(), msg, invoke(d, ""))

	prompt := e.sender.last(t)
	if !strings.Contains(prompt.text, "#setwelcome <text>") {
		t.Errorf("prompt %q does not show usage", prompt.text)
	}
	if _, ok := e.session.GetContinuation(msg.Chat.String(), prompt.id); !ok {
		t.Fatal("no continuation stored under the prompt id")
	}

	if !e.engine.Resume(context.Background(), replyTo(msg, prompt.id, "Hi @user")) {
		t.Fatal("reply to the prompt was not treated as a continuation")
	}
	if gotText != "Hi @user" {
		t.Errorf("handler query = %q, want %q", gotText, "Hi @user")
	}
}

func TestRegexContinuationConsumedOnce(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{
		Name: "pin", Regex: regexp.MustCompile(`^[0-9]+$`), Run: counted(&ran),
	}

	msg := privateMsg("i1", "111", "#pin abc")
	e.engine.Execute(context.Background(), msg, invoke(d, "abc"))
	prompt := e.sender.last(t)
	if prompt.text != e.replies.BadFormat {
		t.Fatalf("expected format prompt, got %q", prompt.text)
	}

	if !e.engine.Resume(context.Background(), replyTo(msg, prompt.id, "1234")) {
		t.Fatal("qualifying reply not resumed")
	}
	if ran != 1 {
		t.Fatalf("handler ran %d times, want 1", ran)
	}

	// the entry was consumed; a second reply to the same prompt is inert
	if e.engine.Resume(context.Background(), replyTo(msg, prompt.id, "5678")) {
		t.Error("consumed continuation re-triggered the command")
	}
	if ran != 1 {
		t.Errorf("handler ran %d times after consumption", ran)
	}
}

func TestMediaContinuationGraceWindow(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{
		Name:  "sticker",
		Media: []message.MediaKind{message.MediaImage, message.MediaVideo, message.MediaSticker, message.MediaDocument},
		Run:   counted(&ran),
	}

	msg := privateMsg("i1", "111", "#sticker")
	e.engine.Execute(context.Background(), msg, invoke(d, ""))
	prompt := e.sender.last(t)
	if prompt.text != e.replies.NeedMedia {
		t.Fatalf("expected media prompt, got %q", prompt.text)
	}

	withImage := func(id, body string) *message.Message {
		m := replyTo(msg, prompt.id, body)
		m.ID = id
		m.Media = &message.Media{Kind: message.MediaImage}
		return m
	}

	e.advance(10 * time.Second)
	if !e.engine.Resume(context.Background(), withImage("i2", "")) {
		t.Fatal("qualifying reply at 10s not resumed")
	}
	if ran != 1 {
		t.Fatalf("handler ran %d times", ran)
	}

	// windowed continuations are not consumed: a second reply within the
	// window works too
	e.advance(10 * time.Second)
	if !e.engine.Resume(context.Background(), withImage("i3", "")) {
		t.Fatal("second qualifying reply at 20s not resumed")
	}
	if ran != 2 {
		t.Fatalf("handler ran %d times", ran)
	}

	e.advance(20 * time.Second)
	if e.engine.Resume(context.Background(), withImage("i4", "")) {
		t.Error("continuation still live after the grace window")
	}
	if ran != 2 {
		t.Errorf("handler ran %d times after expiry", ran)
	}
}

func TestHandlerFailureIsolated(t *testing.T) {
	e := newEnv(t)
	boom := &command.Descriptor{
		Name: "boom",
		Run:  func(*command.Context) error { return errors.New("no such user") },
	}

	e.engine.Execute(context.Background(), privateMsg("i1", "111", "#boom"), invoke(boom, ""))

	if e.sender.count() != 1 {
		t.Fatalf("expected exactly one error reply, got %d sends", e.sender.count())
	}
	if got := e.sender.last(t).text; !strings.Contains(got, "no such user") {
		t.Errorf("error reply %q does not carry the message", got)
	}
	rec, _ := e.store.Check("dashboard", "boom", "id")
	if rec.Num("failed") != 1 || rec.Num("success") != 0 {
		t.Errorf("telemetry = %v", rec)
	}

	// other dispatches are unaffected
	ran := 0
	ping := &command.Descriptor{Name: "ping", Run: counted(&ran)}
	e.engine.Execute(context.Background(), privateMsg("i2", "222", "#ping"), invoke(ping, ""))
	if ran != 1 {
		t.Error("later dispatch affected by earlier failure")
	}
}

func TestHandlerPanicIsolated(t *testing.T) {
	e := newEnv(t)
	d := &command.Descriptor{
		Name: "crash",
		Run:  func(*command.Context) error { panic("nil map write") },
	}

	e.engine.Execute(context.Background(), privateMsg("i1", "111", "#crash"), invoke(d, ""))

	if got := e.sender.last(t).text; !strings.Contains(got, "nil map write") {
		t.Errorf("panic not surfaced in reply: %q", got)
	}
	rec, _ := e.store.Check("dashboard", "crash", "id")
	if rec.Num("failed") != 1 {
		t.Errorf("telemetry = %v", rec)
	}
}

func TestCooldownEnforced(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{Name: "ping", Cooldown: 5 * time.Second, Run: counted(&ran)}
	msg := privateMsg("i1", "111", "#ping")

	e.engine.Execute(context.Background(), msg, invoke(d, ""))
	if ran != 1 {
		t.Fatal("first invocation refused")
	}

	e.advance(2 * time.Second)
	e.engine.Execute(context.Background(), privateMsg("i2", "111", "#ping"), invoke(d, ""))
	if ran != 1 {
		t.Fatal("cooldown not enforced")
	}
	if got := e.sender.last(t).text; !strings.Contains(got, "seconds") {
		t.Errorf("cooldown reply = %q", got)
	}

	e.advance(6 * time.Second)
	e.engine.Execute(context.Background(), privateMsg("i3", "111", "#ping"), invoke(d, ""))
	if ran != 2 {
		t.Error("invocation refused after cooldown elapsed")
	}

	// cooldowns are per sender
	e.engine.Execute(context.Background(), privateMsg("i4", "222", "#ping"), invoke(d, ""))
	if ran != 3 {
		t.Error("another sender hit the first sender's cooldown")
	}
}

func TestOptionContinuation(t *testing.T) {
	e := newEnv(t)
	var picked string
	d := &command.Descriptor{
		Name: "antilink", Options: []string{"on", "off"},
		Run: func(c *command.Context) error {
			picked = c.Args[0]
			return nil
		},
	}

	msg := groupMsg("i1", "111", "#antilink maybe")
	e.engine.Execute(context.Background(), msg, invoke(d, "maybe"))
	prompt := e.sender.last(t)
	if !strings.Contains(prompt.text, "on | off") {
		t.Errorf("prompt %q does not list options", prompt.text)
	}

	if !e.engine.Resume(context.Background(), replyTo(msg, prompt.id, "ON")) {
		t.Fatal("option reply not resumed")
	}
	if picked != "ON" {
		t.Errorf("handler arg = %q", picked)
	}
	// consumed
	if e.engine.Resume(context.Background(), replyTo(msg, prompt.id, "off")) {
		t.Error("option continuation survived consumption")
	}
}

func TestMentionContinuation(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{Name: "kick", Mention: true, Run: counted(&ran)}

	msg := groupMsg("i1", "111", "#kick")
	e.engine.Execute(context.Background(), msg, invoke(d, ""))
	prompt := e.sender.last(t)
	if prompt.text != e.replies.NeedMention {
		t.Fatalf("expected mention prompt, got %q", prompt.text)
	}

	follow := replyTo(msg, prompt.id, "")
	follow.Mentions = []types.JID{userJID("333")}
	if !e.engine.Resume(context.Background(), follow) {
		t.Fatal("mention reply not resumed")
	}
	if ran != 1 {
		t.Error("handler did not run")
	}
}

func TestMentionSatisfiedByNumber(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{Name: "kick", Mention: true, Run: counted(&ran)}

	e.engine.Execute(context.Background(), groupMsg("i1", "111", "#kick 628123456789"),
		invoke(d, "628123456789"))
	if ran != 1 {
		t.Error("numeric query did not satisfy the mention requirement")
	}
}

func TestUsageLimit(t *testing.T) {
	e := newEnv(t)
	e.cfg.UsageLimit = 2
	ran := 0
	d := &command.Descriptor{Name: "play", Limited: true, Run: counted(&ran)}

	for i := 0; i < 3; i++ {
		e.engine.Execute(context.Background(), privateMsg(fmt.Sprintf("i%d", i), "111", "#play"), invoke(d, ""))
	}
	if ran != 2 {
		t.Errorf("handler ran %d times, want 2", ran)
	}
	if got := e.sender.last(t).text; got != e.replies.LimitReached {
		t.Errorf("reply = %q", got)
	}

	// a new day resets the allowance
	e.advance(24 * time.Hour)
	e.engine.Execute(context.Background(), privateMsg("i9", "111", "#play"), invoke(d, ""))
	if ran != 3 {
		t.Error("limit did not reset on a new day")
	}

	// developers bypass
	e.cfg.Developers = []string{"999@s.whatsapp.net"}
	for i := 0; i < 5; i++ {
		e.engine.Execute(context.Background(), privateMsg(fmt.Sprintf("d%d", i), "999", "#play"), invoke(d, ""))
	}
	if ran != 8 {
		t.Errorf("developer hit the usage limit, ran=%d", ran)
	}
}

func TestUsageLimitPerCommand(t *testing.T) {
	e := newEnv(t)
	e.cfg.UsageLimit = 2
	stickers, plays := 0, 0
	stk := &command.Descriptor{Name: "sticker", Limited: true, Run: counted(&stickers)}
	play := &command.Descriptor{Name: "play", Limited: true, Run: counted(&plays)}

	for i := 0; i < 3; i++ {
		e.engine.Execute(context.Background(), privateMsg(fmt.Sprintf("s%d", i), "111", "#sticker"), invoke(stk, ""))
	}
	if stickers != 2 {
		t.Errorf("sticker ran %d times, want 2", stickers)
	}

	// an exhausted command must not spend another command's allowance
	before := e.sender.count()
	e.engine.Execute(context.Background(), privateMsg("p1", "111", "#play"), invoke(play, ""))
	if plays != 1 {
		t.Errorf("play ran %d times, want 1", plays)
	}
	if e.sender.count() != before {
		t.Error("play was refused by sticker's spent allowance")
	}

	// and the exhausted one stays refused
	e.engine.Execute(context.Background(), privateMsg("s9", "111", "#sticker"), invoke(stk, ""))
	if stickers != 2 {
		t.Errorf("sticker ran %d times after refusal, want 2", stickers)
	}
	if got := e.sender.last(t).text; got != e.replies.LimitReached {
		t.Errorf("reply = %q, want limit refusal", got)
	}
}

func TestAdminGuards(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{Name: "kick", Group: true, Admin: true, BotAdmin: true, Run: counted(&ran)}
	msg := groupMsg("i1", "111", "#kick")

	e.engine.Execute(context.Background(), msg, invoke(d, ""))
	if got := e.sender.last(t).text; got != e.replies.AdminOnly {
		t.Errorf("reply = %q, want admin refusal", got)
	}

	e.groups.state = GroupState{SenderAdmin: true}
	e.engine.Execute(context.Background(), msg, invoke(d, ""))
	if got := e.sender.last(t).text; got != e.replies.BotAdminNeeded {
		t.Errorf("reply = %q, want bot-admin refusal", got)
	}

	e.groups.state = GroupState{SenderAdmin: true, BotAdmin: true}
	e.engine.Execute(context.Background(), msg, invoke(d, ""))
	if ran != 1 {
		t.Error("handler did not run with both admin bits set")
	}
}

func TestBotAdminOnlyStillFetchesMetadata(t *testing.T) {
	e := newEnv(t)
	e.groups.state = GroupState{BotAdmin: true}
	ran := 0
	d := &command.Descriptor{Name: "hidetag", Group: true, BotAdmin: true, Run: counted(&ran)}

	e.engine.Execute(context.Background(), groupMsg("i1", "111", "#hidetag"), invoke(d, ""))
	if e.groups.calls != 1 {
		t.Errorf("metadata fetched %d times, want 1", e.groups.calls)
	}
	if ran != 1 {
		t.Error("handler did not run")
	}
}

func TestDevGuard(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{Name: "ban", Dev: true, Run: counted(&ran)}

	e.engine.Execute(context.Background(), privateMsg("i1", "111", "#ban"), invoke(d, ""))
	if ran != 0 {
		t.Fatal("non-developer ran a dev command")
	}

	e.cfg.Developers = []string{"111@s.whatsapp.net"}
	e.engine.Execute(context.Background(), privateMsg("i2", "111", "#ban"), invoke(d, ""))
	if ran != 1 {
		t.Error("developer refused")
	}
}

func TestQuotedGuardTerminal(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{Name: "del", Quoted: true, Run: counted(&ran)}

	msg := groupMsg("i1", "111", "#del")
	e.engine.Execute(context.Background(), msg, invoke(d, ""))
	if got := e.sender.last(t).text; got != e.replies.NeedQuoted {
		t.Errorf("reply = %q", got)
	}
	if len(e.session.cookies) != 0 {
		t.Error("quoted refusal stored a continuation")
	}
}

func TestWaitNotice(t *testing.T) {
	e := newEnv(t)
	ran := 0
	d := &command.Descriptor{Name: "toimg", Wait: true, Run: counted(&ran)}

	e.engine.Execute(context.Background(), privateMsg("i1", "111", "#toimg"), invoke(d, ""))
	if e.sender.count() != 1 || e.sender.sent[0].text != e.replies.Wait {
		t.Errorf("wait notice missing: %v", e.sender.sent)
	}
	if ran != 1 {
		t.Error("handler did not run after the notice")
	}
}

func TestResumeIgnoresUnrelatedReplies(t *testing.T) {
	e := newEnv(t)
	msg := replyTo(groupMsg("i1", "111", "hello"), "unknown-prompt", "hello")
	if e.engine.Resume(context.Background(), msg) {
		t.Error("reply to an unknown prompt treated as continuation")
	}
}
