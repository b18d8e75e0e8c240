package dispatch

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/message"
)

// continuationGrace is how long a media or any-reply continuation keeps
// accepting corrective replies before it lapses.
const continuationGrace = 30 * time.Second

// ContinuationKind says what kind of follow-up a pending continuation is
// waiting for.
type ContinuationKind int

const (
	// ExpectAnyReply accepts any text reply. Lapses after the grace
	// window; not consumed by use within it.
	ExpectAnyReply ContinuationKind = iota
	// ExpectMedia accepts a reply carrying one of the listed media kinds.
	// Same grace-window behavior as ExpectAnyReply.
	ExpectMedia
	// ExpectRegex accepts a reply whose text matches the pattern.
	// Consumed on first match.
	ExpectRegex
	// ExpectOptions accepts a reply whose first word is one of the
	// options. Consumed on first match.
	ExpectOptions
	// ExpectMention accepts a reply that tags someone, quotes them, or
	// carries a phone number. Consumed on first match.
	ExpectMention
)

// Continuation is a stored expectation that a follow-up reply to one of
// the bot's prompts completes an earlier under-specified invocation.
type Continuation struct {
	Command *command.Descriptor
	Prefix  string
	Kind    ContinuationKind
	Media   []message.MediaKind
	Regex   *regexp.Regexp
	Options []string
	created time.Time
}

// windowed reports whether this kind lapses on a timer instead of being
// consumed when matched.
func (c *Continuation) windowed() bool {
	return c.Kind == ExpectAnyReply || c.Kind == ExpectMedia
}

type cookieKey struct {
	chat   string
	prompt string
}

// Session owns the mutable per-process interaction state: cooldown stamps
// per sender, pending continuations keyed by (chat, prompt message id),
// and the set of disabled commands. Expiry is checked lazily against the
// session clock on lookup; nothing runs on timers.
type Session struct {
	mu        sync.Mutex
	cooldowns map[string]time.Time
	cookies   map[cookieKey]*Continuation
	locks     map[string]struct{}
	now       func() time.Time
}

func NewSession() *Session {
	return &Session{
		cooldowns: make(map[string]time.Time),
		cookies:   make(map[cookieKey]*Continuation),
		locks:     make(map[string]struct{}),
		now:       time.Now,
	}
}

// BookCooldown stamps the sender's invocation time and returns the
// previous stamp, if any. The engine enforces the window against the
// previous stamp so the booking itself never rejects.
func (s *Session) BookCooldown(sender string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.cooldowns[sender]
	s.cooldowns[sender] = s.now()
	return prev, had
}

// PutContinuation stores a continuation for the given prompt, stamping its
// creation time. Any prior entry under the same key is replaced.
func (s *Session) PutContinuation(chat, promptID string, c *Continuation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.created = s.now()
	s.cookies[cookieKey{chat, promptID}] = c
}

// GetContinuation looks up the continuation for a prompt. Windowed kinds
// past their grace period are dropped here and reported as absent.
func (s *Session) GetContinuation(chat, promptID string) (*Continuation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cookieKey{chat, promptID}
	c, ok := s.cookies[key]
	if !ok {
		return nil, false
	}
	if c.windowed() && s.now().Sub(c.created) > continuationGrace {
		delete(s.cookies, key)
		return nil, false
	}
	return c, true
}

// ConsumeContinuation removes the continuation for a prompt.
func (s *Session) ConsumeContinuation(chat, promptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cookies, cookieKey{chat, promptID})
}

// Lock disables a command globally until Unlock.
func (s *Session) Lock(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[strings.ToLower(name)] = struct{}{}
}

// Unlock re-enables a command. Returns false when it wasn't locked.
func (s *Session) Unlock(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.ToLower(name)
	_, ok := s.locks[name]
	delete(s.locks, name)
	return ok
}

func (s *Session) IsLocked(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[strings.ToLower(name)]
	return ok
}

// Locked lists the currently disabled commands.
func (s *Session) Locked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.locks))
	for name := range s.locks {
		out = append(out, name)
	}
	return out
}
