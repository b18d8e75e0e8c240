// Package command defines the command descriptor, the registry feature
// modules register into, and the context handlers receive.
package command

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types"

	"github.com/ahmadsysdev/wabot/internal/message"
	"github.com/ahmadsysdev/wabot/internal/reply"
)

// Messenger is the minimal send surface handlers and the dispatch engine
// use. The WhatsApp bot implements it; tests use a fake.
type Messenger interface {
	// SendText sends a plain text message to a chat and returns the sent
	// message's ID.
	SendText(ctx context.Context, chat types.JID, text string, mentions ...types.JID) (string, error)
	// Reply sends text quoting the given message and returns the sent
	// message's ID.
	Reply(ctx context.Context, to *message.Message, text string, mentions ...types.JID) (string, error)
}

// Context carries everything a handler needs for one invocation.
type Context struct {
	Context context.Context
	Message *message.Message
	// Args are the whitespace-split tokens after the command word.
	Args []string
	// Text is the raw argument string, untrimmed of inner whitespace.
	Text string
	// Used is the name or alias the sender typed, without prefix.
	Used    string
	Prefix  string
	Replies reply.Table
	Send    Messenger
}

// ReplyText answers the triggering message.
func (c *Context) ReplyText(text string, mentions ...types.JID) error {
	_, err := c.Send.Reply(c.Context, c.Message, text, mentions...)
	return err
}

// Handler runs a command. A returned error becomes a generic error reply
// and a failed-counter bump; it never crashes the bot.
type Handler func(c *Context) error

// Descriptor declares a command: identity, help metadata, and the
// requirements the dispatch engine enforces before the handler runs.
type Descriptor struct {
	Name     string
	Aliases  []string
	Category string
	Desc     string
	Usage    string
	Example  string

	// scope and privilege requirements
	Group        bool
	Private      bool
	Admin        bool
	BotAdmin     bool
	Dev          bool
	Owner        bool
	Premium      bool
	Professional bool

	// Limited commands count against the per-user daily usage limit.
	Limited bool

	// input requirements
	Quoted  bool
	Query   bool
	Media   []message.MediaKind
	Options []string
	Regex   *regexp.Regexp
	Mention bool

	// Cooldown of zero means the command has no cooldown; the registry
	// does not apply a default here, the engine's caller decides.
	Cooldown time.Duration

	// Wait sends an acknowledgement before the handler runs.
	Wait bool

	Run Handler
}

// Registry maps names and aliases to descriptors. Names and aliases share
// one case-insensitive namespace; collisions are rejected at Register so
// lookup never has to break ties.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Descriptor
	order  []*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a descriptor. It fails on an empty name, a nil handler,
// or any name/alias already taken.
func (r *Registry) Register(d *Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("command has no name")
	}
	if d.Run == nil {
		return fmt.Errorf("command %s has no handler", d.Name)
	}

	keys := make([]string, 0, len(d.Aliases)+1)
	keys = append(keys, strings.ToLower(d.Name))
	for _, a := range d.Aliases {
		keys = append(keys, strings.ToLower(a))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, k := range keys {
		if taken, ok := r.byName[k]; ok {
			return fmt.Errorf("command %s: name %q already registered by %s", d.Name, k, taken.Name)
		}
		// a command clashing with itself (alias repeating the name)
		for _, prev := range keys[:i] {
			if prev == k {
				return fmt.Errorf("command %s: duplicate alias %q", d.Name, k)
			}
		}
	}
	for _, k := range keys {
		r.byName[k] = d
	}
	r.order = append(r.order, d)
	return nil
}

// MustRegister panics on a registration error. Feature modules use it at
// startup where a collision is a programming mistake.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Resolve finds a descriptor by name or alias, case-insensitively.
func (r *Registry) Resolve(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[strings.ToLower(name)]
	return d, ok
}

// List returns descriptors in registration order.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, len(r.order))
	copy(out, r.order)
	return out
}

// Categories groups descriptors by category, preserving registration
// order within each group.
func (r *Registry) Categories() map[string][]*Descriptor {
	out := make(map[string][]*Descriptor)
	for _, d := range r.List() {
		out[d.Category] = append(out[d.Category], d)
	}
	return out
}
