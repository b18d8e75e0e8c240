// Package features holds the built-in command set. Each file registers
// one category of commands as closures over the WhatsApp bot.
package features

import (
	"strconv"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"

	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/whatsapp"
)

// RegisterAll wires every built-in command into the registry. It panics
// on a name collision, which is always a programming mistake.
func RegisterAll(reg *command.Registry, bot *whatsapp.Bot) {
	registerPublic(reg, bot)
	registerGroup(reg, bot)
	registerConverter(reg, bot)
	registerPremium(reg, bot)
	registerDev(reg, bot)
}

// defaultCooldown returns the configured per-sender cooldown for
// commands that do real work.
func defaultCooldown(bot *whatsapp.Bot) time.Duration {
	secs := bot.Config().CooldownSeconds
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

var digitsOnly = strings.NewReplacer(" ", "", "-", "", ".", "", "+", "")

// targetJID resolves the user a command acts on: a mention or quoted
// sender first, then a phone number argument.
func targetJID(c *command.Context) (types.JID, bool) {
	if targets := c.Message.Targets(); len(targets) > 0 {
		return targets[0], true
	}
	if len(c.Args) == 0 {
		return types.EmptyJID, false
	}
	num := digitsOnly.Replace(c.Args[0])
	if num == "" {
		return types.EmptyJID, false
	}
	if _, err := strconv.ParseUint(num, 10, 64); err != nil {
		return types.EmptyJID, false
	}
	return types.NewJID(num, types.DefaultUserServer), true
}

// resolveTargets returns every user a group action applies to:
// mentions, the quoted sender, or a phone number argument.
func resolveTargets(c *command.Context) []types.JID {
	if targets := c.Message.Targets(); len(targets) > 0 {
		return targets
	}
	if user, ok := targetJID(c); ok {
		return []types.JID{user}
	}
	return nil
}
