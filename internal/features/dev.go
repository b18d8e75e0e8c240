package features

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/entitlement"
	"github.com/ahmadsysdev/wabot/internal/store"
	"github.com/ahmadsysdev/wabot/internal/whatsapp"
)

func registerDev(reg *command.Registry, bot *whatsapp.Bot) {
	grant := func(tier entitlement.Tier) command.Handler {
		return func(c *command.Context) error {
			target, ok := targetJID(c)
			if !ok {
				return c.ReplyText("Mention, quote, or give the number of the user to grant.")
			}
			days := grantDays(c.Args)
			until, err := bot.Entitlements().Grant(tier, target.ToNonAD().String(), time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			return c.ReplyText(fmt.Sprintf("%s granted to @%s until %s.",
				tier, target.User, until.Format("2 Jan 2006")), target)
		}
	}
	revoke := func(tier entitlement.Tier) command.Handler {
		return func(c *command.Context) error {
			target, ok := targetJID(c)
			if !ok {
				return c.ReplyText("Mention, quote, or give the number of the user to revoke.")
			}
			if !bot.Entitlements().Revoke(tier, target.ToNonAD().String()) {
				return c.ReplyText(fmt.Sprintf("@%s has no %s grant.", target.User, tier), target)
			}
			return c.ReplyText(fmt.Sprintf("%s revoked from @%s.", tier, target.User), target)
		}
	}

	reg.MustRegister(&command.Descriptor{
		Name:     "grantpremium",
		Aliases:  []string{"addprem"},
		Category: "owner",
		Desc:     "Grant premium to a user",
		Usage:    "grantpremium @user [days]",
		Example:  "grantpremium @user 30",
		Dev:      true,
		Run:      grant(entitlement.TierPremium),
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "grantpro",
		Aliases:  []string{"addpro"},
		Category: "owner",
		Desc:     "Grant professional to a user",
		Usage:    "grantpro @user [days]",
		Dev:      true,
		Run:      grant(entitlement.TierProfessional),
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "delpremium",
		Aliases:  []string{"delprem"},
		Category: "owner",
		Desc:     "Revoke a user's premium grant",
		Usage:    "delpremium @user",
		Dev:      true,
		Run:      revoke(entitlement.TierPremium),
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "delpro",
		Category: "owner",
		Desc:     "Revoke a user's professional grant",
		Usage:    "delpro @user",
		Dev:      true,
		Run:      revoke(entitlement.TierProfessional),
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "ban",
		Category: "owner",
		Desc:     "Silently ignore a user's messages",
		Usage:    "ban @user",
		Dev:      true,
		Run: func(c *command.Context) error {
			target, ok := targetJID(c)
			if !ok {
				return c.ReplyText("Mention, quote, or give the number of the user to ban.")
			}
			id := target.ToNonAD().String()
			if err := bot.Store().Upsert("banned", store.Record{"id": id}, id, "id"); err != nil {
				return err
			}
			return c.ReplyText(fmt.Sprintf("@%s banned.", target.User), target)
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "unban",
		Category: "owner",
		Desc:     "Lift a user's ban",
		Usage:    "unban @user",
		Dev:      true,
		Run: func(c *command.Context) error {
			target, ok := targetJID(c)
			if !ok {
				return c.ReplyText("Mention, quote, or give the number of the user to unban.")
			}
			removed, err := bot.Store().Delete("banned", target.ToNonAD().String(), "id")
			if err != nil {
				return err
			}
			if !removed {
				return c.ReplyText(fmt.Sprintf("@%s is not banned.", target.User), target)
			}
			return c.ReplyText(fmt.Sprintf("@%s unbanned.", target.User), target)
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "lock",
		Category: "owner",
		Desc:     "Disable a command for everyone but developers",
		Usage:    "lock <command>",
		Dev:      true,
		Query:    true,
		Run: func(c *command.Context) error {
			name := strings.ToLower(c.Args[0])
			d, ok := reg.Resolve(name)
			if !ok {
				return c.ReplyText(fmt.Sprintf("Unknown command: %s", name))
			}
			if d.Name == "lock" || d.Name == "unlock" {
				return c.ReplyText("The lock commands cannot be locked.")
			}
			bot.Session().Lock(d.Name)
			return c.ReplyText(fmt.Sprintf("%s locked.", d.Name))
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "unlock",
		Category: "owner",
		Desc:     "Re-enable a locked command",
		Usage:    "unlock <command>",
		Dev:      true,
		Query:    true,
		Run: func(c *command.Context) error {
			name := strings.ToLower(c.Args[0])
			if d, ok := reg.Resolve(name); ok {
				name = d.Name
			}
			if !bot.Session().Unlock(name) {
				return c.ReplyText(fmt.Sprintf("%s is not locked.", name))
			}
			return c.ReplyText(fmt.Sprintf("%s unlocked.", name))
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:         "rent",
		Category:     "professional",
		Desc:         "Pair a rented bot session with your own account",
		Private:      true,
		Professional: true,
		Wait:         true,
		Cooldown:     time.Minute,
		Run: func(c *command.Context) error {
			return bot.RentSession(c.Context, c.Message.Sender)
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "stats",
		Aliases:  []string{"dashboard"},
		Category: "owner",
		Desc:     "Show per-command usage counters",
		Dev:      true,
		Run: func(c *command.Context) error {
			rows, err := bot.Store().Read("dashboard")
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return c.ReplyText("No command usage recorded yet.")
			}
			sort.Slice(rows, func(i, j int) bool {
				return rows[i].Num("success") > rows[j].Num("success")
			})

			var b strings.Builder
			b.WriteString("*Command usage*\n")
			for _, rec := range rows {
				fmt.Fprintf(&b, "%s: %d ok, %d failed\n",
					rec.Str("id"), int(rec.Num("success")), int(rec.Num("failed")))
			}
			if locked := bot.Session().Locked(); len(locked) > 0 {
				fmt.Fprintf(&b, "\nLocked: %s", strings.Join(locked, ", "))
			}
			return c.ReplyText(strings.TrimSpace(b.String()))
		},
	})
}

// grantDays reads a trailing day count from the arguments, defaulting
// to 30.
func grantDays(args []string) int {
	if len(args) == 0 {
		return 30
	}
	if n, err := strconv.Atoi(args[len(args)-1]); err == nil && n > 0 {
		return n
	}
	return 30
}
