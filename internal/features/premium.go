package features

import (
	"fmt"
	"regexp"
	"time"

	"go.mau.fi/whatsmeow/types"
	"golang.org/x/time/rate"

	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/whatsapp"
)

var inviteArgPattern = regexp.MustCompile(`chat\.whatsapp\.com/([0-9A-Za-z]{16,24})`)

// broadcastPace spaces fan-out sends so WhatsApp does not flag the
// account for spam.
var broadcastPace = rate.Every(3 * time.Second)

func registerPremium(reg *command.Registry, bot *whatsapp.Bot) {
	reg.MustRegister(&command.Descriptor{
		Name:     "join",
		Category: "premium",
		Desc:     "Join a group from its invite link",
		Usage:    "join <link>",
		Example:  "join https://chat.whatsapp.com/AbCdEfGhIjKlMnOpQrSt",
		Premium:  true,
		Query:    true,
		Regex:    inviteArgPattern,
		Wait:     true,
		Run: func(c *command.Context) error {
			link := inviteArgPattern.FindString(c.Text)
			chat, err := bot.JoinGroup(c.Context, "https://"+link)
			if err != nil {
				return err
			}
			return c.ReplyText(fmt.Sprintf("Joined %s.", chat.String()))
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "broadcast",
		Aliases:  []string{"bc"},
		Category: "premium",
		Desc:     "Send a message to every group and known contact",
		Usage:    "broadcast <text>",
		Premium:  true,
		Query:    true,
		Wait:     true,
		Cooldown: time.Minute,
		Run: func(c *command.Context) error {
			targets, err := broadcastTargets(c, bot)
			if err != nil {
				return err
			}

			limiter := rate.NewLimiter(broadcastPace, 1)
			sent := 0
			for _, chat := range targets {
				if err := limiter.Wait(c.Context); err != nil {
					break
				}
				if _, err := c.Send.SendText(c.Context, chat, c.Text); err != nil {
					continue
				}
				sent++
			}
			return c.ReplyText(fmt.Sprintf("Broadcast delivered to %d of %d chats.", sent, len(targets)))
		},
	})
}

// broadcastTargets collects every joined group and recorded contact,
// excluding the chat the broadcast was requested from.
func broadcastTargets(c *command.Context, bot *whatsapp.Bot) ([]types.JID, error) {
	groups, err := bot.JoinedGroups(c.Context)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{c.Message.Chat.String(): true}
	var targets []types.JID
	for _, g := range groups {
		if seen[g.JID.String()] {
			continue
		}
		seen[g.JID.String()] = true
		targets = append(targets, g.JID)
	}

	contacts, err := bot.Store().Read("contacts")
	if err != nil {
		return nil, err
	}
	for _, rec := range contacts {
		jid, err := types.ParseJID(rec.Str("id"))
		if err != nil || seen[jid.String()] {
			continue
		}
		seen[jid.String()] = true
		targets = append(targets, jid)
	}
	return targets, nil
}
