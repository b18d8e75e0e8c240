package features

import (
	"fmt"
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/store"
	"github.com/ahmadsysdev/wabot/internal/whatsapp"
)

var phoneArgPattern = regexp.MustCompile(`^\+?[0-9][0-9 .\-]{4,}$`)

func registerGroup(reg *command.Registry, bot *whatsapp.Bot) {
	cool := defaultCooldown(bot)

	reg.MustRegister(&command.Descriptor{
		Name:     "kick",
		Aliases:  []string{"remove"},
		Category: "group",
		Desc:     "Remove the mentioned or quoted member",
		Usage:    "kick @user",
		Group:    true,
		Admin:    true,
		BotAdmin: true,
		Mention:  true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			targets := resolveTargets(c)
			if err := bot.RemoveParticipants(c.Context, c.Message.Chat, targets...); err != nil {
				return err
			}
			return c.ReplyText(plural("Removed %d member.", "Removed %d members.", len(targets)))
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "add",
		Category: "group",
		Desc:     "Invite a phone number into the group",
		Usage:    "add <number>",
		Example:  "add 628123456789",
		Group:    true,
		Admin:    true,
		BotAdmin: true,
		Query:    true,
		Regex:    phoneArgPattern,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			num := digitsOnly.Replace(c.Text)
			user := types.NewJID(num, types.DefaultUserServer)
			if err := bot.AddParticipants(c.Context, c.Message.Chat, user); err != nil {
				return err
			}
			return c.ReplyText(fmt.Sprintf("Added %s.", num))
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "promote",
		Category: "group",
		Desc:     "Make the mentioned member an admin",
		Usage:    "promote @user",
		Group:    true,
		Admin:    true,
		BotAdmin: true,
		Mention:  true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			if err := bot.PromoteParticipants(c.Context, c.Message.Chat, resolveTargets(c)...); err != nil {
				return err
			}
			return c.ReplyText("Promoted to admin.")
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "demote",
		Category: "group",
		Desc:     "Take admin away from the mentioned member",
		Usage:    "demote @user",
		Group:    true,
		Admin:    true,
		BotAdmin: true,
		Mention:  true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			if err := bot.DemoteParticipants(c.Context, c.Message.Chat, resolveTargets(c)...); err != nil {
				return err
			}
			return c.ReplyText("Demoted to member.")
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "mute",
		Category: "group",
		Desc:     "Only admins can send messages",
		Group:    true,
		Admin:    true,
		BotAdmin: true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			if err := bot.SetAnnounce(c.Context, c.Message.Chat, true); err != nil {
				return err
			}
			return c.ReplyText("Group muted. Only admins can send messages now.")
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "unmute",
		Category: "group",
		Desc:     "Everyone can send messages again",
		Group:    true,
		Admin:    true,
		BotAdmin: true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			if err := bot.SetAnnounce(c.Context, c.Message.Chat, false); err != nil {
				return err
			}
			return c.ReplyText("Group unmuted.")
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "setsubject",
		Aliases:  []string{"setname"},
		Category: "group",
		Desc:     "Change the group subject",
		Usage:    "setsubject <text>",
		Group:    true,
		Admin:    true,
		BotAdmin: true,
		Query:    true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			if err := bot.SetSubject(c.Context, c.Message.Chat, c.Text); err != nil {
				return err
			}
			return c.ReplyText("Subject updated.")
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "setdesc",
		Category: "group",
		Desc:     "Change the group description",
		Usage:    "setdesc <text>",
		Group:    true,
		Admin:    true,
		BotAdmin: true,
		Query:    true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			if err := bot.SetDescription(c.Context, c.Message.Chat, c.Text); err != nil {
				return err
			}
			return c.ReplyText("Description updated.")
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "link",
		Aliases:  []string{"grouplink"},
		Category: "group",
		Desc:     "Show the group invite link",
		Group:    true,
		BotAdmin: true,
		Limited:  true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			link, err := bot.InviteLink(c.Context, c.Message.Chat, false)
			if err != nil {
				return err
			}
			return c.ReplyText(link)
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "revoke",
		Category: "group",
		Desc:     "Revoke the invite link and issue a new one",
		Group:    true,
		Admin:    true,
		BotAdmin: true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			link, err := bot.InviteLink(c.Context, c.Message.Chat, true)
			if err != nil {
				return err
			}
			return c.ReplyText("Invite link revoked. New link:\n" + link)
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "hidetag",
		Aliases:  []string{"tagall"},
		Category: "group",
		Desc:     "Notify every member without visible mentions",
		Usage:    "hidetag <text>",
		Group:    true,
		Admin:    true,
		Query:    true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			info, err := bot.GroupInfo(c.Context, c.Message.Chat)
			if err != nil {
				return err
			}
			everyone := make([]types.JID, 0, len(info.Participants))
			for _, p := range info.Participants {
				everyone = append(everyone, p.JID)
			}
			_, err = c.Send.SendText(c.Context, c.Message.Chat, c.Text, everyone...)
			return err
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "del",
		Aliases:  []string{"delete"},
		Category: "group",
		Desc:     "Delete the quoted message for everyone",
		Usage:    "del (quote a message)",
		Group:    true,
		Admin:    true,
		BotAdmin: true,
		Quoted:   true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			q := c.Message.Quoted
			return bot.RevokeMessage(c.Context, c.Message.Chat, q.Sender, q.ID)
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "left",
		Aliases:  []string{"leave"},
		Category: "group",
		Desc:     "Remove the bot from this group",
		Group:    true,
		Admin:    true,
		Run: func(c *command.Context) error {
			if err := c.ReplyText("Goodbye!"); err != nil {
				return err
			}
			return bot.LeaveGroup(c.Context, c.Message.Chat)
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "groupinfo",
		Aliases:  []string{"ginfo"},
		Category: "group",
		Desc:     "Show this group's metadata",
		Group:    true,
		Limited:  true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			info, err := bot.GroupInfo(c.Context, c.Message.Chat)
			if err != nil {
				return err
			}
			var b strings.Builder
			fmt.Fprintf(&b, "*%s*\n", info.Name)
			if info.Topic != "" {
				fmt.Fprintf(&b, "%s\n\n", info.Topic)
			}
			fmt.Fprintf(&b, "Members: %d\n", len(info.Participants))
			fmt.Fprintf(&b, "Created: %s", info.GroupCreated.Format("2 Jan 2006"))
			return c.ReplyText(b.String())
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "setwelcome",
		Category: "group",
		Desc:     "Set this group's welcome text (@user, @subj, @desc)",
		Usage:    "setwelcome <text>",
		Example:  "setwelcome Hi @user, welcome to @subj!",
		Group:    true,
		Admin:    true,
		Query:    true,
		Run: func(c *command.Context) error {
			if err := saveGreeting(bot, c.Message.Chat.String(), "welcome", c.Text); err != nil {
				return err
			}
			return c.ReplyText("Welcome text saved.")
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "setleave",
		Category: "group",
		Desc:     "Set this group's leave text (@user, @subj, @desc)",
		Usage:    "setleave <text>",
		Group:    true,
		Admin:    true,
		Query:    true,
		Run: func(c *command.Context) error {
			if err := saveGreeting(bot, c.Message.Chat.String(), "leave", c.Text); err != nil {
				return err
			}
			return c.ReplyText("Leave text saved.")
		},
	})

	for _, toggle := range []struct {
		name string
		desc string
	}{
		{"welcome", "Greet members joining or leaving"},
		{"antilink", "Kick members who post foreign group invites"},
		{"antiview", "Reveal view-once media"},
		{"antidel", "Repost messages deleted by their sender"},
	} {
		toggle := toggle
		reg.MustRegister(&command.Descriptor{
			Name:     toggle.name,
			Category: "group",
			Desc:     toggle.desc,
			Usage:    toggle.name + " <on | off>",
			Group:    true,
			Admin:    true,
			Options:  []string{"on", "off"},
			Run: func(c *command.Context) error {
				on := strings.EqualFold(c.Args[0], "on")
				changed, err := bot.SetFeature(toggle.name, c.Message.Chat.String(), on)
				if err != nil {
					return err
				}
				state := "disabled"
				if on {
					state = "enabled"
				}
				if !changed {
					return c.ReplyText(fmt.Sprintf("%s is already %s.", toggle.name, state))
				}
				return c.ReplyText(fmt.Sprintf("%s %s.", toggle.name, state))
			},
		})
	}
}

// saveGreeting merges one greeting field into the group's record.
func saveGreeting(bot *whatsapp.Bot, chat, field, text string) error {
	rec, ok := bot.Store().Check("greeting", chat, "id")
	if !ok {
		rec = store.Record{"id": chat}
	}
	rec[field] = text
	return bot.Store().Upsert("greeting", rec, chat, "id")
}

func plural(one, many string, n int) string {
	if n == 1 {
		return fmt.Sprintf(one, n)
	}
	return fmt.Sprintf(many, n)
}
