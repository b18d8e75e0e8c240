package features

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/whatsapp"
)

func registerPublic(reg *command.Registry, bot *whatsapp.Bot) {
	reg.MustRegister(&command.Descriptor{
		Name:     "help",
		Aliases:  []string{"menu", "commands"},
		Category: "public",
		Desc:     "List available commands, or show details for one",
		Usage:    "help [command]",
		Example:  "help sticker",
		Run: func(c *command.Context) error {
			if len(c.Args) > 0 {
				return commandDetail(c, reg)
			}
			return commandMenu(c, reg, bot)
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "ping",
		Category: "public",
		Desc:     "Check that the bot is alive",
		Run: func(c *command.Context) error {
			uptime := time.Since(bot.StartedAt()).Round(time.Second)
			return c.ReplyText(fmt.Sprintf("Pong! Up for %s.", uptime))
		},
	})
}

func commandMenu(c *command.Context, reg *command.Registry, bot *whatsapp.Bot) error {
	categories := reg.Categories()
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\nPrefix: %s\n", bot.Config().Pack.PackName, c.Prefix)
	for _, cat := range names {
		fmt.Fprintf(&b, "\n*%s*\n", strings.ToUpper(cat))
		for _, d := range categories[cat] {
			fmt.Fprintf(&b, "%s%s", c.Prefix, d.Name)
			if d.Desc != "" {
				fmt.Fprintf(&b, " - %s", d.Desc)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\nSend %shelp <command> for usage.", c.Prefix)

	for _, chunk := range whatsapp.SplitMessage(b.String(), 4000) {
		if _, err := c.Send.SendText(c.Context, c.Message.Chat, chunk); err != nil {
			return err
		}
	}
	return nil
}

func commandDetail(c *command.Context, reg *command.Registry) error {
	name := c.Args[0]
	d, ok := reg.Resolve(name)
	if !ok {
		return c.ReplyText(fmt.Sprintf("Unknown command: %s", name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s%s*\n", c.Prefix, d.Name)
	if d.Desc != "" {
		fmt.Fprintf(&b, "%s\n", d.Desc)
	}
	if len(d.Aliases) > 0 {
		fmt.Fprintf(&b, "Aliases: %s\n", strings.Join(d.Aliases, ", "))
	}
	if d.Usage != "" {
		fmt.Fprintf(&b, "Usage: %s%s\n", c.Prefix, d.Usage)
	}
	if d.Example != "" {
		fmt.Fprintf(&b, "Example: %s%s\n", c.Prefix, d.Example)
	}
	return c.ReplyText(strings.TrimSpace(b.String()))
}
