package features

import (
	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/media"
	"github.com/ahmadsysdev/wabot/internal/message"
	"github.com/ahmadsysdev/wabot/internal/whatsapp"
)

func registerConverter(reg *command.Registry, bot *whatsapp.Bot) {
	cool := defaultCooldown(bot)

	reg.MustRegister(&command.Descriptor{
		Name:     "sticker",
		Aliases:  []string{"s", "stiker"},
		Category: "converter",
		Desc:     "Turn an image into a sticker",
		Usage:    "sticker (send or quote an image)",
		Media: []message.MediaKind{
			message.MediaImage,
			message.MediaSticker,
			message.MediaDocument,
		},
		Limited:  true,
		Wait:     true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			data, _, err := bot.Download(c.Context, c.Message)
			if err != nil {
				return err
			}
			webp, err := media.ToSticker(data)
			if err != nil {
				return err
			}
			_, err = bot.SendSticker(c.Context, c.Message.Chat, webp)
			return err
		},
	})

	reg.MustRegister(&command.Descriptor{
		Name:     "toimg",
		Aliases:  []string{"toimage"},
		Category: "converter",
		Desc:     "Turn a sticker back into an image",
		Usage:    "toimg (quote a sticker)",
		Media:    []message.MediaKind{message.MediaSticker},
		Limited:  true,
		Wait:     true,
		Cooldown: cool,
		Run: func(c *command.Context) error {
			data, _, err := bot.Download(c.Context, c.Message)
			if err != nil {
				return err
			}
			img, err := media.ToImage(data)
			if err != nil {
				return err
			}
			_, err = bot.SendMedia(c.Context, c.Message.Chat, img, "")
			return err
		},
	})
}
