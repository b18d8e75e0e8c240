package whatsapp

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	. "github.com/ahmadsysdev/wabot/internal/logging"
	"github.com/ahmadsysdev/wabot/internal/media"
	"github.com/ahmadsysdev/wabot/internal/message"
)

const maxTextMessage = 65536

// SendText sends a plain text message, splitting texts over the size
// limit into several sends. Markdown is rewritten to WhatsApp formatting
// first. Implements command.Messenger; the returned ID is the last chunk's.
func (b *Bot) SendText(ctx context.Context, chat types.JID, text string, mentions ...types.JID) (string, error) {
	text = FormatMessage(text)
	if len(text) > maxTextMessage {
		chunks := SplitMessage(text, maxTextMessage)
		var id string
		for _, chunk := range chunks {
			var err error
			if id, err = b.SendText(ctx, chat, chunk, mentions...); err != nil {
				return "", err
			}
		}
		return id, nil
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if len(mentions) > 0 {
		msg = &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: &waE2E.ContextInfo{MentionedJID: jidStrings(mentions)},
		}}
	}
	resp, err := b.client.SendMessage(ctx, chat, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return resp.ID, nil
}

// Reply sends text quoting the given message. Implements command.Messenger.
func (b *Bot) Reply(ctx context.Context, to *message.Message, text string, mentions ...types.JID) (string, error) {
	quoted := &waE2E.Message{Conversation: proto.String(to.Body)}
	if to.Raw != nil && to.Raw.Message != nil {
		quoted = to.Raw.Message
	}
	ext := &waE2E.ExtendedTextMessage{
		Text: proto.String(text),
		ContextInfo: &waE2E.ContextInfo{
			StanzaID:      proto.String(to.ID),
			Participant:   proto.String(to.Sender.ToNonAD().String()),
			QuotedMessage: quoted,
		},
	}
	if len(mentions) > 0 {
		ext.ContextInfo.MentionedJID = jidStrings(mentions)
	}
	resp, err := b.client.SendMessage(ctx, to.Chat, &waE2E.Message{ExtendedTextMessage: ext})
	if err != nil {
		return "", fmt.Errorf("failed to send reply: %w", err)
	}
	return resp.ID, nil
}

// SendMedia uploads raw bytes and sends them as the matching media kind.
// The MIME type is sniffed from the data. Oversized images are shrunk
// before upload.
func (b *Bot) SendMedia(ctx context.Context, chat types.JID, data []byte, caption string) (string, error) {
	data = shrinkForUpload(data)
	mime := mimetype.Detect(data).String()
	resp, err := b.client.Upload(ctx, data, mimeToMediaType(mime))
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	msg := buildMediaMessage(mime, &resp, caption, uint64(len(data)))
	sent, err := b.client.SendMessage(ctx, chat, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send media: %w", err)
	}
	return sent.ID, nil
}

// shrinkForUpload reduces oversized image payloads to the upload limits.
// Non-image payloads, and images that fail to shrink, pass through
// unchanged.
func shrinkForUpload(data []byte) []byte {
	if !strings.HasPrefix(mimetype.Detect(data).String(), "image/") {
		return data
	}
	shrunk, err := media.Shrink(data)
	if err != nil {
		L_warn("media: shrink failed, sending original", "error", err)
		return data
	}
	return shrunk
}

// SendMediaFile uploads and sends a file from disk.
func (b *Bot) SendMediaFile(ctx context.Context, chat types.JID, path, caption string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return b.SendMedia(ctx, chat, data, caption)
}

// SendSticker uploads webp data and sends it as a sticker.
func (b *Bot) SendSticker(ctx context.Context, chat types.JID, webpData []byte) (string, error) {
	resp, err := b.client.Upload(ctx, webpData, whatsmeow.MediaImage)
	if err != nil {
		return "", fmt.Errorf("failed to upload sticker: %w", err)
	}
	length := uint64(len(webpData))
	sent, err := b.client.SendMessage(ctx, chat, &waE2E.Message{
		StickerMessage: &waE2E.StickerMessage{
			Mimetype:      proto.String("image/webp"),
			URL:           &resp.URL,
			DirectPath:    &resp.DirectPath,
			MediaKey:      resp.MediaKey,
			FileEncSHA256: resp.FileEncSHA256,
			FileSHA256:    resp.FileSHA256,
			FileLength:    &length,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send sticker: %w", err)
	}
	return sent.ID, nil
}

// Download fetches the media payload of a normalized message, looking at
// the quoted message when the message itself has none.
func (b *Bot) Download(ctx context.Context, msg *message.Message) ([]byte, string, error) {
	target := msg
	if target.Media == nil && msg.Quoted != nil && msg.Quoted.Media != nil {
		target = msg.Quoted
	}
	if target.Media == nil || target.Raw == nil {
		return nil, "", fmt.Errorf("message carries no media")
	}
	dl := downloadable(target.Raw.Message)
	if dl == nil {
		return nil, "", fmt.Errorf("media message is not downloadable")
	}
	data, err := b.client.Download(ctx, dl)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}
	return data, target.Media.Mime, nil
}

// RevokeMessage deletes a message for everyone.
func (b *Bot) RevokeMessage(ctx context.Context, chat, sender types.JID, id string) error {
	_, err := b.client.SendMessage(ctx, chat, b.client.BuildRevoke(chat, sender, id))
	return err
}

func downloadable(msg *waE2E.Message) whatsmeow.DownloadableMessage {
	if msg == nil {
		return nil
	}
	msg = unwrapEnvelope(msg)
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage()
	}
	return nil
}

// buildMediaMessage creates the proto message for a media upload
func buildMediaMessage(mimeType string, resp *whatsmeow.UploadResponse, caption string, fileLength uint64) *waE2E.Message {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{
				Caption:       proto.String(caption),
				Mimetype:      proto.String(mimeType),
				URL:           &resp.URL,
				DirectPath:    &resp.DirectPath,
				MediaKey:      resp.MediaKey,
				FileEncSHA256: resp.FileEncSHA256,
				FileSHA256:    resp.FileSHA256,
				FileLength:    &fileLength,
			},
		}
	case strings.HasPrefix(mimeType, "video/"):
		return &waE2E.Message{
			VideoMessage: &waE2E.VideoMessage{
				Caption:       proto.String(caption),
				Mimetype:      proto.String(mimeType),
				URL:           &resp.URL,
				DirectPath:    &resp.DirectPath,
				MediaKey:      resp.MediaKey,
				FileEncSHA256: resp.FileEncSHA256,
				FileSHA256:    resp.FileSHA256,
				FileLength:    &fileLength,
			},
		}
	case strings.HasPrefix(mimeType, "audio/"):
		return &waE2E.Message{
			AudioMessage: &waE2E.AudioMessage{
				Mimetype:      proto.String(mimeType),
				URL:           &resp.URL,
				DirectPath:    &resp.DirectPath,
				MediaKey:      resp.MediaKey,
				FileEncSHA256: resp.FileEncSHA256,
				FileSHA256:    resp.FileSHA256,
				FileLength:    &fileLength,
			},
		}
	default:
		return &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{
				Caption:       proto.String(caption),
				Mimetype:      proto.String(mimeType),
				URL:           &resp.URL,
				DirectPath:    &resp.DirectPath,
				MediaKey:      resp.MediaKey,
				FileEncSHA256: resp.FileEncSHA256,
				FileSHA256:    resp.FileSHA256,
				FileLength:    &fileLength,
			},
		}
	}
}

// mimeToMediaType maps a MIME type to whatsmeow's MediaType for upload
func mimeToMediaType(mimeType string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func jidStrings(jids []types.JID) []string {
	out := make([]string, len(jids))
	for i, j := range jids {
		out[i] = j.ToNonAD().String()
	}
	return out
}
