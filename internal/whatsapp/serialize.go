package whatsapp

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/ahmadsysdev/wabot/internal/message"
)

// unwrapEnvelope strips ephemeral and view-once wrappers down to the
// inner message.
func unwrapEnvelope(msg *waE2E.Message) *waE2E.Message {
	for {
		switch {
		case msg.GetEphemeralMessage().GetMessage() != nil:
			msg = msg.GetEphemeralMessage().GetMessage()
		case msg.GetViewOnceMessage().GetMessage() != nil:
			msg = msg.GetViewOnceMessage().GetMessage()
		case msg.GetViewOnceMessageV2().GetMessage() != nil:
			msg = msg.GetViewOnceMessageV2().GetMessage()
		case msg.GetViewOnceMessageV2Extension().GetMessage() != nil:
			msg = msg.GetViewOnceMessageV2Extension().GetMessage()
		default:
			return msg
		}
	}
}

func isViewOnce(msg *waE2E.Message) bool {
	return msg.GetViewOnceMessage().GetMessage() != nil ||
		msg.GetViewOnceMessageV2().GetMessage() != nil ||
		msg.GetViewOnceMessageV2Extension().GetMessage() != nil
}

// bodyOf extracts the plain text of an unwrapped message: conversation,
// extended text, or a media caption.
func bodyOf(msg *waE2E.Message) string {
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}

// mediaOf classifies the attachment of an unwrapped message.
func mediaOf(msg *waE2E.Message) *message.Media {
	switch {
	case msg.GetImageMessage() != nil:
		return &message.Media{Kind: message.MediaImage, Mime: msg.GetImageMessage().GetMimetype()}
	case msg.GetVideoMessage() != nil:
		return &message.Media{Kind: message.MediaVideo, Mime: msg.GetVideoMessage().GetMimetype()}
	case msg.GetAudioMessage() != nil:
		return &message.Media{Kind: message.MediaAudio, Mime: msg.GetAudioMessage().GetMimetype()}
	case msg.GetStickerMessage() != nil:
		return &message.Media{Kind: message.MediaSticker, Mime: msg.GetStickerMessage().GetMimetype()}
	case msg.GetDocumentMessage() != nil:
		return &message.Media{Kind: message.MediaDocument, Mime: msg.GetDocumentMessage().GetMimetype()}
	}
	return nil
}

// contextInfoOf finds the quoting/mention context wherever the message
// type carries it.
func contextInfoOf(msg *waE2E.Message) *waE2E.ContextInfo {
	switch {
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetContextInfo()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetContextInfo()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetContextInfo()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetContextInfo()
	}
	return nil
}

// normalize turns a raw whatsmeow event into the transport-neutral
// message the router and engine work with. Returns nil when the event
// carries nothing usable (no text, no media).
func normalize(evt *events.Message) *message.Message {
	if evt.Message == nil {
		return nil
	}
	raw := unwrapEnvelope(evt.Message)

	m := &message.Message{
		ID:        evt.Info.ID,
		Chat:      evt.Info.Chat,
		Sender:    evt.Info.Sender,
		PushName:  evt.Info.PushName,
		IsGroup:   evt.Info.IsGroup,
		Self:      evt.Info.IsFromMe,
		Body:      bodyOf(raw),
		Media:     mediaOf(raw),
		Timestamp: evt.Info.Timestamp,
		Raw:       evt,
	}
	if m.Media != nil && isViewOnce(evt.Message) {
		m.Media.ViewOnce = true
	}

	if ci := contextInfoOf(raw); ci != nil {
		for _, j := range ci.GetMentionedJID() {
			if jid, err := types.ParseJID(j); err == nil {
				m.Mentions = append(m.Mentions, jid)
			}
		}
		if ci.GetStanzaID() != "" && ci.GetQuotedMessage() != nil {
			quotedRaw := unwrapEnvelope(ci.GetQuotedMessage())
			quoted := &message.Message{
				ID:    ci.GetStanzaID(),
				Chat:  m.Chat,
				Body:  bodyOf(quotedRaw),
				Media: mediaOf(quotedRaw),
				// synthetic event so media download works on the quote
				Raw: &events.Message{Message: ci.GetQuotedMessage()},
			}
			if sender, err := types.ParseJID(ci.GetParticipant()); err == nil {
				quoted.Sender = sender
			}
			m.Quoted = quoted
		}
	}

	if m.Body == "" && m.Media == nil {
		return nil
	}
	return m
}
