// Package message defines the transport-neutral message model the router
// produces and the dispatch engine consumes.
package message

import (
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// MediaKind classifies an attachment.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaImage
	MediaVideo
	MediaAudio
	MediaSticker
	MediaDocument
)

var kindNames = map[MediaKind]string{
	MediaNone:     "none",
	MediaImage:    "image",
	MediaVideo:    "video",
	MediaAudio:    "audio",
	MediaSticker:  "sticker",
	MediaDocument: "document",
}

func (k MediaKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseMediaKind maps a kind name back to its value. Unknown names map to
// MediaNone.
func ParseMediaKind(name string) MediaKind {
	for k, n := range kindNames {
		if n == strings.ToLower(name) {
			return k
		}
	}
	return MediaNone
}

// Media describes an attachment on a message.
type Media struct {
	Kind     MediaKind
	Mime     string
	ViewOnce bool
}

// Message is a normalized inbound message. Quoted is the flattened quoted
// message, one level deep; Raw carries the underlying event for media
// download and is nil on synthetic messages.
type Message struct {
	ID        string
	Chat      types.JID
	Sender    types.JID
	PushName  string
	IsGroup   bool
	Self      bool
	Body      string
	Quoted    *Message
	Mentions  []types.JID
	Media     *Media
	Timestamp time.Time
	Raw       *events.Message
}

// MediaIn reports whether the message carries media of one of the given
// kinds. This checks the message itself, not the quoted one.
func (m *Message) MediaIn(kinds []MediaKind) bool {
	if m.Media == nil {
		return false
	}
	for _, k := range kinds {
		if m.Media.Kind == k {
			return true
		}
	}
	return false
}

// Targets returns the users the message points at: explicit mentions
// first, otherwise the quoted message's sender.
func (m *Message) Targets() []types.JID {
	if len(m.Mentions) > 0 {
		return m.Mentions
	}
	if m.Quoted != nil && !m.Quoted.Sender.IsEmpty() {
		return []types.JID{m.Quoted.Sender}
	}
	return nil
}
