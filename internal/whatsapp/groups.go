package whatsapp

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/ahmadsysdev/wabot/internal/dispatch"
)

// GroupAdminState fetches live group metadata and reports whether the
// sender and the bot are admins. Implements dispatch.GroupInfoProvider.
func (b *Bot) GroupAdminState(ctx context.Context, chat, sender types.JID) (dispatch.GroupState, error) {
	info, err := b.client.GetGroupInfo(ctx, chat)
	if err != nil {
		return dispatch.GroupState{}, fmt.Errorf("failed to fetch group info: %w", err)
	}

	var state dispatch.GroupState
	self := types.EmptyJID
	if b.client.Store.ID != nil {
		self = b.client.Store.ID.ToNonAD()
	}
	for _, p := range info.Participants {
		if !p.IsAdmin && !p.IsSuperAdmin {
			continue
		}
		switch p.JID.ToNonAD() {
		case sender.ToNonAD():
			state.SenderAdmin = true
		case self:
			state.BotAdmin = true
		}
	}
	return state, nil
}

// GroupInfo fetches a group's metadata.
func (b *Bot) GroupInfo(ctx context.Context, chat types.JID) (*types.GroupInfo, error) {
	return b.client.GetGroupInfo(ctx, chat)
}

// AddParticipants invites users to a group.
func (b *Bot) AddParticipants(ctx context.Context, chat types.JID, users ...types.JID) error {
	_, err := b.client.UpdateGroupParticipants(ctx, chat, users, whatsmeow.ParticipantChangeAdd)
	return err
}

// RemoveParticipants kicks users from a group.
func (b *Bot) RemoveParticipants(ctx context.Context, chat types.JID, users ...types.JID) error {
	_, err := b.client.UpdateGroupParticipants(ctx, chat, users, whatsmeow.ParticipantChangeRemove)
	return err
}

// PromoteParticipants makes users group admins.
func (b *Bot) PromoteParticipants(ctx context.Context, chat types.JID, users ...types.JID) error {
	_, err := b.client.UpdateGroupParticipants(ctx, chat, users, whatsmeow.ParticipantChangePromote)
	return err
}

// DemoteParticipants strips users of group admin.
func (b *Bot) DemoteParticipants(ctx context.Context, chat types.JID, users ...types.JID) error {
	_, err := b.client.UpdateGroupParticipants(ctx, chat, users, whatsmeow.ParticipantChangeDemote)
	return err
}

// SetAnnounce toggles admin-only posting ("mute").
func (b *Bot) SetAnnounce(ctx context.Context, chat types.JID, announce bool) error {
	return b.client.SetGroupAnnounce(ctx, chat, announce)
}

// SetSubject renames the group.
func (b *Bot) SetSubject(ctx context.Context, chat types.JID, subject string) error {
	return b.client.SetGroupName(ctx, chat, subject)
}

// SetDescription changes the group topic.
func (b *Bot) SetDescription(ctx context.Context, chat types.JID, desc string) error {
	return b.client.SetGroupTopic(ctx, chat, "", "", desc)
}

// InviteLink returns the group's invite link, optionally revoking the
// old one first.
func (b *Bot) InviteLink(ctx context.Context, chat types.JID, reset bool) (string, error) {
	return b.client.GetGroupInviteLink(ctx, chat, reset)
}

// JoinGroup accepts an invite link.
func (b *Bot) JoinGroup(ctx context.Context, link string) (types.JID, error) {
	return b.client.JoinGroupWithLink(ctx, link)
}

// LeaveGroup makes the bot leave a group.
func (b *Bot) LeaveGroup(ctx context.Context, chat types.JID) error {
	return b.client.LeaveGroup(ctx, chat)
}

// JoinedGroups lists all groups the bot is in.
func (b *Bot) JoinedGroups(ctx context.Context) ([]*types.GroupInfo, error) {
	return b.client.GetJoinedGroups(ctx)
}

// Block adds a user to the blocklist.
func (b *Bot) Block(ctx context.Context, user types.JID) error {
	_, err := b.client.UpdateBlocklist(ctx, user, events.BlocklistChangeActionBlock)
	return err
}
