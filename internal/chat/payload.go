package chat

import (
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// ChannelPayload maps a stored channel message to its wire form.
func ChannelPayload(msg *store.ChannelMessage) proto.MessagePayload {
	p := proto.MessagePayload{
		ID:        msg.ID,
		Username:  msg.Username,
		Message:   msg.Body,
		Timestamp: msg.CreatedAt.UTC().Format(proto.TimestampLayout),
	}
	if msg.Attachment != nil {
		p.FileURL = msg.Attachment.URL
		p.FileType = string(msg.Attachment.Kind)
	}
	return p
}

// PrivatePayload maps a stored private message to its wire form.
func PrivatePayload(msg *store.PrivateMessage) proto.PrivateMessagePayload {
	p := proto.PrivateMessagePayload{
		ID:        msg.ID,
		Sender:    msg.SenderUsername,
		Recipient: msg.RecipientUsername,
		Message:   msg.Body,
		Timestamp: msg.CreatedAt.UTC().Format(proto.TimestampLayout),
	}
	if msg.Attachment != nil {
		p.FileURL = msg.Attachment.URL
		p.FileType = string(msg.Attachment.Kind)
	}
	return p
}
