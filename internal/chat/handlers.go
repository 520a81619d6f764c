package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/wirechat-rooms/internal/blob"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

func (d *Dispatcher) joinUser(_ context.Context, sess *core.Session, data json.RawMessage) error {
	var in proto.JoinUserData
	if err := decode(data, &in); err != nil {
		return err
	}
	if err := requireCaller(sess, "username", in.Username); err != nil {
		return err
	}
	d.router.Join(sess, core.UserRoom(in.Username))
	return nil
}

func (d *Dispatcher) join(_ context.Context, sess *core.Session, data json.RawMessage) error {
	var in proto.RoomData
	if err := decode(data, &in); err != nil {
		return err
	}
	if in.Room == "" {
		return core.NewError(core.ErrCodeBadRequest, "room is required")
	}
	if !core.CanJoin(sess, in.Room) {
		return core.NewError(core.ErrCodeForbidden, "cannot join room "+in.Room)
	}
	d.router.Join(sess, in.Room)
	return nil
}

func (d *Dispatcher) leave(_ context.Context, sess *core.Session, data json.RawMessage) error {
	var in proto.RoomData
	if err := decode(data, &in); err != nil {
		return err
	}
	if in.Room == "" {
		return core.NewError(core.ErrCodeBadRequest, "room is required")
	}
	d.router.Leave(sess, in.Room)
	return nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, sess *core.Session, data json.RawMessage) error {
	var in proto.SendMessageData
	if err := decode(data, &in); err != nil {
		return err
	}
	if err := requireCaller(sess, "username", in.Username); err != nil {
		return err
	}
	att, err := d.content(in.Message, in.FileURL, in.FileType)
	if err != nil {
		return err
	}

	// Persist before fan-out so nobody sees a message that is not durable.
	msg, err := d.messages.AppendChannel(ctx, sess.UserID, in.Message, att)
	if err != nil {
		return fmt.Errorf("append channel message: %w", err)
	}

	d.router.Publish(core.CommonRoom, &core.Event{
		Name: core.EventReceiveMessage,
		Data: ChannelPayload(msg),
	})
	return nil
}

func (d *Dispatcher) sendPrivateMessage(ctx context.Context, sess *core.Session, data json.RawMessage) error {
	var in proto.PrivateMessageData
	if err := decode(data, &in); err != nil {
		return err
	}
	if err := requireCaller(sess, "sender", in.Sender); err != nil {
		return err
	}
	recipient, err := d.lookup(ctx, "recipient", in.Recipient)
	if err != nil {
		return err
	}
	if recipient.ID == sess.UserID {
		return core.NewError(core.ErrCodeBadRequest, "cannot message yourself")
	}
	att, err := d.content(in.Message, in.FileURL, in.FileType)
	if err != nil {
		return err
	}

	msg, err := d.messages.AppendPrivate(ctx, sess.UserID, recipient.ID, in.Message, att)
	if err != nil {
		return fmt.Errorf("append private message: %w", err)
	}

	payload := PrivatePayload(msg)
	d.router.Publish(core.PrivateRoom(sess.UserID, recipient.ID), &core.Event{
		Name: core.EventReceivePrivateMessage,
		Data: payload,
	})
	d.router.Publish(core.UserRoom(recipient.Username), &core.Event{
		Name: core.EventPrivateMessageRequest,
		Data: payload,
	})
	return nil
}

func (d *Dispatcher) joinPrivate(ctx context.Context, sess *core.Session, data json.RawMessage) error {
	var in proto.PrivatePairData
	if err := decode(data, &in); err != nil {
		return err
	}
	if err := requireCaller(sess, "sender", in.Sender); err != nil {
		return err
	}
	peer, err := d.lookup(ctx, "recipient", in.Recipient)
	if err != nil {
		return err
	}

	room := core.PrivateRoom(sess.UserID, peer.ID)
	d.router.Join(sess, room)
	d.router.Publish(room, &core.Event{
		Name: core.EventStatus,
		Data: proto.StatusPayload{Msg: sess.Username + " has joined the private chat.", Room: room},
	})
	return nil
}

func (d *Dispatcher) rejectPrivateMessage(ctx context.Context, sess *core.Session, data json.RawMessage) error {
	var in proto.PrivatePairData
	if err := decode(data, &in); err != nil {
		return err
	}
	if err := requireCaller(sess, "sender", in.Sender); err != nil {
		return err
	}
	requester, err := d.lookup(ctx, "recipient", in.Recipient)
	if err != nil {
		return err
	}

	room := core.PrivateRoom(sess.UserID, requester.ID)
	d.router.Publish(room, &core.Event{
		Name: core.EventPrivateChatRejected,
		Data: proto.StatusPayload{Msg: sess.Username + " has rejected your private chat request.", Room: room},
	})
	return nil
}

func (d *Dispatcher) markRead(ctx context.Context, sess *core.Session, data json.RawMessage) error {
	var in proto.MarkReadData
	if err := decode(data, &in); err != nil {
		return err
	}
	if in.ID <= 0 {
		return core.NewError(core.ErrCodeBadRequest, "id is required")
	}

	now := d.opts.Now()
	if in.Private {
		if err := d.messages.MarkPrivateRead(ctx, in.ID, sess.UserID, now); err != nil {
			return fmt.Errorf("mark private read: %w", err)
		}
		return nil
	}
	if err := d.messages.MarkChannelRead(ctx, in.ID, sess.UserID, now); err != nil {
		return fmt.Errorf("mark channel read: %w", err)
	}
	return nil
}

// content validates a message body and builds its attachment. A missing or
// unknown file_type is inferred from the URL extension.
func (d *Dispatcher) content(body, fileURL, fileType string) (*store.Attachment, error) {
	if d.opts.MaxMessageLength > 0 && utf8.RuneCountInString(body) > d.opts.MaxMessageLength {
		return nil, core.NewError(core.ErrCodeValidation, "message too long")
	}
	if strings.TrimSpace(fileURL) == "" {
		return nil, nil
	}

	kind := store.AttachmentKind(strings.ToLower(fileType))
	if kind != store.AttachmentImage && kind != store.AttachmentVideo {
		inferred, err := blob.KindForFilename(fileURL)
		if err != nil {
			return nil, core.NewError(core.ErrCodeValidation, "unsupported attachment type")
		}
		kind = inferred
	}
	return &store.Attachment{URL: fileURL, Kind: kind}, nil
}
