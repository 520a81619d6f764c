package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

const (
	InboundJoinUser             = "join_user"
	InboundJoin                 = "join"
	InboundLeave                = "leave"
	InboundSendMessage          = "send_message"
	InboundSendPrivateMessage   = "send_private_message"
	InboundJoinPrivate          = "join_private"
	InboundRejectPrivateMessage = "reject_private_message"
	InboundMarkRead             = "mark_read"
)

// TimestampLayout formats message timestamps on the wire (UTC).
const TimestampLayout = "2006-01-02 15:04"

// JoinUserData asks to join the caller's personal inbox.
type JoinUserData struct {
	Username string `json:"username"`
}

// RoomData names a room to join or leave.
type RoomData struct {
	Room string `json:"room"`
}

// SendMessageData is a message for the common channel.
type SendMessageData struct {
	Username string `json:"username"`
	Message  string `json:"message,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	FileType string `json:"file_type,omitempty"`
}

// PrivateMessageData is a direct message from Sender to Recipient.
type PrivateMessageData struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"message,omitempty"`
	FileURL   string `json:"file_url,omitempty"`
	FileType  string `json:"file_type,omitempty"`
}

// PrivatePairData names both sides of a private conversation.
// For rejections Sender is the rejecting user and Recipient the original sender.
type PrivatePairData struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

// MarkReadData marks one message as read by the caller.
type MarkReadData struct {
	ID      int64 `json:"id"`
	Private bool  `json:"private,omitempty"`
}

// MessagePayload is a common channel message.
type MessagePayload struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	FileURL   string `json:"file_url,omitempty"`
	FileType  string `json:"file_type,omitempty"`
	Timestamp string `json:"timestamp"`
}

// PrivateMessagePayload is a direct message or a chat request notice.
type PrivateMessagePayload struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	FileURL   string `json:"file_url,omitempty"`
	FileType  string `json:"file_type,omitempty"`
	Timestamp string `json:"timestamp"`
}

// StatusPayload is a human readable room notice.
type StatusPayload struct {
	Msg  string `json:"msg"`
	Room string `json:"room,omitempty"`
}

// ErrorPayload describes a rejected request.
type ErrorPayload struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
