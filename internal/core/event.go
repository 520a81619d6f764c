package core

// Server to client event names.
const (
	EventReceiveMessage        = "receive_message"
	EventReceivePrivateMessage = "receive_private_message"
	EventPrivateMessageRequest = "private_message_request"
	EventStatus                = "status"
	EventPrivateChatRejected   = "private_chat_rejected"
	EventError                 = "error"
)

// Event is sent to sessions to describe what happened in the system.
// Data is the wire payload and is encoded as-is by the transport.
type Event struct {
	Name string
	Room string
	Data any
}
